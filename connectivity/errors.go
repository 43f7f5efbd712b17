package connectivity

import "fmt"

// ErrServiceNotFound is returned when Call targets a service with no route
// and no local handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("connectivity: service not routable: %s", e.Service)
}

// ErrNoFactory is logged during Reload when a route's strategy has no
// registered TransportFactory.
type ErrNoFactory struct {
	Service  string
	Strategy string
}

func (e *ErrNoFactory) Error() string {
	return fmt.Sprintf("connectivity: no transport factory for strategy %q (service %s)", e.Strategy, e.Service)
}

// ErrFactoryFailed is logged when a TransportFactory cannot build a handler.
type ErrFactoryFailed struct {
	Service  string
	Strategy string
	Endpoint string
	Cause    error
}

func (e *ErrFactoryFailed) Error() string {
	return fmt.Sprintf("connectivity: factory %q failed for service %s (endpoint %s): %v",
		e.Strategy, e.Service, e.Endpoint, e.Cause)
}

func (e *ErrFactoryFailed) Unwrap() error { return e.Cause }

// ErrPanic wraps a recovered panic value.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: handler panicked: %v", e.Value)
}
