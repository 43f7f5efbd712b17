// Package outcome holds what the engines report: failure reasons, send
// attempt records and page diagnoses. It is the data shared between the
// coordinator, the hub and the sinks.
package outcome

// Reason classifies why a step did not succeed. The empty Reason means none.
type Reason string

const (
	ReasonNone          Reason = ""
	ResolutionFailure   Reason = "resolution_failure"
	FillFailure         Reason = "fill_failure"
	DispatchRejected    Reason = "dispatch_rejected"
	ConcurrencyRejected Reason = "concurrency_rejected"
	ConfigInvalid       Reason = "config_invalid"
	Cancelled           Reason = "cancelled"
)

// Message is the human-readable text reported upstream for r.
func (r Reason) Message() string {
	switch r {
	case ResolutionFailure:
		return "input element not found"
	case FillFailure:
		return "could not fill input"
	case DispatchRejected:
		return "send control disabled"
	case ConcurrencyRejected:
		return "in-flight"
	case ConfigInvalid:
		return "invalid selector in site config"
	case Cancelled:
		return "cancelled"
	}
	return ""
}
