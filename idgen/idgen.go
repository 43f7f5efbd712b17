// Package idgen generates identifiers for send attempts, broadcasts and
// diagnoses. Constructors take a Generator so tests can pin IDs.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of time-sortable RFC 9562 UUIDs.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID of gen ("att_", "bc_", "dia_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator: prefix1, prefix2, ...
func Sequence(prefix string) Generator {
	var n atomic.Uint64
	return func() string {
		return fmt.Sprintf("%s%d", prefix, n.Add(1))
	}
}

// Default is the generator used when a component is given none.
var Default Generator = UUIDv7()
