package errprocess

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how it is recovered
type Kind int

const (
	// KindUnknown no classification
	KindUnknown Kind = iota
	// KindTransientNetwork subscription drop, fetch timeout: retried locally
	KindTransientNetwork
	// KindDataIntegrity event references a row the store does not hold: no-op
	KindDataIntegrity
	// KindWriteRejected a persistence write failed: rollback + toast
	KindWriteRejected
	// KindSubscriptionAuth fatal for one channel subscription only
	KindSubscriptionAuth
)

func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient_network"
	case KindDataIntegrity:
		return "data_integrity"
	case KindWriteRejected:
		return "write_rejected"
	case KindSubscriptionAuth:
		return "subscription_auth"
	default:
		return "unknown"
	}
}

// Error carries a Kind and the operation that failed
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wrap err with kind and op
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf walk the chain and return the first classified kind
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is report whether err carries kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
