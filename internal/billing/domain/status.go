package billing

import "fmt"

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusPaid      Status = "paid"
)

var allowedTransitions = map[Status][]Status{
	StatusDraft:     {StatusFinalized},
	StatusFinalized: {StatusPaid},
	StatusPaid:      {},
}

// ValidateTransition checks a status change against the lifecycle.
func ValidateTransition(from, to Status) error {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
