package enums

import "fmt"

// PurchasingStatus tracks the lifecycle of a purchasing (stock intake) document.
type PurchasingStatus string

const (
	PurchasingStatusDraft     PurchasingStatus = "draft"
	PurchasingStatusCompleted PurchasingStatus = "completed"
	PurchasingStatusCancelled PurchasingStatus = "cancelled"
)

var validPurchasingStatuses = []PurchasingStatus{
	PurchasingStatusDraft,
	PurchasingStatusCompleted,
	PurchasingStatusCancelled,
}

// String implements fmt.Stringer.
func (s PurchasingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PurchasingStatus.
func (s PurchasingStatus) IsValid() bool {
	for _, candidate := range validPurchasingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s PurchasingStatus) IsTerminal() bool {
	return s == PurchasingStatusCancelled
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s PurchasingStatus) CanTransitionTo(next PurchasingStatus) bool {
	switch s {
	case PurchasingStatusDraft:
		return next == PurchasingStatusCompleted || next == PurchasingStatusCancelled
	case PurchasingStatusCompleted:
		return next == PurchasingStatusCancelled
	default:
		return false
	}
}

// ParsePurchasingStatus converts raw input into a PurchasingStatus.
func ParsePurchasingStatus(value string) (PurchasingStatus, error) {
	for _, candidate := range validPurchasingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchasing status %q", value)
}
