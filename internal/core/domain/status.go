package domain

import "strings"

// ItemStatus is the verification state of a single PRN item.
type ItemStatus string

const (
	StatusPending ItemStatus = "pending"
	StatusPaid    ItemStatus = "paid"
	StatusUnpaid  ItemStatus = "unpaid"
	StatusInvalid ItemStatus = "invalid"
	StatusUnknown ItemStatus = "unknown"
	StatusError   ItemStatus = "error"
)

// AllStatuses lists every status in report order.
var AllStatuses = []ItemStatus{
	StatusPending,
	StatusPaid,
	StatusUnpaid,
	StatusInvalid,
	StatusUnknown,
	StatusError,
}

func (s ItemStatus) String() string { return string(s) }

func (s ItemStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusUnpaid, StatusInvalid, StatusUnknown, StatusError:
		return true
	}
	return false
}

// Eligible reports whether an item in this status is picked up by the next
// batch run. Unpaid is deliberately excluded: re-checking a pending payment
// belongs to a fresh run, not to "retry failed".
func (s ItemStatus) Eligible() bool {
	switch s {
	case StatusPending, StatusError, StatusInvalid, StatusUnknown:
		return true
	}
	return false
}

// Settled reports whether the authority gave a definitive answer for the item.
func (s ItemStatus) Settled() bool {
	return s == StatusPaid || s == StatusUnpaid
}

// Failed groups the outcomes counted as failures in run summaries.
func (s ItemStatus) Failed() bool {
	return s == StatusInvalid || s == StatusError || s == StatusUnknown
}

func (s ItemStatus) Label() string {
	return strings.ToUpper(string(s))
}
