package domain

import (
	"fmt"
	"strings"
	"time"
)

// Phase names the step of the verification protocol an outcome came from.
type Phase string

const (
	PhaseDetails  Phase = "details"
	PhaseDocument Phase = "document"
)

// Outcome is the classified result of verifying one identifier. It is a
// closed set: PaidOutcome, UnpaidOutcome, InvalidOutcome, UnknownOutcome and
// ErrorOutcome are the only implementations.
type Outcome interface {
	Status() ItemStatus
	sealed()
}

// PaidOutcome means payment is confirmed and the receipt was retrieved.
type PaidOutcome struct {
	Document []byte
	Details  PaymentDetails
}

// UnpaidOutcome means the PRN exists but payment is still pending.
type UnpaidOutcome struct {
	Details PaymentDetails
}

// InvalidOutcome means the authority did not recognize the identifier.
type InvalidOutcome struct {
	StatusCode int
	Reason     string
}

// UnknownOutcome means the authority reported a status outside PAID/PENDING.
type UnknownOutcome struct {
	ReportedStatus string
	Payload        string
}

// ErrorOutcome covers timeouts and a paid PRN whose receipt could not be
// retrieved.
type ErrorOutcome struct {
	Phase  Phase
	Reason string
}

func (PaidOutcome) Status() ItemStatus    { return StatusPaid }
func (UnpaidOutcome) Status() ItemStatus  { return StatusUnpaid }
func (InvalidOutcome) Status() ItemStatus { return StatusInvalid }
func (UnknownOutcome) Status() ItemStatus { return StatusUnknown }
func (ErrorOutcome) Status() ItemStatus   { return StatusError }

func (PaidOutcome) sealed()    {}
func (UnpaidOutcome) sealed()  {}
func (InvalidOutcome) sealed() {}
func (UnknownOutcome) sealed() {}
func (ErrorOutcome) sealed()   {}

const (
	msgInvalidPRN         = "invalid PRN number"
	msgRetrievalFailed    = "payment confirmed but document retrieval failed"
	msgEmptyDocument      = "payment confirmed but the retrieved document was empty"
	msgMissingOutcome     = "verification produced no outcome"
	msgUnknownStatusShort = "PRN has unknown status"
)

func (o InvalidOutcome) Message() string {
	return joinReason(msgInvalidPRN, o.Reason)
}

func (o UnknownOutcome) Message() string {
	status := strings.TrimSpace(o.ReportedStatus)
	if status == "" {
		status = "<empty>"
	}
	return joinReason(fmt.Sprintf("%s: %s", msgUnknownStatusShort, status), o.Payload)
}

func (o ErrorOutcome) Message() string {
	if o.Phase == PhaseDocument {
		return joinReason(msgRetrievalFailed, o.Reason)
	}
	if strings.TrimSpace(o.Reason) == "" {
		return "verification failed"
	}
	return strings.TrimSpace(o.Reason)
}

func joinReason(head, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return head
	}
	return head + ": " + reason
}

// ApplyOutcome is the per-attempt transition. It books the attempt at
// attemptAt and derives status, document, error message and details from the
// outcome alone, so nothing from a previous attempt leaks into the new record.
func ApplyOutcome(prev ItemRecord, outcome Outcome, attemptAt time.Time) ItemRecord {
	next := ItemRecord{
		Identifier:     prev.Identifier,
		AttemptCount:   prev.AttemptCount + 1,
		FirstAttemptAt: cloneTime(prev.FirstAttemptAt),
		LastAttemptAt:  &attemptAt,
	}
	if next.FirstAttemptAt == nil {
		first := attemptAt
		next.FirstAttemptAt = &first
	}

	switch o := outcome.(type) {
	case PaidOutcome:
		if len(o.Document) == 0 {
			next.Status = StatusError
			next.ErrorMessage = msgEmptyDocument
			return next
		}
		details := o.Details
		next.Status = StatusPaid
		next.Document = append([]byte(nil), o.Document...)
		next.Details = &details
	case UnpaidOutcome:
		details := o.Details
		next.Status = StatusUnpaid
		next.Details = &details
	case InvalidOutcome:
		next.Status = StatusInvalid
		next.ErrorMessage = o.Message()
	case UnknownOutcome:
		next.Status = StatusUnknown
		next.ErrorMessage = o.Message()
	case ErrorOutcome:
		next.Status = StatusError
		next.ErrorMessage = o.Message()
	default:
		next.Status = StatusError
		next.ErrorMessage = msgMissingOutcome
	}
	return next
}
