package domain

import "time"

// PaymentDetails is the metadata the authority returns for a PRN.
type PaymentDetails struct {
	PRN            string `json:"prn,omitempty"`
	Amount         string `json:"amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
	PayerName      string `json:"payer_name,omitempty"`
	Narration      string `json:"narration,omitempty"`
	IssueDate      string `json:"issue_date,omitempty"`
	SettlementDate string `json:"settlement_date,omitempty"`
	PageCount      int    `json:"page_count,omitempty"`
}

// ItemRecord tracks one identifier across batch runs. Records are replaced as
// a whole on every attempt; see ApplyOutcome.
type ItemRecord struct {
	Identifier     string          `json:"identifier"`
	Status         ItemStatus      `json:"status"`
	Document       []byte          `json:"-"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Details        *PaymentDetails `json:"details,omitempty"`
	AttemptCount   int             `json:"attempt_count"`
	FirstAttemptAt *time.Time      `json:"first_attempt_at,omitempty"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
}

func NewItemRecord(identifier string) ItemRecord {
	return ItemRecord{
		Identifier: identifier,
		Status:     StatusPending,
	}
}

// Reset returns the record as it was right after intake.
func (r ItemRecord) Reset() ItemRecord {
	return NewItemRecord(r.Identifier)
}

func (r ItemRecord) HasDocument() bool {
	return len(r.Document) > 0
}

// Retries is the number of attempts beyond the first one.
func (r ItemRecord) Retries() int {
	if r.AttemptCount <= 1 {
		return 0
	}
	return r.AttemptCount - 1
}

// Clone returns a deep copy that shares no memory with r.
func (r ItemRecord) Clone() ItemRecord {
	out := r
	if r.Document != nil {
		out.Document = append([]byte(nil), r.Document...)
	}
	if r.Details != nil {
		details := *r.Details
		out.Details = &details
	}
	out.FirstAttemptAt = cloneTime(r.FirstAttemptAt)
	out.LastAttemptAt = cloneTime(r.LastAttemptAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
