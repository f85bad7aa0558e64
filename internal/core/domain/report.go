package domain

import "time"

// ReportRow is one line of the results sheet.
type ReportRow struct {
	Row            int
	Identifier     string
	Status         ItemStatus
	Attempts       int
	FirstAttemptAt *time.Time
	LastAttemptAt  *time.Time
	ErrorMessage   string
	HasDocument    bool
	Details        PaymentDetails
}

// Report is the read-only export of a session.
type Report struct {
	Rows       []ReportRow
	Summary    Summary
	History    []HistoryEntry
	ExportedAt time.Time
}

// DocumentExportResult lists what a bulk receipt export wrote.
type DocumentExportResult struct {
	Saved  []string `json:"saved"`
	Errors []string `json:"errors,omitempty"`
	Bundle string   `json:"bundle,omitempty"`
}
