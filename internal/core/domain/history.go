package domain

import (
	"strings"
	"time"
)

// HistoryAction tags an entry of the run history log.
type HistoryAction string

const (
	ActionIntakeLoaded      HistoryAction = "intake-loaded"
	ActionBatchStarted      HistoryAction = "batch-started"
	ActionBatchCompleted    HistoryAction = "batch-completed"
	ActionItemRemoved       HistoryAction = "item-removed"
	ActionReportExported    HistoryAction = "report-exported"
	ActionDocumentsExported HistoryAction = "documents-exported"
	ActionReset             HistoryAction = "reset"
)

func (a HistoryAction) IsValid() bool {
	switch a {
	case ActionIntakeLoaded, ActionBatchStarted, ActionBatchCompleted, ActionItemRemoved,
		ActionReportExported, ActionDocumentsExported, ActionReset:
		return true
	}
	return false
}

// Label renders the action for humans, e.g. "BATCH STARTED".
func (a HistoryAction) Label() string {
	return strings.ToUpper(strings.ReplaceAll(string(a), "-", " "))
}

// HistoryEntry is an append-only log line.
type HistoryEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Action    HistoryAction `json:"action"`
	Detail    string        `json:"detail"`
}
