package domain

// Progress is the cursor of the run in flight, if any.
type Progress struct {
	RunID   string  `json:"run_id,omitempty"`
	Kind    RunKind `json:"kind,omitempty"`
	Running bool    `json:"running"`
	// Current is 1-based within the eligible set; Index points into Items
	// and is -1 when idle.
	Current int `json:"current"`
	Total   int `json:"total"`
	Index   int `json:"index"`
}

// Snapshot is an immutable copy of the session handed to collaborators.
type Snapshot struct {
	Items    []ItemRecord   `json:"items"`
	History  []HistoryEntry `json:"history"`
	Progress Progress       `json:"progress"`
	Message  string         `json:"message"`
	Summary  Summary        `json:"summary"`
}

// NewSnapshot deep-copies the inputs.
func NewSnapshot(items []ItemRecord, history []HistoryEntry, progress Progress, message string) Snapshot {
	copied := make([]ItemRecord, len(items))
	for i, item := range items {
		copied[i] = item.Clone()
	}
	return Snapshot{
		Items:    copied,
		History:  append([]HistoryEntry(nil), history...),
		Progress: progress,
		Message:  message,
		Summary:  Summarize(copied),
	}
}
