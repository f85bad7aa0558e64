package ports

import (
	"context"
	"io"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

// BatchService is the inbound contract for the verification session driven by
// a UI or CLI collaborator.
type BatchService interface {
	Load(ctx context.Context, source string, identifiers []string) (domain.Snapshot, error)
	ProcessAll(ctx context.Context) (domain.RunResult, error)
	Begin(ctx context.Context) (BatchRun, error)
	Remove(ctx context.Context, index int) error
	Reset(ctx context.Context) error
	Snapshot() domain.Snapshot
	Document(index int) (identifier string, document []byte, err error)
}

// BatchRun is a run that already holds the session. Execute verifies the
// selected items and releases the session.
type BatchRun interface {
	Plan() domain.RunResult
	Execute(ctx context.Context) (domain.RunResult, error)
}

// HistoryRecorder appends collaborator-side events to the run history.
type HistoryRecorder interface {
	AppendHistory(ctx context.Context, action domain.HistoryAction, detail string)
}

// SessionReader is the read side shared by exporters.
type SessionReader interface {
	Snapshot() domain.Snapshot
}

// ReportExporter turns the current session into a workbook.
type ReportExporter interface {
	Export(ctx context.Context) (key string, err error)
	WriteTo(ctx context.Context, w io.Writer) (filename string, err error)
}

// DocumentExporter writes every retrieved receipt to storage.
type DocumentExporter interface {
	ExportAll(ctx context.Context) (domain.DocumentExportResult, error)
}

// IdentifierVerifier runs a single one-shot check outside any session.
type IdentifierVerifier interface {
	VerifyOne(ctx context.Context, identifier string) (domain.ItemRecord, error)
}

// Session is what exporters need from the orchestrator.
type Session interface {
	SessionReader
	HistoryRecorder
}
