package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

// PaymentVerifier resolves one identifier against the remote authority. It
// never retries and never returns an error: every failure is an Outcome.
type PaymentVerifier interface {
	Verify(ctx context.Context, identifier string) domain.Outcome
}

// SnapshotPublisher receives a full copy of the session after every change a
// run makes.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot domain.Snapshot) error
}

// Pacer blocks between two consecutive verification attempts.
type Pacer interface {
	Pause(ctx context.Context) error
}

// BatchObserver receives run telemetry.
type BatchObserver interface {
	StartRun(kind domain.RunKind)
	ObserveItem(status domain.ItemStatus, duration time.Duration)
	FinishRun(result domain.RunResult, duration time.Duration)
}

// ObjectStorage stores exported reports and receipts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ReportRenderer encodes a report.
type ReportRenderer interface {
	Render(w io.Writer, report domain.Report) error
}

// DocumentBundler merges receipts into one document.
type DocumentBundler interface {
	Bundle(ctx context.Context, documents [][]byte, w io.Writer) error
}

// IdentifierReader parses collaborator input into identifiers.
type IdentifierReader interface {
	ReadIdentifiers(ctx context.Context, r io.Reader) ([]string, error)
}
