package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/ports"
)

// BatchUseCase owns the verification session: the item list, the history log
// and the cursor of the run in flight. Runs are strictly sequential; readers
// only ever see deep copies.
type BatchUseCase struct {
	verifier  ports.PaymentVerifier
	publisher ports.SnapshotPublisher
	pacer     ports.Pacer
	observer  ports.BatchObserver

	now      func() time.Time
	newRunID func() string

	mu       sync.Mutex
	items    []domain.ItemRecord
	history  []domain.HistoryEntry
	progress domain.Progress
	message  string
}

func NewBatchUseCase(
	verifier ports.PaymentVerifier,
	publisher ports.SnapshotPublisher,
	pacer ports.Pacer,
	observer ports.BatchObserver,
) *BatchUseCase {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if pacer == nil {
		pacer = NewDelayPacer(0)
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &BatchUseCase{
		verifier:  verifier,
		publisher: publisher,
		pacer:     pacer,
		observer:  observer,
		now:       func() time.Time { return time.Now().UTC() },
		newRunID:  uuid.NewString,
		progress:  idleProgress(),
	}
}

// Load replaces the session with freshly created pending items.
func (uc *BatchUseCase) Load(ctx context.Context, source string, identifiers []string) (domain.Snapshot, error) {
	cleaned := normalizeIdentifiers(identifiers)
	if len(cleaned) == 0 {
		return domain.Snapshot{}, domain.WrapError(domain.ErrInvalidInput, "load identifiers", errors.New("no identifiers found in input"))
	}

	uc.mu.Lock()
	if uc.progress.Running {
		uc.mu.Unlock()
		return domain.Snapshot{}, errRunInProgress("load identifiers")
	}
	items := make([]domain.ItemRecord, len(cleaned))
	for i, id := range cleaned {
		items[i] = domain.NewItemRecord(id)
	}
	uc.items = items
	uc.history = nil
	uc.appendHistoryLocked(domain.ActionIntakeLoaded, fmt.Sprintf("Loaded %d PRNs from %s", len(items), sourceLabel(source)))
	uc.message = fmt.Sprintf("Loaded %d PRNs", len(items))
	snap := uc.snapshotLocked()
	uc.mu.Unlock()

	slog.Info("intake_loaded", "source", sourceLabel(source), "count", len(items))
	uc.publish(ctx, snap)
	return snap, nil
}

// ProcessAll attempts every eligible item once, in sequence order, pausing
// between items. A failed item never stops the run.
func (uc *BatchUseCase) ProcessAll(ctx context.Context) (domain.RunResult, error) {
	run, err := uc.Begin(ctx)
	if err != nil {
		return domain.RunResult{}, err
	}
	return run.Execute(ctx)
}

// BatchRun is a run that holds the session but has not verified anything
// yet. Execute must be called exactly once to release the session.
type BatchRun struct {
	uc          *BatchUseCase
	run         domain.RunResult
	eligible    []int
	alreadyDone int
	executed    bool
}

// Begin selects the eligible items and marks the session running before it
// returns, so no mutation can slip in between the decision and the run.
func (uc *BatchUseCase) Begin(ctx context.Context) (ports.BatchRun, error) {
	if uc.verifier == nil {
		return nil, fmt.Errorf("process batch: payment verifier is not configured")
	}

	uc.mu.Lock()
	if uc.progress.Running {
		uc.mu.Unlock()
		return nil, errRunInProgress("process batch")
	}
	if len(uc.items) == 0 {
		uc.mu.Unlock()
		return nil, domain.WrapError(domain.ErrNothingToDo, "process batch", errors.New("no PRNs loaded"))
	}
	eligible := domain.EligibleIndices(uc.items)
	if len(eligible) == 0 {
		uc.message = "All PRNs have already been processed. Load new PRNs or reset to verify again."
		uc.mu.Unlock()
		return nil, domain.WrapError(domain.ErrNothingToDo, "process batch", errors.New("no eligible PRNs"))
	}

	br := &BatchRun{
		uc: uc,
		run: domain.RunResult{
			RunID:    uc.newRunID(),
			Kind:     domain.ClassifyRun(uc.items),
			Selected: len(eligible),
		},
		eligible:    eligible,
		alreadyDone: domain.Summarize(uc.items).Settled(),
	}
	uc.progress = domain.Progress{
		RunID:   br.run.RunID,
		Kind:    br.run.Kind,
		Running: true,
		Total:   len(eligible),
		Index:   -1,
	}
	uc.message = startMessage(br.run.Kind, len(eligible), br.alreadyDone)
	uc.appendHistoryLocked(domain.ActionBatchStarted, startDetail(br.run.Kind, len(eligible), br.alreadyDone))
	snap := uc.snapshotLocked()
	uc.mu.Unlock()

	slog.Info("batch_started", "run_id", br.run.RunID, "kind", br.run.Kind, "eligible", len(eligible), "already_completed", br.alreadyDone)
	uc.publish(ctx, snap)
	return br, nil
}

// Plan reports the run as selected by Begin.
func (r *BatchRun) Plan() domain.RunResult {
	return r.run
}

func (r *BatchRun) Execute(ctx context.Context) (domain.RunResult, error) {
	if r.executed {
		return r.run, errors.New("process batch: run already executed")
	}
	r.executed = true

	uc := r.uc
	run := r.run
	started := time.Now()
	uc.observer.StartRun(run.Kind)

	for pos, idx := range r.eligible {
		if ctx.Err() != nil {
			run.Interrupted = true
			break
		}
		uc.attempt(ctx, run, pos, idx, r.alreadyDone)
		run.Attempted++

		if pos == len(r.eligible)-1 {
			break
		}
		if err := uc.pacer.Pause(ctx); err != nil {
			run.Interrupted = true
			break
		}
	}

	uc.mu.Lock()
	run.Summary = domain.Summarize(uc.items)
	uc.progress = idleProgress()
	uc.message = fmt.Sprintf("Processing complete! %d successful, %d failed", run.Summary.Paid, run.Summary.Failed())
	uc.appendHistoryLocked(domain.ActionBatchCompleted, completedDetail(run))
	snap := uc.snapshotLocked()
	uc.mu.Unlock()

	uc.observer.FinishRun(run, time.Since(started))
	slog.Info("batch_completed",
		"run_id", run.RunID,
		"attempted", run.Attempted,
		"interrupted", run.Interrupted,
		"paid", run.Summary.Paid,
		"unpaid", run.Summary.Unpaid,
		"failed", run.Summary.Failed(),
		"pending", run.Summary.Pending,
	)
	uc.publish(context.WithoutCancel(ctx), snap)

	if run.Interrupted {
		return run, fmt.Errorf("process batch interrupted after %d of %d items: %w", run.Attempted, run.Selected, context.Cause(ctx))
	}
	return run, nil
}

func (uc *BatchUseCase) attempt(ctx context.Context, run domain.RunResult, pos, idx, alreadyDone int) {
	uc.mu.Lock()
	rec := uc.items[idx]
	uc.progress.Current = pos + 1
	uc.progress.Index = idx
	uc.message = itemMessage(pos+1, run.Selected, rec.Identifier, alreadyDone)
	uc.mu.Unlock()

	attemptAt := uc.now()
	started := time.Now()
	outcome := uc.verifier.Verify(ctx, rec.Identifier)
	elapsed := time.Since(started)
	next := domain.ApplyOutcome(rec, outcome, attemptAt)

	uc.mu.Lock()
	uc.items[idx] = next
	snap := uc.snapshotLocked()
	uc.mu.Unlock()

	uc.observer.ObserveItem(next.Status, elapsed)
	logAttrs := []any{
		"run_id", run.RunID,
		"index", idx,
		"prn", next.Identifier,
		"status", next.Status,
		"attempt", next.AttemptCount,
		"duration_ms", float64(elapsed.Microseconds()) / 1000.0,
	}
	if next.Status.Failed() {
		slog.Warn("item_verified", append(logAttrs, "error", next.ErrorMessage)...)
	} else {
		slog.Info("item_verified", logAttrs...)
	}
	uc.publish(ctx, snap)
}

// Remove deletes the item at index.
func (uc *BatchUseCase) Remove(ctx context.Context, index int) error {
	uc.mu.Lock()
	if uc.progress.Running {
		uc.mu.Unlock()
		return errRunInProgress("remove item")
	}
	if index < 0 || index >= len(uc.items) {
		uc.mu.Unlock()
		return domain.WrapError(domain.ErrNotFound, "remove item", fmt.Errorf("index %d out of range [0,%d)", index, len(uc.items)))
	}
	removed := uc.items[index]
	uc.items = append(uc.items[:index:index], uc.items[index+1:]...)
	uc.appendHistoryLocked(domain.ActionItemRemoved, fmt.Sprintf("Removed PRN %s (row %d)", removed.Identifier, index+1))
	uc.message = fmt.Sprintf("Removed PRN %s", removed.Identifier)
	snap := uc.snapshotLocked()
	uc.mu.Unlock()

	slog.Info("item_removed", "index", index, "prn", removed.Identifier)
	uc.publish(ctx, snap)
	return nil
}

// Reset puts every item back to its freshly loaded state.
func (uc *BatchUseCase) Reset(ctx context.Context) error {
	uc.mu.Lock()
	if uc.progress.Running {
		uc.mu.Unlock()
		return errRunInProgress("reset items")
	}
	for i := range uc.items {
		uc.items[i] = uc.items[i].Reset()
	}
	uc.appendHistoryLocked(domain.ActionReset, "Reset all PRN statuses to pending")
	uc.message = "Reset complete - ready to process all PRNs again"
	snap := uc.snapshotLocked()
	uc.mu.Unlock()

	slog.Info("items_reset", "count", len(snap.Items))
	uc.publish(ctx, snap)
	return nil
}

// AppendHistory records an event raised outside the orchestrator, such as an
// export.
func (uc *BatchUseCase) AppendHistory(ctx context.Context, action domain.HistoryAction, detail string) {
	uc.mu.Lock()
	uc.appendHistoryLocked(action, detail)
	snap := uc.snapshotLocked()
	uc.mu.Unlock()

	uc.publish(ctx, snap)
}

func (uc *BatchUseCase) Snapshot() domain.Snapshot {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.snapshotLocked()
}

// Document returns a copy of the receipt stored on the item at index.
func (uc *BatchUseCase) Document(index int) (string, []byte, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if index < 0 || index >= len(uc.items) {
		return "", nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("index %d out of range [0,%d)", index, len(uc.items)))
	}
	item := uc.items[index]
	if !item.HasDocument() {
		return item.Identifier, nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("no document for PRN %s", item.Identifier))
	}
	return item.Identifier, append([]byte(nil), item.Document...), nil
}

func (uc *BatchUseCase) appendHistoryLocked(action domain.HistoryAction, detail string) {
	uc.history = append(uc.history, domain.HistoryEntry{
		Timestamp: uc.now(),
		Action:    action,
		Detail:    detail,
	})
}

func (uc *BatchUseCase) snapshotLocked() domain.Snapshot {
	return domain.NewSnapshot(uc.items, uc.history, uc.progress, uc.message)
}

func (uc *BatchUseCase) publish(ctx context.Context, snap domain.Snapshot) {
	if err := uc.publisher.Publish(ctx, snap); err != nil {
		slog.Warn("snapshot_publish_failed", "run_id", snap.Progress.RunID, "error", err)
	}
}

func idleProgress() domain.Progress {
	return domain.Progress{Index: -1}
}

func errRunInProgress(operation string) error {
	return domain.WrapError(domain.ErrBatchRunning, operation, errors.New("wait for the current run to finish"))
}

func normalizeIdentifiers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	return out
}

func sourceLabel(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return "input"
	}
	return source
}

func startMessage(kind domain.RunKind, total, alreadyDone int) string {
	if kind == domain.RunRetry {
		return fmt.Sprintf("Retrying %d failed/pending PRNs (%d already completed)...", total, alreadyDone)
	}
	return fmt.Sprintf("Starting to process %d PRNs...", total)
}

func startDetail(kind domain.RunKind, total, alreadyDone int) string {
	if kind == domain.RunRetry {
		return fmt.Sprintf("Retrying %d PRNs (%d already completed)", total, alreadyDone)
	}
	return fmt.Sprintf("Processing %d PRNs", total)
}

func itemMessage(current, total int, identifier string, alreadyDone int) string {
	msg := fmt.Sprintf("Processing PRN %d of %d: %s", current, total, identifier)
	if alreadyDone > 0 {
		msg += fmt.Sprintf(" (%d already completed)", alreadyDone)
	}
	return msg
}

func completedDetail(run domain.RunResult) string {
	s := run.Summary
	detail := fmt.Sprintf("Completed: %d paid, %d unpaid, %d failed, %d pending", s.Paid, s.Unpaid, s.Failed(), s.Pending)
	if run.Interrupted {
		detail += fmt.Sprintf(" (interrupted after %d of %d)", run.Attempted, run.Selected)
	}
	return detail
}
