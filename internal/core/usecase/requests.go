package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/ports"
)

// Request outcomes reported to the recorder.
const (
	RequestCompleted   = "completed"
	RequestInterrupted = "interrupted"
	RequestRejected    = "rejected"
	RequestBusy        = "busy"
	RequestFailed      = "failed"
)

// RequestUseCase serves queued batch requests: each one replaces the session
// and runs it to completion.
type RequestUseCase struct {
	batch  ports.BatchService
	record func(result string)
}

func NewRequestUseCase(batch ports.BatchService, record func(result string)) *RequestUseCase {
	if record == nil {
		record = func(string) {}
	}
	return &RequestUseCase{batch: batch, record: record}
}

func (uc *RequestUseCase) Handle(ctx context.Context, requestID, source string, identifiers []string) (domain.RunResult, error) {
	if source == "" {
		source = fmt.Sprintf("queued request %s", requestID)
	}
	if _, err := uc.batch.Load(ctx, source, identifiers); err != nil {
		uc.record(requestResult(err))
		return domain.RunResult{}, fmt.Errorf("request %s: %w", requestID, err)
	}

	result, err := uc.batch.ProcessAll(ctx)
	outcome := requestResult(err)
	uc.record(outcome)
	slog.Info("batch_request_handled",
		"request_id", requestID,
		"result", outcome,
		"attempted", result.Attempted,
		"paid", result.Summary.Paid,
		"failed", result.Summary.Failed(),
	)
	if err != nil {
		return result, fmt.Errorf("request %s: %w", requestID, err)
	}
	return result, nil
}

func requestResult(err error) string {
	switch {
	case err == nil:
		return RequestCompleted
	case domain.IsKind(err, domain.ErrBatchRunning):
		return RequestBusy
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrNothingToDo):
		return RequestRejected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RequestInterrupted
	default:
		return RequestFailed
	}
}
