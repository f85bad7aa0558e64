package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/ports"
)

const reportTimestampLayout = "2006-01-02T15-04-05"

// BuildReport projects a snapshot into report rows. It is a pure read.
func BuildReport(snap domain.Snapshot, exportedAt time.Time) domain.Report {
	rows := make([]domain.ReportRow, len(snap.Items))
	for i, item := range snap.Items {
		row := domain.ReportRow{
			Row:            i + 1,
			Identifier:     item.Identifier,
			Status:         item.Status,
			Attempts:       item.AttemptCount,
			FirstAttemptAt: item.FirstAttemptAt,
			LastAttemptAt:  item.LastAttemptAt,
			ErrorMessage:   item.ErrorMessage,
			HasDocument:    item.HasDocument(),
		}
		if item.Details != nil {
			row.Details = *item.Details
		}
		rows[i] = row
	}
	return domain.Report{
		Rows:       rows,
		Summary:    domain.Summarize(snap.Items),
		History:    append([]domain.HistoryEntry(nil), snap.History...),
		ExportedAt: exportedAt,
	}
}

type ReportUseCase struct {
	session  ports.Session
	renderer ports.ReportRenderer
	storage  ports.ObjectStorage
	now      func() time.Time
}

func NewReportUseCase(session ports.Session, renderer ports.ReportRenderer, storage ports.ObjectStorage) *ReportUseCase {
	return &ReportUseCase{
		session:  session,
		renderer: renderer,
		storage:  storage,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Export renders the workbook and stores it, returning the storage key.
func (uc *ReportUseCase) Export(ctx context.Context) (string, error) {
	if uc.storage == nil {
		return "", fmt.Errorf("export report: object storage is not configured")
	}
	now := uc.now()
	body, err := uc.render(now)
	if err != nil {
		return "", err
	}

	key := reportFilename(now)
	if err := uc.storage.Save(ctx, key, bytes.NewReader(body)); err != nil {
		return "", fmt.Errorf("save report %s: %w", key, err)
	}

	uc.session.AppendHistory(ctx, domain.ActionReportExported, fmt.Sprintf("Exported results to %s", key))
	slog.Info("report_exported", "key", key, "bytes", len(body))
	return key, nil
}

// WriteTo streams the workbook to w and returns the suggested filename.
func (uc *ReportUseCase) WriteTo(ctx context.Context, w io.Writer) (string, error) {
	now := uc.now()
	body, err := uc.render(now)
	if err != nil {
		return "", err
	}

	filename := reportFilename(now)
	if _, err := w.Write(body); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	uc.session.AppendHistory(ctx, domain.ActionReportExported, fmt.Sprintf("Exported results to %s", filename))
	slog.Info("report_downloaded", "filename", filename, "bytes", len(body))
	return filename, nil
}

func (uc *ReportUseCase) render(now time.Time) ([]byte, error) {
	snap := uc.session.Snapshot()
	if len(snap.Items) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export report", errors.New("no data to export, load and process PRNs first"))
	}

	var buf bytes.Buffer
	if err := uc.renderer.Render(&buf, BuildReport(snap, now)); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

func reportFilename(now time.Time) string {
	return fmt.Sprintf("PRN_Results_%s.xlsx", now.UTC().Format(reportTimestampLayout))
}
