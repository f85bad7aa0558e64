package xlsx

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

const (
	SheetResults = "Results"
	SheetSummary = "Summary"
	SheetHistory = "Processing History"

	timestampLayout = "2006-01-02 15:04:05"
)

var (
	resultsHeader = []any{
		"Row", "PRN", "Status", "Attempts", "First Processed", "Last Attempt", "Error Details", "Has PDF",
		"Amount", "Currency", "Payer", "Narration", "PRN Date", "Receipt Date", "Pages",
	}
	resultsWidths = []float64{6, 16, 10, 10, 20, 20, 50, 8, 14, 10, 30, 30, 14, 14, 8}
	summaryHeader = []any{"Metric", "Value"}
	historyHeader = []any{"Step", "Timestamp", "Action", "Details"}
)

// Renderer writes a three-sheet results workbook.
type Renderer struct {
	location *time.Location
}

// NewRenderer formats timestamps in loc; nil means UTC.
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{location: loc}
}

func (r *Renderer) Render(w io.Writer, report domain.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with Sheet1; rename it rather than leave it empty.
	if err := f.SetSheetName(f.GetSheetName(0), SheetResults); err != nil {
		return fmt.Errorf("rename default sheet: %w", err)
	}
	for _, name := range []string{SheetSummary, SheetHistory} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := r.writeResults(f, report.Rows, headerStyle); err != nil {
		return err
	}
	if err := r.writeSummary(f, report, headerStyle); err != nil {
		return err
	}
	if err := r.writeHistory(f, report.History, headerStyle); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (r *Renderer) writeResults(f *excelize.File, rows []domain.ReportRow, headerStyle int) error {
	if err := writeHeader(f, SheetResults, resultsHeader, headerStyle); err != nil {
		return err
	}
	for i, width := range resultsWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetResults, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetPanes(SheetResults, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	for i, row := range rows {
		errorDetails := row.ErrorMessage
		if errorDetails == "" {
			errorDetails = "-"
		}
		hasPDF := "No"
		if row.HasDocument {
			hasPDF = "Yes"
		}
		var pages any = ""
		if row.Details.PageCount > 0 {
			pages = row.Details.PageCount
		}
		values := []any{
			row.Row,
			row.Identifier,
			row.Status.Label(),
			row.Attempts,
			r.formatTime(row.FirstAttemptAt),
			r.formatTime(row.LastAttemptAt),
			errorDetails,
			hasPDF,
			row.Details.Amount,
			row.Details.Currency,
			row.Details.PayerName,
			row.Details.Narration,
			row.Details.IssueDate,
			row.Details.SettlementDate,
			pages,
		}
		if err := writeRow(f, SheetResults, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) writeSummary(f *excelize.File, report domain.Report, headerStyle int) error {
	if err := writeHeader(f, SheetSummary, summaryHeader, headerStyle); err != nil {
		return err
	}
	s := report.Summary
	metrics := [][]any{
		{"Total PRNs", s.Total},
		{"Paid", s.Paid},
		{"Unpaid", s.Unpaid},
		{"Invalid", s.Invalid},
		{"Unknown", s.Unknown},
		{"Errors", s.Error},
		{"Pending", s.Pending},
		{"Total Retries", s.TotalRetries},
		{"Export Date", report.ExportedAt.In(r.location).Format(timestampLayout)},
	}
	for i, metric := range metrics {
		if err := writeRow(f, SheetSummary, i+2, metric); err != nil {
			return err
		}
	}
	return f.SetColWidth(SheetSummary, "A", "B", 20)
}

func (r *Renderer) writeHistory(f *excelize.File, history []domain.HistoryEntry, headerStyle int) error {
	if err := writeHeader(f, SheetHistory, historyHeader, headerStyle); err != nil {
		return err
	}
	for i, entry := range history {
		values := []any{i + 1, entry.Timestamp.In(r.location).Format(timestampLayout), entry.Action.Label(), entry.Detail}
		if err := writeRow(f, SheetHistory, i+2, values); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetHistory, "B", "C", 22); err != nil {
		return err
	}
	return f.SetColWidth(SheetHistory, "D", "D", 60)
}

func (r *Renderer) formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(r.location).Format(timestampLayout)
}

func writeHeader(f *excelize.File, sheet string, header []any, style int) error {
	if err := writeRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
