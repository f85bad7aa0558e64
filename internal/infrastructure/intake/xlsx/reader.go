package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

const identifierHeader = "prn"

// Reader pulls identifiers from the first sheet of a workbook. The first row
// is a header; values come from the column titled PRN, falling back to the
// first non-empty cell of each row.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

func (Reader) ReadIdentifiers(_ context.Context, r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook", errors.New("workbook has no sheets"))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	column := headerColumn(rows[0])
	out := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if id := cellValue(row, column); id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

func headerColumn(header []string) int {
	for i, title := range header {
		if strings.EqualFold(strings.TrimSpace(title), identifierHeader) {
			return i
		}
	}
	return -1
}

func cellValue(row []string, column int) string {
	if column >= 0 && column < len(row) {
		if v := strings.TrimSpace(row[column]); v != "" {
			return v
		}
	}
	for _, cell := range row {
		if v := strings.TrimSpace(cell); v != "" {
			return v
		}
	}
	return ""
}
