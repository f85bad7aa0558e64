package authority

import (
	"bytes"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

// pageCount returns the number of pages in a receipt, or 0 when the document
// cannot be parsed. The parser panics on some malformed inputs.
func pageCount(document []byte) (pages int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("receipt_inspect_panic", "recovered", r)
			pages = 0
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		slog.Debug("receipt_inspect_failed", "error", err)
		return 0
	}
	return reader.NumPage()
}
