package plaintext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

const maxInputBytes = 4 << 20

// Reader parses pasted identifier lists. Identifiers may be separated by
// newlines, commas, semicolons or tabs.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

func (Reader) ReadIdentifiers(_ context.Context, r io.Reader) ([]string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read pasted identifiers: %w", err)
	}
	if len(raw) > maxInputBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read pasted identifiers", fmt.Errorf("input exceeds %d bytes", maxInputBytes))
	}
	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read pasted identifiers", errors.New("input is not valid UTF-8 text"))
	}
	return Split(string(raw)), nil
}

// Split breaks text into trimmed, non-empty identifiers, keeping order and
// duplicates.
func Split(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '\n', '\r', ',', ';', '\t':
			return true
		}
		return false
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
