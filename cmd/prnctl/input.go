package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/prn-reconciler/internal/core/ports"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/intake/plaintext"
)

type inputReaders struct {
	workbooks ports.IdentifierReader
	text      ports.IdentifierReader
}

// readInput resolves --input or --text into identifiers and a source label.
func readInput(ctx context.Context, readers inputReaders, path, text string) (string, []string, error) {
	path = strings.TrimSpace(path)
	switch {
	case path != "" && text != "":
		return "", nil, errors.New("use either --input or --text, not both")
	case text != "":
		return "command line", plaintext.Split(text), nil
	case path == "":
		return "", nil, errors.New("one of --input or --text is required")
	}

	file, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	reader := readers.text
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		reader = readers.workbooks
	}
	ids, err := reader.ReadIdentifiers(ctx, file)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(path), ids, nil
}
