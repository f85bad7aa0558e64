package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/intake/plaintext"
	xlsxintake "github.com/kirillkom/prn-reconciler/internal/infrastructure/intake/xlsx"
)

func testReaders() inputReaders {
	return inputReaders{workbooks: xlsxintake.NewReader(), text: plaintext.NewReader()}
}

func TestReadInputFromText(t *testing.T) {
	source, ids, err := readInput(context.Background(), testReaders(), "", "A, B;C")
	if err != nil {
		t.Fatalf("readInput: %v", err)
	}
	if source != "command line" || strings.Join(ids, ",") != "A,B,C" {
		t.Fatalf("unexpected input: %q %v", source, ids)
	}
}

func TestReadInputFromFiles(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "prns.txt")
	if err := os.WriteFile(textPath, []byte("A\nB\n"), 0o644); err != nil {
		t.Fatalf("write text: %v", err)
	}
	source, ids, err := readInput(context.Background(), testReaders(), textPath, "")
	if err != nil {
		t.Fatalf("readInput text: %v", err)
	}
	if source != "prns.txt" || len(ids) != 2 {
		t.Fatalf("unexpected text input: %q %v", source, ids)
	}

	book := excelize.NewFile()
	_ = book.SetCellValue("Sheet1", "A1", "prn")
	_ = book.SetCellValue("Sheet1", "A2", "X1")
	bookPath := filepath.Join(dir, "prns.XLSX")
	if err := book.SaveAs(bookPath); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	_, ids, err = readInput(context.Background(), testReaders(), bookPath, "")
	if err != nil {
		t.Fatalf("readInput workbook: %v", err)
	}
	if len(ids) != 1 || ids[0] != "X1" {
		t.Fatalf("unexpected workbook input: %v", ids)
	}
}

func TestReadInputNeedsExactlyOneSource(t *testing.T) {
	if _, _, err := readInput(context.Background(), testReaders(), "", ""); err == nil {
		t.Fatalf("expected error without input")
	}
	if _, _, err := readInput(context.Background(), testReaders(), "a.txt", "A"); err == nil {
		t.Fatalf("expected error with both inputs")
	}
}

func TestRenderItems(t *testing.T) {
	out := renderItems([]domain.ItemRecord{
		{Identifier: "P1", Status: domain.StatusPaid, AttemptCount: 1, Details: &domain.PaymentDetails{Amount: "10.00", Currency: "ZMW"}},
		{Identifier: "P2", Status: domain.StatusInvalid, AttemptCount: 2, ErrorMessage: "PRN not found"},
	})
	for _, want := range []string{"P1", "10.00 ZMW", "P2", "PRN not found", "Attempts"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered table missing %q:\n%s", want, out)
		}
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	quiet := newProgressPrinter(&buf)
	_ = quiet.Publish(context.Background(), domain.Snapshot{Progress: domain.Progress{Running: true, Current: 1, Total: 2}})
	if buf.Len() != 0 {
		t.Fatalf("non-terminal writer must stay silent, got %q", buf.String())
	}

	loud := &progressPrinter{w: &buf, enabled: true}
	running := domain.Snapshot{Progress: domain.Progress{Running: true, Current: 1, Total: 2}, Message: "Processing A"}
	_ = loud.Publish(context.Background(), running)
	_ = loud.Publish(context.Background(), running)
	_ = loud.Publish(context.Background(), domain.Snapshot{})

	if got := strings.Count(buf.String(), "[1/2] Processing A"); got != 1 {
		t.Fatalf("expected one progress line, got %d in %q", got, buf.String())
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("expected newline once the run stops, got %q", buf.String())
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"verify", "check", "submit", "mcp"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %s not registered: %v", name, err)
		}
	}

	root.SetArgs([]string{"check"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Fatalf("check without PRNs must fail")
	}
}
