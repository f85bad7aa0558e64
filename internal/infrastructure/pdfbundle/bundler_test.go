package pdfbundle

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

// onePagePDF builds a minimal, structurally valid single-page PDF.
func onePagePDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Resources << >> >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestBundleMergesEveryReceipt(t *testing.T) {
	bundler := New()
	var out bytes.Buffer
	docs := [][]byte{onePagePDF(), onePagePDF(), onePagePDF()}

	if err := bundler.Bundle(context.Background(), docs, &out); err != nil {
		t.Fatalf("Bundle() error = %v", err)
	}
	pages, err := api.PageCount(bytes.NewReader(out.Bytes()), bundler.conf)
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages, got %d", pages)
	}
}

func TestBundleWithoutDocuments(t *testing.T) {
	var out bytes.Buffer
	if err := New().Bundle(context.Background(), nil, &out); !domain.IsKind(err, domain.ErrNothingToDo) {
		t.Fatalf("expected nothing-to-do, got %v", err)
	}
}
