package pdfbundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

var disableConfigDir sync.Once

// Bundler merges receipts into a single PDF, in the order given.
type Bundler struct {
	conf *model.Configuration
}

func New() *Bundler {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Bundler{conf: conf}
}

func (b *Bundler) Bundle(ctx context.Context, documents [][]byte, w io.Writer) error {
	if len(documents) == 0 {
		return domain.WrapError(domain.ErrNothingToDo, "bundle receipts", errors.New("no documents to merge"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(documents) == 1 {
		_, err := w.Write(documents[0])
		return err
	}

	readers := make([]io.ReadSeeker, len(documents))
	for i, doc := range documents {
		readers[i] = bytes.NewReader(doc)
	}
	if err := api.MergeRaw(readers, w, false, b.conf); err != nil {
		return fmt.Errorf("merge %d receipts: %w", len(documents), err)
	}
	return nil
}
