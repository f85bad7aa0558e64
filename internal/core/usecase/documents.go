package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/ports"
)

// DocumentExportUseCase writes every retrieved receipt as <prn>.pdf and,
// when a bundler is configured, one merged PDF next to them.
type DocumentExportUseCase struct {
	session ports.Session
	storage ports.ObjectStorage
	bundler ports.DocumentBundler
	now     func() time.Time
}

func NewDocumentExportUseCase(session ports.Session, storage ports.ObjectStorage, bundler ports.DocumentBundler) *DocumentExportUseCase {
	return &DocumentExportUseCase{
		session: session,
		storage: storage,
		bundler: bundler,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *DocumentExportUseCase) ExportAll(ctx context.Context) (domain.DocumentExportResult, error) {
	var result domain.DocumentExportResult
	if uc.storage == nil {
		return result, fmt.Errorf("export documents: object storage is not configured")
	}

	snap := uc.session.Snapshot()
	var documents [][]byte
	used := make(map[string]bool, len(snap.Items))
	for _, item := range snap.Items {
		if item.Status != domain.StatusPaid || !item.HasDocument() {
			continue
		}
		key := uniqueDocumentKey(used, item.Identifier)
		if err := uc.storage.Save(ctx, key, bytes.NewReader(item.Document)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.Identifier, err))
			continue
		}
		result.Saved = append(result.Saved, key)
		documents = append(documents, item.Document)
	}
	if len(result.Saved) == 0 && len(result.Errors) == 0 {
		return result, domain.WrapError(domain.ErrNothingToDo, "export documents", errors.New("no paid PRNs with documents"))
	}
	if len(result.Saved) == 0 {
		return result, fmt.Errorf("export documents: every save failed: %s", strings.Join(result.Errors, "; "))
	}

	if uc.bundler != nil {
		bundleKey := fmt.Sprintf("PRN_Receipts_%s.pdf", uc.now().Format(reportTimestampLayout))
		if err := uc.saveBundle(ctx, bundleKey, documents); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("bundle: %v", err))
		} else {
			result.Bundle = bundleKey
		}
	}

	uc.session.AppendHistory(ctx, domain.ActionDocumentsExported, fmt.Sprintf("Saved %d PDF files", len(result.Saved)))
	slog.Info("documents_exported", "saved", len(result.Saved), "errors", len(result.Errors), "bundle", result.Bundle)
	return result, nil
}

func (uc *DocumentExportUseCase) saveBundle(ctx context.Context, key string, documents [][]byte) error {
	var buf bytes.Buffer
	if err := uc.bundler.Bundle(ctx, documents, &buf); err != nil {
		return err
	}
	return uc.storage.Save(ctx, key, &buf)
}

// DocumentKey is the storage name of a receipt.
func DocumentKey(identifier string) string {
	return sanitizeFilename(identifier) + ".pdf"
}

// uniqueDocumentKey suffixes _2, _3, ... when identifiers fold to a key
// already taken in this export. Storage is create-only.
func uniqueDocumentKey(used map[string]bool, identifier string) string {
	base := sanitizeFilename(identifier)
	key := base + ".pdf"
	for n := 2; used[key]; n++ {
		key = fmt.Sprintf("%s_%d.pdf", base, n)
	}
	used[key] = true
	return key
}

// sanitizeFilename folds everything outside [A-Za-z0-9_-] to '_', path
// separators included.
func sanitizeFilename(name string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	if strings.Trim(base, "_") == "" {
		return "receipt"
	}
	return base
}
