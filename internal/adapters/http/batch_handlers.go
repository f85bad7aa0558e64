package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/usecase"
)

const (
	maxUploadBytes   = 32 << 20
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	pdfContentType   = "application/pdf"
	multipartMemory  = 8 << 20
	defaultTextLabel = "pasted text"
)

type loadRequest struct {
	Identifiers []string `json:"identifiers"`
}

type runResponse struct {
	Status   string         `json:"status"`
	RunID    string         `json:"run_id"`
	Kind     domain.RunKind `json:"kind"`
	Eligible int            `json:"eligible"`
}

func (rt *Router) getBatch(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.deps.Batch.Snapshot())
}

func (rt *Router) loadItems(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	source, identifiers, err := rt.readIdentifiers(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := rt.deps.Batch.Load(r.Context(), source, identifiers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (rt *Router) readIdentifiers(r *http.Request) (string, []string, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", nil, domain.WrapError(domain.ErrInvalidInput, "load items", fmt.Errorf("content type: %w", err))
	}
	source := strings.TrimSpace(r.URL.Query().Get("source"))

	switch mediaType {
	case "application/json":
		var req loadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", nil, domain.WrapError(domain.ErrInvalidInput, "load items", errors.New("invalid json"))
		}
		if source == "" {
			source = "api"
		}
		return source, req.Identifiers, nil

	case "text/plain":
		identifiers, err := rt.deps.Text.ReadIdentifiers(r.Context(), r.Body)
		if err != nil {
			return "", nil, err
		}
		if source == "" {
			source = defaultTextLabel
		}
		return source, identifiers, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return "", nil, domain.WrapError(domain.ErrInvalidInput, "load items", fmt.Errorf("parse multipart form: %w", err))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, domain.WrapError(domain.ErrInvalidInput, "load items", errors.New("multipart field 'file' is required"))
		}
		defer file.Close()

		reader := rt.deps.Text
		if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
			reader = rt.deps.Workbooks
		}
		identifiers, err := reader.ReadIdentifiers(r.Context(), file)
		if err != nil {
			return "", nil, err
		}
		if source == "" {
			source = header.Filename
		}
		return source, identifiers, nil
	}
	return "", nil, domain.WrapError(domain.ErrInvalidInput, "load items", fmt.Errorf("unsupported content type %q", mediaType))
}

func (rt *Router) removeItem(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rt.deps.Batch.Remove(r.Context(), index); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.deps.Batch.Snapshot())
}

func (rt *Router) getItemDocument(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}
	identifier, document, err := rt.deps.Batch.Document(index)
	if err != nil {
		writeError(w, err)
		return
	}
	attachment(w, pdfContentType, usecase.DocumentKey(identifier))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(document)
}

func (rt *Router) runBatch(w http.ResponseWriter, r *http.Request) {
	plan, err := rt.startRun(requestIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{
		Status:   "started",
		RunID:    plan.RunID,
		Kind:     plan.Kind,
		Eligible: plan.Selected,
	})
}

func (rt *Router) resetBatch(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Batch.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.deps.Batch.Snapshot())
}

func (rt *Router) exportReport(w http.ResponseWriter, r *http.Request) {
	key, err := rt.deps.Reports.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (rt *Router) downloadReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	filename, err := rt.deps.Reports.WriteTo(r.Context(), &buf)
	if err != nil {
		writeError(w, err)
		return
	}
	attachment(w, xlsxContentType, filename)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, &buf)
}

func (rt *Router) exportDocuments(w http.ResponseWriter, r *http.Request) {
	result, err := rt.deps.Documents.ExportAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func pathIndex(r *http.Request) (int, error) {
	var index int
	err := runtime.BindStyledParameterWithOptions("simple", "index", r.PathValue("index"), &index, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse index", err)
	}
	return index, nil
}
