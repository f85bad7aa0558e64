package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/prn-reconciler/internal/config"
	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/usecase"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/intake/plaintext"
	xlsxintake "github.com/kirillkom/prn-reconciler/internal/infrastructure/intake/xlsx"
)

type verifierFake struct {
	mu       sync.Mutex
	outcomes map[string]domain.Outcome
	release  chan struct{}
	entered  chan string
}

func (f *verifierFake) Verify(ctx context.Context, identifier string) domain.Outcome {
	if f.entered != nil {
		f.entered <- identifier
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.ErrorOutcome{Phase: domain.PhaseDetails, Reason: ctx.Err().Error()}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if out, ok := f.outcomes[identifier]; ok {
		return out
	}
	return domain.PaidOutcome{
		Document: []byte("%PDF-1.4 " + identifier),
		Details:  domain.PaymentDetails{PRN: identifier},
	}
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
	return nil
}

func (s *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

type rendererFake struct{}

func (rendererFake) Render(w io.Writer, report domain.Report) error {
	_, err := fmt.Fprintf(w, "rows=%d", len(report.Rows))
	return err
}

type bundlerFake struct{}

func (bundlerFake) Bundle(_ context.Context, documents [][]byte, w io.Writer) error {
	_, err := w.Write(bytes.Join(documents, nil))
	return err
}

type testEnv struct {
	router  *Router
	batch   *usecase.BatchUseCase
	storage *storageFake
}

func newTestHandler(t *testing.T, cfg config.Config, verifier *verifierFake) (http.Handler, *testEnv) {
	t.Helper()

	batch := usecase.NewBatchUseCase(verifier, nil, nil, nil)
	storage := &storageFake{objects: map[string][]byte{}}
	router := NewRouter(cfg, Dependencies{
		Batch:     batch,
		Reports:   usecase.NewReportUseCase(batch, rendererFake{}, storage),
		Documents: usecase.NewDocumentExportUseCase(batch, storage, bundlerFake{}),
		Workbooks: xlsxintake.NewReader(),
		Text:      plaintext.NewReader(),
	})
	handler, err := router.Handler()
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	t.Cleanup(router.Close)
	return handler, &testEnv{router: router, batch: batch, storage: storage}
}

func serve(handler http.Handler, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeSnapshot(t *testing.T, res *httptest.ResponseRecorder) domain.Snapshot {
	t.Helper()
	var snap domain.Snapshot
	if err := json.Unmarshal(res.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v (body %s)", err, res.Body.String())
	}
	return snap
}

func loadJSON(t *testing.T, handler http.Handler, ids ...string) domain.Snapshot {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{"identifiers": ids})
	res := serve(handler, http.MethodPost, "/v1/batch/items", "application/json", bytes.NewReader(payload))
	if res.Code != http.StatusCreated {
		t.Fatalf("load expected 201, got %d: %s", res.Code, res.Body.String())
	}
	return decodeSnapshot(t, res)
}

func waitIdle(t *testing.T, env *testEnv) domain.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := env.batch.Snapshot()
		if !snap.Progress.Running {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch run did not finish")
	return domain.Snapshot{}
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestHandler(t, config.Config{}, &verifierFake{})
	res := serve(handler, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected %s header", requestIDHeader)
	}
}

func TestLoadItemsFromJSON(t *testing.T) {
	handler, _ := newTestHandler(t, config.Config{}, &verifierFake{})
	snap := loadJSON(t, handler, " A ", "", "B")

	if len(snap.Items) != 2 || snap.Items[0].Identifier != "A" || snap.Items[1].Identifier != "B" {
		t.Fatalf("unexpected items: %+v", snap.Items)
	}
	if snap.Items[0].Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", snap.Items[0].Status)
	}

	res := serve(handler, http.MethodGet, "/v1/batch", "", nil)
	if got := decodeSnapshot(t, res); got.Summary.Total != 2 {
		t.Fatalf("expected 2 items in session, got %d", got.Summary.Total)
	}
}

func TestLoadItemsFromText(t *testing.T) {
	handler, _ := newTestHandler(t, config.Config{}, &verifierFake{})
	res := serve(handler, http.MethodPost, "/v1/batch/items?source=clipboard", "text/plain; charset=utf-8", strings.NewReader("A\nB, C\n"))
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	snap := decodeSnapshot(t, res)
	if len(snap.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(snap.Items))
	}
	if len(snap.History) != 1 || !strings.Contains(snap.History[0].Detail, "clipboard") {
		t.Fatalf("expected intake history naming the source, got %+v", snap.History)
	}
}

func TestLoadItemsFromWorkbookUpload(t *testing.T) {
	handler, _ := newTestHandler(t, config.Config{}, &verifierFake{})

	book := excelize.NewFile()
	_ = book.SetCellValue("Sheet1", "A1", "PRN")
	_ = book.SetCellValue("Sheet1", "A2", "118000000001")
	_ = book.SetCellValue("Sheet1", "A3", "118000000002")
	var workbook bytes.Buffer
	if err := book.Write(&workbook); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "prns.xlsx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(workbook.Bytes())
	_ = form.Close()

	res := serve(handler, http.MethodPost, "/v1/batch/items", form.FormDataContentType(), &body)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	snap := decodeSnapshot(t, res)
	if len(snap.Items) != 2 || snap.Items[1].Identifier != "118000000002" {
		t.Fatalf("unexpected items: %+v", snap.Items)
	}
}

func TestLoadItemsRejectsBadRequests(t *testing.T) {
	handler, _ := newTestHandler(t, config.Config{}, &verifierFake{})

	cases := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "empty list", contentType: "application/json", body: `{"identifiers":[]}`},
		{name: "wrong type", contentType: "application/json", body: `{"identifiers":"A"}`},
		{name: "only blanks", contentType: "application/json", body: `{"identifiers":[" ",""]}`},
		{name: "blank text", contentType: "text/plain", body: "\n\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := serve(handler, http.MethodPost, "/v1/batch/items", tc.contentType, strings.NewReader(tc.body))
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
		})
	}
}

func TestRemoveItem(t *testing.T) {
	handler, _ := newTestHandler(t, config.Config{}, &verifierFake{})
	loadJSON(t, handler, "A", "B", "C")

	res := serve(handler, http.MethodDelete, "/v1/batch/items/1", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	snap := decodeSnapshot(t, res)
	if len(snap.Items) != 2 || snap.Items[1].Identifier != "C" {
		t.Fatalf("unexpected items after remove: %+v", snap.Items)
	}

	if res := serve(handler, http.MethodDelete, "/v1/batch/items/7", "", nil); res.Code != http.StatusNotFound {
		t.Fatalf("out of range expected 404, got %d", res.Code)
	}
	if res := serve(handler, http.MethodDelete, "/v1/batch/items/abc", "", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric index expected 400, got %d", res.Code)
	}
}

func TestRunBatchProcessesInBackground(t *testing.T) {
	handler, env := newTestHandler(t, config.Config{}, &verifierFake{
		outcomes: map[string]domain.Outcome{
			"B": domain.UnpaidOutcome{Details: domain.PaymentDetails{PRN: "B"}},
		},
	})
	loadJSON(t, handler, "A", "B")

	res := serve(handler, http.MethodPost, "/v1/batch/run", "", nil)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var started runResponse
	if err := json.Unmarshal(res.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode run response: %v", err)
	}
	if started.Eligible != 2 || started.Kind != domain.RunInitial || started.RunID == "" {
		t.Fatalf("unexpected run response: %+v", started)
	}

	snap := waitIdle(t, env)
	if snap.Summary.Paid != 1 || snap.Summary.Unpaid != 1 {
		t.Fatalf("unexpected summary: %+v", snap.Summary)
	}

	doc := serve(handler, http.MethodGet, "/v1/batch/items/0/document", "", nil)
	if doc.Code != http.StatusOK {
		t.Fatalf("document expected 200, got %d", doc.Code)
	}
	if doc.Header().Get("Content-Type") != pdfContentType {
		t.Fatalf("unexpected content type %q", doc.Header().Get("Content-Type"))
	}
	if !strings.Contains(doc.Header().Get("Content-Disposition"), "A.pdf") {
		t.Fatalf("unexpected disposition %q", doc.Header().Get("Content-Disposition"))
	}
	if doc.Body.String() != "%PDF-1.4 A" {
		t.Fatalf("unexpected document body %q", doc.Body.String())
	}

	if res := serve(handler, http.MethodGet, "/v1/batch/items/1/document", "", nil); res.Code != http.StatusNotFound {
		t.Fatalf("unpaid item document expected 404, got %d", res.Code)
	}
	if res := serve(handler, http.MethodPost, "/v1/batch/run", "", nil); res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("settled batch expected 422, got %d", res.Code)
	}
}

func TestRunBatchRefusesConcurrentMutations(t *testing.T) {
	verifier := &verifierFake{entered: make(chan string, 1), release: make(chan struct{})}
	handler, env := newTestHandler(t, config.Config{}, verifier)
	loadJSON(t, handler, "A")

	if res := serve(handler, http.MethodPost, "/v1/batch/run", "", nil); res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	<-verifier.entered

	if res := serve(handler, http.MethodPost, "/v1/batch/run", "", nil); res.Code != http.StatusConflict {
		t.Fatalf("second run expected 409, got %d", res.Code)
	}
	if res := serve(handler, http.MethodPost, "/v1/batch/reset", "", nil); res.Code != http.StatusConflict {
		t.Fatalf("reset during run expected 409, got %d", res.Code)
	}
	if res := serve(handler, http.MethodDelete, "/v1/batch/items/0", "", nil); res.Code != http.StatusConflict {
		t.Fatalf("remove during run expected 409, got %d", res.Code)
	}

	close(verifier.release)
	if snap := waitIdle(t, env); snap.Summary.Paid != 1 {
		t.Fatalf("expected the run to finish paid, got %+v", snap.Summary)
	}
}

func TestRunBatchClaimsSessionBeforeResponding(t *testing.T) {
	verifier := &verifierFake{release: make(chan struct{})}
	handler, env := newTestHandler(t, config.Config{}, verifier)
	loadJSON(t, handler, "A", "B")

	res := serve(handler, http.MethodPost, "/v1/batch/run", "", nil)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	var started runResponse
	if err := json.Unmarshal(res.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode run response: %v", err)
	}

	snap := env.batch.Snapshot()
	if !snap.Progress.Running || snap.Progress.RunID != started.RunID {
		t.Fatalf("expected run %s to hold the session, got %+v", started.RunID, snap.Progress)
	}
	payload, _ := json.Marshal(map[string]any{"identifiers": []string{"C"}})
	if res := serve(handler, http.MethodPost, "/v1/batch/items", "application/json", bytes.NewReader(payload)); res.Code != http.StatusConflict {
		t.Fatalf("load right after 202 expected 409, got %d", res.Code)
	}
	if res := serve(handler, http.MethodPost, "/v1/batch/reset", "", nil); res.Code != http.StatusConflict {
		t.Fatalf("reset right after 202 expected 409, got %d", res.Code)
	}

	close(verifier.release)
	snap = waitIdle(t, env)
	if len(snap.Items) != 2 || snap.Summary.Paid != started.Eligible {
		t.Fatalf("run covered a different set than announced: %+v", snap.Summary)
	}
}

func TestRunBatchWithoutItems(t *testing.T) {
	handler, _ := newTestHandler(t, config.Config{}, &verifierFake{})
	if res := serve(handler, http.MethodPost, "/v1/batch/run", "", nil); res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestResetReturnsItemsToPending(t *testing.T) {
	handler, env := newTestHandler(t, config.Config{}, &verifierFake{})
	loadJSON(t, handler, "A")
	serve(handler, http.MethodPost, "/v1/batch/run", "", nil)
	waitIdle(t, env)

	res := serve(handler, http.MethodPost, "/v1/batch/reset", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	snap := decodeSnapshot(t, res)
	if snap.Items[0].Status != domain.StatusPending || snap.Items[0].AttemptCount != 0 {
		t.Fatalf("expected a fresh item, got %+v", snap.Items[0])
	}
}

func TestReportEndpoints(t *testing.T) {
	handler, env := newTestHandler(t, config.Config{}, &verifierFake{})

	if res := serve(handler, http.MethodGet, "/v1/batch/report.xlsx", "", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("empty session download expected 400, got %d", res.Code)
	}

	loadJSON(t, handler, "A", "B")

	download := serve(handler, http.MethodGet, "/v1/batch/report.xlsx", "", nil)
	if download.Code != http.StatusOK {
		t.Fatalf("download expected 200, got %d", download.Code)
	}
	if download.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("unexpected content type %q", download.Header().Get("Content-Type"))
	}
	if !strings.Contains(download.Header().Get("Content-Disposition"), "PRN_Results_") {
		t.Fatalf("unexpected disposition %q", download.Header().Get("Content-Disposition"))
	}
	if download.Body.String() != "rows=2" {
		t.Fatalf("unexpected body %q", download.Body.String())
	}

	stored := serve(handler, http.MethodPost, "/v1/batch/report", "", nil)
	if stored.Code != http.StatusCreated {
		t.Fatalf("export expected 201, got %d", stored.Code)
	}
	var payload map[string]string
	_ = json.Unmarshal(stored.Body.Bytes(), &payload)
	if _, ok := env.storage.objects[payload["key"]]; !ok {
		t.Fatalf("expected stored report under %q", payload["key"])
	}
}

func TestDocumentExportEndpoint(t *testing.T) {
	handler, env := newTestHandler(t, config.Config{}, &verifierFake{})
	loadJSON(t, handler, "A")

	if res := serve(handler, http.MethodPost, "/v1/batch/documents/export", "", nil); res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("export before run expected 422, got %d", res.Code)
	}

	serve(handler, http.MethodPost, "/v1/batch/run", "", nil)
	waitIdle(t, env)

	res := serve(handler, http.MethodPost, "/v1/batch/documents/export", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var result domain.DocumentExportResult
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode export result: %v", err)
	}
	if _, ok := env.storage.objects["A.pdf"]; !ok {
		t.Fatalf("expected A.pdf in storage, got %v", result)
	}
}

func TestCloseInterruptsBackgroundRun(t *testing.T) {
	verifier := &verifierFake{entered: make(chan string, 2), release: make(chan struct{})}
	handler, env := newTestHandler(t, config.Config{}, verifier)
	loadJSON(t, handler, "A", "B")

	serve(handler, http.MethodPost, "/v1/batch/run", "", nil)
	<-verifier.entered
	env.router.Close()

	snap := env.batch.Snapshot()
	if snap.Progress.Running {
		t.Fatalf("run still active after Close")
	}
	if snap.Items[1].Status != domain.StatusPending {
		t.Fatalf("unattempted item should stay pending, got %s", snap.Items[1].Status)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrBatchRunning, "op", errors.New("x")), http.StatusConflict},
		{domain.WrapError(domain.ErrNothingToDo, "op", errors.New("x")), http.StatusUnprocessableEntity},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestLoadOpenAPI(t *testing.T) {
	doc, err := LoadOpenAPI()
	if err != nil {
		t.Fatalf("load openapi: %v", err)
	}
	if doc.Paths.Find("/v1/batch/items/{index}") == nil {
		t.Fatalf("expected item path in openapi document")
	}
}
