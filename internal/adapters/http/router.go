package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/kirillkom/prn-reconciler/internal/config"
	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/ports"
	"github.com/kirillkom/prn-reconciler/internal/observability/metrics"
)

// Dependencies are the collaborators the HTTP surface drives.
type Dependencies struct {
	Batch     ports.BatchService
	Reports   ports.ReportExporter
	Documents ports.DocumentExporter
	Workbooks ports.IdentifierReader
	Text      ports.IdentifierReader
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg  config.Config
	deps Dependencies

	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	runCtx, cancel := context.WithCancel(context.Background())
	return &Router{
		cfg:       cfg,
		deps:      deps,
		runCtx:    runCtx,
		cancelRun: cancel,
	}
}

func (rt *Router) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/batch", rt.getBatch)
	mux.HandleFunc("POST /v1/batch/items", rt.loadItems)
	mux.HandleFunc("DELETE /v1/batch/items/{index}", rt.removeItem)
	mux.HandleFunc("GET /v1/batch/items/{index}/document", rt.getItemDocument)
	mux.HandleFunc("POST /v1/batch/run", rt.runBatch)
	mux.HandleFunc("POST /v1/batch/reset", rt.resetBatch)
	mux.HandleFunc("POST /v1/batch/report", rt.exportReport)
	mux.HandleFunc("GET /v1/batch/report.xlsx", rt.downloadReport)
	mux.HandleFunc("POST /v1/batch/documents/export", rt.exportDocuments)

	doc, err := LoadOpenAPI()
	if err != nil {
		return nil, err
	}
	handler, err := requestValidationMiddleware(mux, doc)
	if err != nil {
		return nil, err
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler), nil
}

// Close interrupts a background run started over HTTP and waits for it to
// record its interruption.
func (rt *Router) Close() {
	rt.cancelRun()
	rt.runs.Wait()
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startRun claims the session synchronously, so the plan in the response is
// exactly what the background run verifies.
func (rt *Router) startRun(requestID string) (domain.RunResult, error) {
	run, err := rt.deps.Batch.Begin(rt.runCtx)
	if err != nil {
		return domain.RunResult{}, err
	}
	plan := run.Plan()

	rt.runs.Add(1)
	go func() {
		defer rt.runs.Done()
		result, err := run.Execute(rt.runCtx)
		if err != nil {
			slog.Warn("http_batch_run_failed", "request_id", requestID, "run_id", plan.RunID, "error", err)
			return
		}
		slog.Info("http_batch_run_finished",
			"request_id", requestID,
			"run_id", result.RunID,
			"attempted", result.Attempted,
			"interrupted", result.Interrupted,
		)
	}()
	return plan, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
