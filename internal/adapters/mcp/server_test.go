package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/usecase"
)

type verifierFake struct{}

func (verifierFake) Verify(_ context.Context, identifier string) domain.Outcome {
	if strings.HasPrefix(identifier, "X") {
		return domain.InvalidOutcome{StatusCode: 404, Reason: "PRN not found"}
	}
	return domain.PaidOutcome{
		Document: []byte("%PDF-1.4"),
		Details:  domain.PaymentDetails{PRN: identifier},
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func newTestServer() (*Server, *usecase.BatchUseCase) {
	batch := usecase.NewBatchUseCase(verifierFake{}, nil, nil, nil)
	return New(batch, usecase.NewCheckUseCase(verifierFake{}), nil), batch
}

func TestLoadAndRunBatch(t *testing.T) {
	srv, batch := newTestServer()
	ctx := context.Background()

	res, err := srv.loadPRNs(ctx, callRequest("load_prns", map[string]any{"prns": "A\nX1, B"}))
	if err != nil {
		t.Fatalf("load_prns: %v", err)
	}
	if res.IsError {
		t.Fatalf("load_prns failed: %s", resultText(t, res))
	}
	if got := len(batch.Snapshot().Items); got != 3 {
		t.Fatalf("expected 3 items, got %d", got)
	}

	res, err = srv.runBatch(ctx, callRequest("run_batch", nil))
	if err != nil {
		t.Fatalf("run_batch: %v", err)
	}
	var result domain.RunResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &result); err != nil {
		t.Fatalf("decode run result: %v", err)
	}
	if result.Attempted != 3 || result.Summary.Paid != 2 || result.Summary.Invalid != 1 {
		t.Fatalf("unexpected run result: %+v", result)
	}

	res, err = srv.runBatch(ctx, callRequest("run_batch", nil))
	if err != nil {
		t.Fatalf("second run_batch: %v", err)
	}
	var retry domain.RunResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &retry); err != nil {
		t.Fatalf("decode retry result: %v", err)
	}
	if retry.Kind != domain.RunRetry || retry.Attempted != 1 {
		t.Fatalf("expected a retry run over X1 only, got %+v", retry)
	}
}

func TestLoadRequiresPRNs(t *testing.T) {
	srv, _ := newTestServer()
	res, err := srv.loadPRNs(context.Background(), callRequest("load_prns", map[string]any{}))
	if err != nil {
		t.Fatalf("load_prns: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing prns")
	}
}

func TestVerifyPRNLeavesBatchUntouched(t *testing.T) {
	srv, batch := newTestServer()
	res, err := srv.verifyPRN(context.Background(), callRequest("verify_prn", map[string]any{"prn": " X9 "}))
	if err != nil {
		t.Fatalf("verify_prn: %v", err)
	}
	var item domain.ItemRecord
	if err := json.Unmarshal([]byte(resultText(t, res)), &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.Identifier != "X9" || item.Status != domain.StatusInvalid {
		t.Fatalf("unexpected item: %+v", item)
	}
	if len(batch.Snapshot().Items) != 0 {
		t.Fatalf("verify_prn must not load the batch")
	}
}

func TestVerifyPRNRejectsBlankPRN(t *testing.T) {
	srv, _ := newTestServer()
	res, err := srv.verifyPRN(context.Background(), callRequest("verify_prn", map[string]any{"prn": "   "}))
	if err != nil {
		t.Fatalf("verify_prn: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for blank prn, got %s", resultText(t, res))
	}
}

func TestBatchStatusAndRegistration(t *testing.T) {
	srv, _ := newTestServer()
	res, err := srv.batchStatus(context.Background(), callRequest("batch_status", nil))
	if err != nil {
		t.Fatalf("batch_status: %v", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(resultText(t, res)), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}

	tools := srv.MCPServer("test").ListTools()
	for _, name := range []string{"batch_status", "load_prns", "run_batch", "verify_prn"} {
		if _, ok := tools[name]; !ok {
			t.Fatalf("tool %s not registered", name)
		}
	}
	if _, ok := tools["export_report"]; ok {
		t.Fatalf("export_report needs a report exporter")
	}
}
