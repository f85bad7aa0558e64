// Package mcpadapter exposes the verification session as Model Context
// Protocol tools over stdio.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/ports"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/intake/plaintext"
)

const serverName = "prn-reconciler"

type Server struct {
	batch   ports.BatchService
	checker ports.IdentifierVerifier
	reports ports.ReportExporter
}

func New(batch ports.BatchService, checker ports.IdentifierVerifier, reports ports.ReportExporter) *Server {
	return &Server{batch: batch, checker: checker, reports: reports}
}

// MCPServer registers every tool on a fresh server.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("batch_status",
		mcp.WithDescription("Return the current PRN batch: items, statuses, history and summary."),
	), s.batchStatus)

	srv.AddTool(mcp.NewTool("load_prns",
		mcp.WithDescription("Replace the batch with the given PRNs. Accepts one PRN per line or comma separated."),
		mcp.WithString("prns", mcp.Required(), mcp.Description("PRN list")),
	), s.loadPRNs)

	srv.AddTool(mcp.NewTool("run_batch",
		mcp.WithDescription("Verify every pending or failed PRN in the batch and return the run summary."),
	), s.runBatch)

	srv.AddTool(mcp.NewTool("verify_prn",
		mcp.WithDescription("Check a single PRN against the customs portal without touching the batch."),
		mcp.WithString("prn", mcp.Required(), mcp.Description("Payment reference number")),
	), s.verifyPRN)

	if s.reports != nil {
		srv.AddTool(mcp.NewTool("export_report",
			mcp.WithDescription("Store the results workbook and return its key."),
		), s.exportReport)
	}
	return srv
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio(version string) error {
	slog.Info("mcp_server_starting", "name", serverName, "version", version)
	return server.ServeStdio(s.MCPServer(version))
}

func (s *Server) batchStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.batch.Snapshot())
}

func (s *Server) loadPRNs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("prns")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.batch.Load(ctx, "mcp", plaintext.Split(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap.Summary)
}

func (s *Server) runBatch(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.batch.ProcessAll(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrNothingToDo) || domain.IsKind(err, domain.ErrBatchRunning) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if errors.Is(err, context.Canceled) {
			return mcp.NewToolResultError(fmt.Sprintf("run interrupted after %d items", result.Attempted)), nil
		}
		return nil, err
	}
	return jsonResult(result)
}

func (s *Server) verifyPRN(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prn, err := req.RequireString("prn")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.checker.VerifyOne(ctx, prn)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(item)
}

func (s *Server) exportReport(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := s.reports.Export(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(key), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}
