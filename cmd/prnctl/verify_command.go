package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/prn-reconciler/internal/bootstrap"
	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/lock"
)

type verifyOutput struct {
	Run       domain.RunResult             `json:"run"`
	Items     []domain.ItemRecord          `json:"items"`
	Report    string                       `json:"report,omitempty"`
	Documents *domain.DocumentExportResult `json:"documents,omitempty"`
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var (
		input     string
		pasted    string
		report    bool
		documents bool
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a batch of PRNs and optionally export the results",
		Example: "  prnctl verify --input prns.xlsx --report --documents\n" +
			"  prnctl verify --text 118000000001,118000000002",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			held, err := lock.Acquire(cfg.LockPath)
			if err != nil {
				return err
			}
			defer func() { _ = held.Release() }()

			progress := newProgressPrinter(cmd.ErrOrStderr())
			app, err := bootstrap.New(cmd.Context(), cfg, "prnctl", bootstrap.WithPublisher(progress))
			if err != nil {
				return err
			}
			defer app.Close()

			source, ids, err := readInput(cmd.Context(), inputReaders{workbooks: app.Workbooks, text: app.Text}, input, pasted)
			if err != nil {
				return err
			}
			if _, err := app.Batch.Load(cmd.Context(), source, ids); err != nil {
				return err
			}

			run, runErr := app.Batch.ProcessAll(cmd.Context())
			out := verifyOutput{Run: run, Items: app.Batch.Snapshot().Items}

			var exportErrs []error
			if report {
				key, err := app.Reports.Export(cmd.Context())
				if err != nil {
					exportErrs = append(exportErrs, err)
				}
				out.Report = key
			}
			if documents {
				result, err := app.Documents.ExportAll(cmd.Context())
				if err != nil && !domain.IsKind(err, domain.ErrNothingToDo) {
					exportErrs = append(exportErrs, err)
				}
				if err == nil {
					out.Documents = &result
				}
			}

			if jsonOut {
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			} else {
				printVerifyOutput(cmd, out)
			}
			return errors.Join(append([]error{runErr}, exportErrs...)...)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Workbook (.xlsx) or text file with one PRN per line")
	cmd.Flags().StringVar(&pasted, "text", "", "PRNs separated by commas, semicolons or newlines")
	cmd.Flags().BoolVar(&report, "report", false, "Store the results workbook")
	cmd.Flags().BoolVar(&documents, "documents", false, "Store every retrieved receipt and a merged bundle")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	return cmd
}

func printVerifyOutput(cmd *cobra.Command, out verifyOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, renderItems(out.Items))
	fmt.Fprintln(w, renderSummary(out.Run.Summary))
	if out.Run.Interrupted {
		fmt.Fprintf(w, "Run interrupted after %d of %d PRNs\n", out.Run.Attempted, out.Run.Selected)
	}
	if out.Report != "" {
		fmt.Fprintf(w, "Report: %s\n", out.Report)
	}
	if out.Documents != nil {
		fmt.Fprintf(w, "Receipts: %d saved", len(out.Documents.Saved))
		if out.Documents.Bundle != "" {
			fmt.Fprintf(w, ", bundle %s", out.Documents.Bundle)
		}
		fmt.Fprintln(w)
		for _, failure := range out.Documents.Errors {
			fmt.Fprintf(w, "  %s\n", failure)
		}
	}
}
