package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/prn-reconciler/internal/bootstrap"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/queue/nats"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var input, pasted string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a batch for a worker over NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.NATSURL == "" {
				return errors.New("submit needs NATS_URL")
			}
			app, err := bootstrap.New(cmd.Context(), cfg, "prnctl")
			if err != nil {
				return err
			}
			defer app.Close()

			source, ids, err := readInput(cmd.Context(), inputReaders{workbooks: app.Workbooks, text: app.Text}, input, pasted)
			if err != nil {
				return err
			}
			requestID, err := app.Bus.RequestBatch(cmd.Context(), nats.BatchRequest{
				Source:      source,
				Identifiers: ids,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d PRNs as request %s on %s\n", len(ids), requestID, cfg.NATSRequestsSubject)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Workbook (.xlsx) or text file with one PRN per line")
	cmd.Flags().StringVar(&pasted, "text", "", "PRNs separated by commas, semicolons or newlines")
	return cmd
}
