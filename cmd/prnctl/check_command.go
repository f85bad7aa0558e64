package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/prn-reconciler/internal/bootstrap"
	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "check PRN [PRN...]",
		Short: "Look up PRNs one by one without a batch session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), cfg, "prnctl")
			if err != nil {
				return err
			}
			defer app.Close()

			items := make([]domain.ItemRecord, 0, len(args))
			for _, prn := range args {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				item, err := app.Check.VerifyOne(cmd.Context(), prn)
				if err != nil {
					return err
				}
				items = append(items, item)
			}

			if jsonOut {
				return writeJSON(cmd, items)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderItems(items))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	return cmd
}
