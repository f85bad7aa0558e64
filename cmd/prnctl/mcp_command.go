package main

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/prn-reconciler/internal/adapters/mcp"
	"github.com/kirillkom/prn-reconciler/internal/bootstrap"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the batch as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), cfg, "prnctl-mcp")
			if err != nil {
				return err
			}
			defer app.Close()

			return mcpadapter.New(app.Batch, app.Check, app.Reports).ServeStdio(version)
		},
	}
}
