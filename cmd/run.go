package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Process a single invoice and print its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Orchestrator.RunBatch(ctx, env.Loader, args[:1], 1)[0]

		zap.L().Info("invoice complete",
			zap.String("invoice", res.Report.InvoiceID),
			zap.String("status", string(res.Report.Status)),
			zap.Float64("cost_usd", res.CostUSD),
		)

		b, err := res.Report.MarshalCanonical()
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(b); err != nil {
			return eris.Wrap(err, "write report")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
