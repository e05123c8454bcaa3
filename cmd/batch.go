package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/eval"
	"github.com/sells-group/invoice-cli/internal/export"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pipeline"
	"github.com/sells-group/invoice-cli/internal/store"
)

var (
	batchDir         string
	batchOut         string
	batchTruth       string
	batchXLSX        bool
	batchDumpOptical bool
	batchLimit       int
)

var batchCmd = &cobra.Command{
	Use:   "batch [files...]",
	Short: "Process a directory (or list) of invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		paths, err := batchPaths(batchDir, args, batchLimit)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := runBatch(ctx, env, paths, batchOptions{
			Source:      sourceLabel(batchDir, args),
			OutDir:      batchOut,
			TruthPath:   batchTruth,
			XLSX:        batchXLSX,
			DumpOptical: batchDumpOptical || cfg.Batch.DumpOptical,
			Concurrency: cfg.Batch.Concurrency,
		})
		if err != nil {
			return err
		}

		b := summary.Batch
		fmt.Fprintf(os.Stdout, "run %s: %d invoices, %d accepted, %d rejected, %d needs review, $%.4f\n",
			summary.RunID, b.Total, b.Accepted, b.Rejected, b.NeedsReview, b.CostUSD)
		if b.Accuracy != nil {
			fmt.Fprintf(os.Stdout, "accuracy over %d evaluated invoices: %.3f\n", b.Evaluated, *b.Accuracy)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory of invoice documents")
	batchCmd.Flags().StringVar(&batchOut, "out", "out", "output directory for reports")
	batchCmd.Flags().StringVar(&batchTruth, "truth", "", "ground-truth file or directory for evaluation")
	batchCmd.Flags().BoolVar(&batchXLSX, "xlsx", false, "also write summary.xlsx")
	batchCmd.Flags().BoolVar(&batchDumpOptical, "dump-optical", false, "write recognised text as <id>.ocr.txt")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of invoices to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

// batchPaths resolves the documents to process from --dir and positional
// arguments.
func batchPaths(dir string, args []string, limit int) ([]string, error) {
	paths := append([]string(nil), args...)
	if dir != "" {
		found, err := document.Discover(dir)
		if err != nil {
			return nil, eris.Wrapf(err, "discover %s", dir)
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, eris.New("no invoices given: use --dir or pass files")
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

func sourceLabel(dir string, args []string) string {
	if dir != "" {
		return dir
	}
	return fmt.Sprintf("%d files", len(args))
}

type batchOptions struct {
	Source      string
	OutDir      string
	TruthPath   string
	XLSX        bool
	DumpOptical bool
	Concurrency int
}

// runBatch processes paths under a new run and writes every output. The run
// is marked failed if writing results fails; per-invoice failures are part of
// the results, not errors.
func runBatch(ctx context.Context, env *pipelineEnv, paths []string, opts batchOptions) (*export.Summary, error) {
	runID := uuid.New().String()
	if env.Store != nil {
		run, err := env.Store.CreateRun(ctx, opts.Source)
		if err != nil {
			return nil, eris.Wrap(err, "create run")
		}
		runID = run.ID
	}
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("processing batch",
		zap.Int("invoices", len(paths)),
		zap.Int("concurrency", opts.Concurrency),
	)

	results := env.Orchestrator.RunBatch(ctx, env.Loader, paths, opts.Concurrency)

	summary, err := finishBatch(ctx, env.Store, runID, results, env.Fields.HeaderNames(), opts)
	if err != nil {
		if env.Store != nil {
			if fErr := env.Store.FailRun(ctx, runID, err.Error()); fErr != nil {
				log.Warn("mark run failed", zap.Error(fErr))
			}
		}
		return nil, err
	}
	log.Info("batch complete",
		zap.Int("accepted", summary.Batch.Accepted),
		zap.Int("rejected", summary.Batch.Rejected),
		zap.Int("needs_review", summary.Batch.NeedsReview),
		zap.Float64("cost_usd", summary.Batch.CostUSD),
	)
	return summary, nil
}

// finishBatch writes reports, evaluation and summaries for results, then
// persists them when st is non-nil.
func finishBatch(ctx context.Context, st store.Store, runID string, results []*pipeline.Result, headerFields []string, opts batchOptions) (*export.Summary, error) {
	reports := make([]*model.ValidationReport, 0, len(results))
	for _, res := range results {
		if res == nil || res.Report == nil {
			continue
		}
		reports = append(reports, res.Report)
		if _, err := export.WriteReport(opts.OutDir, res.Report); err != nil {
			return nil, err
		}
		if opts.DumpOptical {
			if _, err := export.WriteOptical(opts.OutDir, res.Report.InvoiceID, res.OpticalText); err != nil {
				return nil, err
			}
		}
	}

	summary := export.Summary{RunID: runID, Batch: pipeline.Summarize(results)}
	if opts.TruthPath != "" {
		truth, err := eval.LoadTruth(ctx, opts.TruthPath)
		if err != nil {
			return nil, err
		}
		es := eval.Summarize(eval.Evaluate(reports, truth))
		summary.Eval = &es
		summary.Batch.Evaluated = es.Invoices
		if es.Compared > 0 {
			summary.Batch.Accuracy = &es.Accuracy
		}
	}

	if _, err := export.WriteSummary(opts.OutDir, summary); err != nil {
		return nil, err
	}
	if opts.XLSX {
		if _, err := export.WriteXLSX(opts.OutDir, reports, headerFields, summary); err != nil {
			return nil, err
		}
	}

	if st != nil {
		if err := st.SaveReports(ctx, runID, storedReports(runID, results)); err != nil {
			return nil, eris.Wrap(err, "save reports")
		}
		if err := st.CompleteRun(ctx, runID, summary.Batch); err != nil {
			return nil, eris.Wrap(err, "complete run")
		}
	}
	return &summary, nil
}

func storedReports(runID string, results []*pipeline.Result) []model.StoredReport {
	out := make([]model.StoredReport, 0, len(results))
	for _, res := range results {
		if res == nil || res.Report == nil {
			continue
		}
		out = append(out, model.StoredReport{
			RunID:     runID,
			InvoiceID: res.Report.InvoiceID,
			Status:    res.Report.Status,
			Report:    res.Report,
			CostUSD:   res.CostUSD,
		})
	}
	return out
}
