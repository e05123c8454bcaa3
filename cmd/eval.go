package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-cli/internal/eval"
)

var (
	evalReports string
	evalTruth   string
	evalJSON    bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score written reports against ground truth",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("eval"); err != nil {
			return err
		}
		if evalReports == "" || evalTruth == "" {
			return eris.New("eval: --reports and --truth are required")
		}

		reports, err := eval.LoadReports(ctx, evalReports)
		if err != nil {
			return err
		}
		truth, err := eval.LoadTruth(ctx, evalTruth)
		if err != nil {
			return err
		}

		evals := eval.Evaluate(reports, truth)
		summary := eval.Summarize(evals)

		if evalJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Summary     eval.Summary      `json:"summary"`
				Evaluations []eval.Evaluation `json:"evaluations"`
			}{summary, evals})
		}
		formatEvalSummary(os.Stdout, summary)
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalReports, "reports", "out", "directory of *.report.json files")
	evalCmd.Flags().StringVar(&evalTruth, "truth", "", "ground-truth file or directory")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "print per-invoice results as JSON")
	rootCmd.AddCommand(evalCmd)
}

// formatEvalSummary writes overall and per-field accuracy to w.
func formatEvalSummary(out io.Writer, s eval.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Invoices:\t%d\n", s.Invoices)
	_, _ = fmt.Fprintf(w, "Fields compared:\t%d\n", s.Compared)
	_, _ = fmt.Fprintf(w, "Accuracy:\t%.3f\n", s.Accuracy)
	if len(s.PerField) > 0 {
		_, _ = fmt.Fprintln(w, "")
		_, _ = fmt.Fprintln(w, "FIELD\tMATCHED\tCOMPARED\tACCURACY")
		names := make([]string, 0, len(s.PerField))
		for name := range s.PerField {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := s.PerField[name]
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.3f\n", name, st.Matched, st.Compared, st.Accuracy)
		}
	}
	_ = w.Flush()
}
