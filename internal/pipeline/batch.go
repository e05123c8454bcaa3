package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/model"
)

// Loader turns a document path into an Invoice identified by id.
type Loader interface {
	Load(ctx context.Context, path, id string) (*model.Invoice, error)
}

// RunBatch processes every path with at most concurrency invoices in flight.
// Results keep the order of paths. A failing invoice never stops the others.
// Invoice identifiers are unique within the batch, see document.InvoiceIDs.
func (o *Orchestrator) RunBatch(ctx context.Context, loader Loader, paths []string, concurrency int) []*Result {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]*Result, len(paths))
	ids := document.InvoiceIDs(paths)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = o.processPath(gCtx, loader, path, ids[i])
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("pipeline: batch complete", zap.Int("invoices", len(paths)))
	return results
}

func (o *Orchestrator) processPath(ctx context.Context, loader Loader, path, id string) *Result {
	inv, err := loader.Load(ctx, path, id)
	if err != nil {
		zap.L().Warn("pipeline: load failed", zap.String("path", path), zap.Error(err))
		return o.Unreadable(id, model.KindInputUnreadable, err.Error())
	}
	return o.ProcessInvoice(ctx, inv)
}

// ProcessInvoice is Process for callers that always want a report: a
// pipeline failure becomes a rejection carrying the failure's kind.
func (o *Orchestrator) ProcessInvoice(ctx context.Context, inv *model.Invoice) *Result {
	res, err := o.Process(ctx, inv)
	if err != nil {
		zap.L().Error("pipeline: process failed", zap.String("invoice", inv.ID), zap.Error(err))
		return o.Unreadable(inv.ID, failureKind(err), err.Error())
	}
	return res
}

// Unreadable builds the rejection report for an invoice that never reached
// the gate with usable text.
func (o *Orchestrator) Unreadable(id string, kind model.ErrorKind, detail string) *Result {
	fs := model.NewFieldSet(o.deps.Fields.HeaderNames()...)
	return &Result{Report: &model.ValidationReport{
		InvoiceID:     id,
		Status:        model.StatusReject,
		Reason:        kind,
		Header:        fs.Fields(),
		Billable:      []model.LineItem{},
		NoActivity:    []model.LineItem{},
		RejectedItems: []model.LineItem{},
		Discrepancies: []model.Discrepancy{{Field: "document", Reason: string(kind), Tier: model.TierGate, Detail: detail}},
		Trail:         []model.State{model.StateGated, model.StateRejected},
	}}
}

// Summarize counts verdicts and spend over results.
func Summarize(results []*Result) model.BatchSummary {
	var s model.BatchSummary
	for _, r := range results {
		if r == nil || r.Report == nil {
			continue
		}
		s.Add(r.Report)
		s.CostUSD += r.CostUSD
	}
	return s
}
