package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/invoice-cli/internal/agent"
	"github.com/sells-group/invoice-cli/internal/config"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pattern"
	"github.com/sells-group/invoice-cli/internal/registry"
	"github.com/sells-group/invoice-cli/internal/resilience"
)

// Options tunes the decision engine.
type Options struct {
	CriticalFields    []string
	ReviewFields      []string
	OpticalEnabled    bool
	StrictNull        bool
	AllowedCasesLimit int
	// OpticalPageCost is charged per recognised page when optical recovery
	// runs. Pages served from the optical cache are free.
	OpticalPageCost float64
}

// OptionsFromConfig builds Options from the pipeline and agent sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CriticalFields:    cfg.Pipeline.CriticalFields,
		ReviewFields:      cfg.Pipeline.ReviewFields,
		OpticalEnabled:    cfg.Pipeline.OpticalEnabled,
		StrictNull:        true,
		AllowedCasesLimit: cfg.Agent.AllowedCasesLimit,
	}
}

// CaseRegistry is the read-only view of the valid case identifiers.
type CaseRegistry interface {
	pattern.CaseMatcher
	Contains(code string) bool
	Subset(hints []string, limit int) []string
}

// Deps are the collaborators of an Orchestrator. Gate and Tool default when nil.
type Deps struct {
	Gate         *Gate
	Tool         *pattern.Tool
	Cases        CaseRegistry
	Fields       *registry.FieldSpec
	Header       agent.HeaderExtractor
	LineItems    agent.LineItemExtractor
	Optical      model.OpticalFunc
	AgentGuard   resilience.Guard
	OpticalGuard resilience.Guard
}

// Result is the outcome of one invoice.
type Result struct {
	Report      *model.ValidationReport
	Usage       agent.Usage
	OpticalText string
	CostUSD     float64
	// History holds every accepted header value in arrival order.
	History []model.ExtractedField
}

type stepFunc func(ctx context.Context, r *invoiceRun) model.State

// Orchestrator drives invoices through the tier-escalation state machine.
type Orchestrator struct {
	opts  Options
	deps  Deps
	steps map[model.State]stepFunc
}

// New creates an Orchestrator.
func New(opts Options, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Cases == nil:
		return nil, eris.New("pipeline: case registry is required")
	case deps.Fields == nil:
		return nil, eris.New("pipeline: field spec is required")
	case deps.Header == nil || deps.LineItems == nil:
		return nil, eris.New("pipeline: both extraction agents are required")
	}
	if deps.Gate == nil {
		deps.Gate = NewGate(0, nil)
	}
	if deps.Tool == nil {
		deps.Tool = pattern.NewTool(deps.Cases)
	}
	if len(opts.CriticalFields) == 0 {
		opts.CriticalFields = deps.Fields.Critical()
	}

	o := &Orchestrator{opts: opts, deps: deps}
	o.steps = map[model.State]stepFunc{
		model.StateGated:             o.stepGate,
		model.StateDispatched:        o.stepDispatch,
		model.StateValidated:         o.stepValidate,
		model.StateEscalatingOptical: o.stepOptical,
		model.StateEscalatingPattern: o.stepOpticalPattern,
		model.StateEscalatingAgent:   o.stepReinvoke,
		model.StateMerged:            o.stepGatekeep,
		model.StateGatekept:          o.stepReport,
	}
	return o, nil
}

// invoiceRun is the typed state carried through the machine for one invoice.
type invoiceRun struct {
	inv           *model.Invoice
	m             *machine
	fields        *model.FieldSet
	rawCandidates map[string]bool
	hints         pattern.Hints
	items         []model.LineItem
	inDomain      *bool
	pending       []string
	discrepancies []model.Discrepancy
	reason        model.ErrorKind
	review        bool
	opticalPages  int
	usage         agent.Usage
	log           *zap.Logger
}

func (r *invoiceRun) note(field, reason, tier, detail string) {
	r.discrepancies = append(r.discrepancies, model.Discrepancy{
		Field:  field,
		Reason: reason,
		Tier:   tier,
		Detail: detail,
	})
}

// offer merges f into the header. A disagreement between two non-null values
// is kept as a conflict discrepancy; the higher-ranked tier wins.
func (r *invoiceRun) offer(f model.ExtractedField) {
	res := r.fields.Offer(f)
	if res.Outcome != model.OfferConflict {
		return
	}
	kept, _ := r.fields.Get(f.Name)
	r.note(f.Name, "conflict", string(res.Displaced.Provenance),
		fmt.Sprintf("kept %q from %s over %q", kept.Value, kept.Provenance, res.Displaced.Value))
}

// Process runs one invoice to a terminal state. Boundary failures never
// surface as errors; they end up in the report. An error means the machine
// itself attempted an illegal transition.
func (o *Orchestrator) Process(ctx context.Context, inv *model.Invoice) (*Result, error) {
	r := &invoiceRun{
		inv:           inv,
		m:             newMachine(),
		fields:        model.NewFieldSet(o.deps.Fields.HeaderNames()...),
		rawCandidates: make(map[string]bool),
		log:           zap.L().With(zap.String("invoice", inv.ID)),
	}
	ctx = resilience.WithInvoice(ctx, inv.ID)

	for !r.m.state.Terminal() {
		step, ok := o.steps[r.m.state]
		if !ok {
			return nil, eris.Errorf("pipeline: no step for state %s", r.m.state)
		}
		next := step(ctx, r)
		if err := r.m.advance(next); err != nil {
			return nil, err
		}
		r.log.Debug("pipeline: transition", zap.String("state", string(next)))
	}

	res := o.result(r)
	r.log.Info("pipeline: invoice complete",
		zap.String("status", string(res.Report.Status)),
		zap.String("reason", string(res.Report.Reason)),
		zap.Bool("escalated", r.m.escalated()),
		zap.Int("agent_calls", res.Usage.Calls),
		zap.Float64("cost_usd", res.CostUSD),
	)
	return res, nil
}

func (o *Orchestrator) stepGate(_ context.Context, r *invoiceRun) model.State {
	v := o.deps.Gate.Check(r.inv.RawText)
	if !v.Usable {
		r.reason = model.KindInputUnreadable
		r.note("raw_text", string(model.KindInputUnreadable), model.TierGate, v.Reason)
		r.log.Info("pipeline: gate rejected invoice", zap.String("reason", v.Reason))
		return model.StateRejected
	}
	return model.StateDispatched
}

// stepDispatch runs the raw-text pattern pass, then both agents concurrently,
// and joins before merging in a fixed order.
func (o *Orchestrator) stepDispatch(ctx context.Context, r *invoiceRun) model.State {
	raw := r.inv.RawText
	r.hints = o.deps.Tool.Hints(raw)
	resolutions := o.deps.Tool.ResolveAll(raw, o.opts.CriticalFields)

	var (
		header     *agent.HeaderResult
		headerErr  error
		headerUse  agent.Usage
		lines      *agent.LineItemResult
		linesErr   error
		linesUsage agent.Usage
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		header, headerUse, headerErr = o.callHeader(gCtx, agent.HeaderRequest{
			InvoiceID:  r.inv.ID,
			Text:       raw,
			Fields:     o.deps.Fields.Header,
			Hints:      r.hints,
			StrictNull: o.opts.StrictNull,
		})
		return nil
	})
	g.Go(func() error {
		lines, linesUsage, linesErr = o.callLineItems(gCtx, agent.LineItemRequest{
			InvoiceID:    r.inv.ID,
			Text:         raw,
			Fields:       o.deps.Fields.LineItems,
			AllowedCases: o.deps.Cases.Subset(r.hints.CaseIDs, o.opts.AllowedCasesLimit),
			StrictNull:   o.opts.StrictNull,
		})
		return nil
	})
	_ = g.Wait()

	for _, res := range resolutions {
		r.rawCandidates[res.Field] = len(res.Candidates) > 0
		r.offer(res.AsField(model.ProvenancePattern))
	}

	r.usage.Merge(headerUse)
	r.usage.Merge(linesUsage)
	o.mergeHeader(r, header, headerErr, true)

	if linesErr != nil {
		r.note("line_items", string(failureKind(linesErr)), string(model.ProvenanceAgent), "")
		r.log.Warn("pipeline: line-item agent failed", zap.Error(linesErr))
	} else if lines != nil {
		r.items = lines.Items
	}
	return model.StateValidated
}

func (o *Orchestrator) mergeHeader(r *invoiceRun, res *agent.HeaderResult, err error, first bool) {
	if err != nil {
		r.note("header", string(failureKind(err)), string(model.ProvenanceAgent), "")
		r.log.Warn("pipeline: header agent failed", zap.Bool("initial", first), zap.Error(err))
		return
	}
	if res == nil {
		return
	}
	for _, f := range res.Fields {
		r.offer(f)
	}
	for _, rej := range res.Rejected {
		r.note(rej.Field, rej.Reason, string(model.ProvenanceAgent), rej.Raw)
	}
	if first && res.InDomain != nil {
		v := *res.InDomain
		r.inDomain = &v
	}
}

// stepValidate decides whether the ladder is needed. Critical fields that
// the raw pattern pass saw but could not pin down stay policy nulls; only
// fields with no raw candidate at all are escalated.
func (o *Orchestrator) stepValidate(_ context.Context, r *invoiceRun) model.State {
	var escalate []string
	for _, name := range r.fields.Missing(o.opts.CriticalFields) {
		if r.rawCandidates[name] {
			f, _ := r.fields.Get(name)
			r.note(name, "ambiguous", string(model.ProvenancePattern), strings.Join(f.Candidates, ", "))
			continue
		}
		escalate = append(escalate, name)
	}
	if len(escalate) == 0 {
		return model.StateMerged
	}
	r.pending = escalate
	r.log.Info("pipeline: escalating", zap.Strings("fields", escalate))
	return model.StateEscalatingOptical
}

func (o *Orchestrator) stepOptical(ctx context.Context, r *invoiceRun) model.State {
	if !o.opts.OpticalEnabled || o.deps.Optical == nil {
		r.note("optical_text", "optical_disabled", model.TierOptical, strings.Join(r.pending, ","))
		return model.StateEscalatingPattern
	}

	invoked := r.inv.OpticalInvoked()
	pages, err := r.inv.Optical(ctx, o.recoverOptical)
	if err != nil {
		r.note("optical_text", string(failureKind(err)), model.TierOptical, "")
		r.log.Warn("pipeline: optical recovery failed", zap.Error(err))
		return model.StateEscalatingPattern
	}
	if !invoked && !pages.Cached {
		r.opticalPages = len(pages.Texts)
	}
	return model.StateEscalatingPattern
}

func (o *Orchestrator) recoverOptical(ctx context.Context, inv *model.Invoice) (model.OpticalPages, error) {
	return resilience.Call(ctx, o.deps.OpticalGuard, func(ctx context.Context) (model.OpticalPages, error) {
		return o.deps.Optical(ctx, inv)
	})
}

// stepOpticalPattern runs the pattern tool on the optical text for exactly
// the escalated fields. When it resolves all of them the agent is not asked.
func (o *Orchestrator) stepOpticalPattern(_ context.Context, r *invoiceRun) model.State {
	if text := r.inv.OpticalText(); text != "" {
		for _, res := range o.deps.Tool.ResolveAll(text, r.pending) {
			r.offer(res.AsField(model.ProvenanceOpticalPattern))
		}
	}

	var ask []string
	for _, name := range r.fields.Missing(r.pending) {
		if f, _ := r.fields.Get(name); f.PolicyNull {
			r.note(name, "ambiguous", string(f.Provenance), strings.Join(f.Candidates, ", "))
			continue
		}
		ask = append(ask, name)
	}
	if len(ask) == 0 {
		return model.StateMerged
	}
	r.pending = ask
	return model.StateEscalatingAgent
}

// stepReinvoke asks the header agent once more, for the remaining fields
// only, with the optical text as extra context. Whatever it returns is final.
func (o *Orchestrator) stepReinvoke(ctx context.Context, r *invoiceRun) model.State {
	res, usage, err := o.callHeader(ctx, agent.HeaderRequest{
		InvoiceID:  r.inv.ID,
		Text:       r.inv.RawText,
		Optical:    r.inv.OpticalText(),
		Fields:     o.deps.Fields.Select(r.pending),
		Hints:      r.hints,
		StrictNull: o.opts.StrictNull,
	})
	r.usage.Merge(usage)
	o.mergeHeader(r, res, err, false)
	return model.StateMerged
}

// reasonCorrectedCase marks a case identifier that only matched the registry
// after look-alike repair. Such invoices go to review.
const reasonCorrectedCase = "corrected_case_id"

// stepGatekeep re-checks every line item against the registry. An invoice
// without a single registry-valid item is out of domain.
func (o *Orchestrator) stepGatekeep(_ context.Context, r *invoiceRun) model.State {
	valid := 0
	for i, it := range r.items {
		if !it.Rejected && !o.deps.Cases.Contains(it.CaseID) {
			if it.RawCaseID == "" {
				it.RawCaseID = it.CaseID
			}
			it.CaseID = ""
			it = agent.CheckCase(it, o.deps.Cases)
			r.items[i] = it
		}
		if it.Valid() {
			valid++
			if it.Match == model.MatchCorrected {
				r.review = true
				r.note("case_id", reasonCorrectedCase, model.TierRegistry, it.RawCaseID+" -> "+it.CaseID)
			}
			continue
		}
		r.note("case_id", it.RejectReason, model.TierRegistry, it.RawCaseID)
		if it.Match == model.MatchAmbiguous {
			r.review = true
		}
	}

	if valid == 0 {
		r.reason = model.KindOutOfDomain
		r.note("line_items", string(model.KindOutOfDomain), model.TierRegistry,
			fmt.Sprintf("%d line items, none in registry", len(r.items)))
		return model.StateRejected
	}
	if r.inDomain != nil && !*r.inDomain {
		r.review = true
		r.note("in_domain", "agent_out_of_domain", string(model.ProvenanceAgent), "")
	}
	return model.StateGatekept
}

// stepReport settles between accept and needs-review.
func (o *Orchestrator) stepReport(_ context.Context, r *invoiceRun) model.State {
	for _, name := range r.fields.Missing(o.opts.CriticalFields) {
		r.review = true
		if f, _ := r.fields.Get(name); !f.PolicyNull {
			r.note(name, "unresolved", model.TierMerge, "")
		}
	}
	for _, name := range r.fields.Missing(o.opts.ReviewFields) {
		if slices.Contains(o.opts.CriticalFields, name) {
			continue
		}
		r.review = true
		r.note(name, "unresolved", model.TierMerge, "")
	}
	return model.StateReported
}

func (o *Orchestrator) result(r *invoiceRun) *Result {
	rep := &model.ValidationReport{
		InvoiceID:     r.inv.ID,
		InDomain:      r.inDomain,
		Header:        r.fields.Fields(),
		Billable:      []model.LineItem{},
		NoActivity:    []model.LineItem{},
		RejectedItems: []model.LineItem{},
		Discrepancies: r.discrepancies,
		Trail:         slices.Clone(r.m.trail),
	}
	if rep.Discrepancies == nil {
		rep.Discrepancies = []model.Discrepancy{}
	}

	for _, it := range r.items {
		switch {
		case !it.Valid():
			rep.RejectedItems = append(rep.RejectedItems, it)
		case it.NoActivity():
			rep.NoActivity = append(rep.NoActivity, it)
		default:
			rep.Billable = append(rep.Billable, it)
		}
	}

	switch {
	case r.m.state == model.StateRejected:
		rep.Status = model.StatusReject
		rep.Reason = r.reason
	case r.review:
		rep.Status = model.StatusNeedsReview
	default:
		rep.Status = model.StatusAccept
	}

	return &Result{
		Report:      rep,
		Usage:       r.usage,
		OpticalText: r.inv.OpticalText(),
		CostUSD:     r.usage.CostUSD + float64(r.opticalPages)*o.opts.OpticalPageCost,
		History:     r.fields.History(),
	}
}

func (o *Orchestrator) callHeader(ctx context.Context, req agent.HeaderRequest) (*agent.HeaderResult, agent.Usage, error) {
	var usage agent.Usage
	res, err := resilience.Call(ctx, o.deps.AgentGuard, func(ctx context.Context) (*agent.HeaderResult, error) {
		res, err := o.deps.Header.ExtractHeader(ctx, req)
		if res != nil {
			usage.Merge(res.Usage)
		}
		return res, err
	})
	return res, usage, err
}

func (o *Orchestrator) callLineItems(ctx context.Context, req agent.LineItemRequest) (*agent.LineItemResult, agent.Usage, error) {
	var usage agent.Usage
	res, err := resilience.Call(ctx, o.deps.AgentGuard, func(ctx context.Context) (*agent.LineItemResult, error) {
		res, err := o.deps.LineItems.ExtractLineItems(ctx, req)
		if res != nil {
			usage.Merge(res.Usage)
		}
		return res, err
	})
	return res, usage, err
}

// failureKind names a boundary failure for the report. Unclassified errors
// count as the service being unavailable.
func failureKind(err error) model.ErrorKind {
	if k := model.KindOf(err); k != "" {
		return k
	}
	return model.KindServiceUnavailable
}
