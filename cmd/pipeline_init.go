package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/agent"
	"github.com/sells-group/invoice-cli/internal/cost"
	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/ocr"
	"github.com/sells-group/invoice-cli/internal/pipeline"
	"github.com/sells-group/invoice-cli/internal/registry"
	"github.com/sells-group/invoice-cli/internal/resilience"
	"github.com/sells-group/invoice-cli/internal/store"
	anthropicpkg "github.com/sells-group/invoice-cli/pkg/anthropic"
	geminipkg "github.com/sells-group/invoice-cli/pkg/gemini"
)

// pipelineEnv holds everything the batch/run/serve commands need to process
// invoices.
type pipelineEnv struct {
	Store        store.Store // nil when persistence is disabled
	Orchestrator *pipeline.Orchestrator
	Loader       *document.Loader
	Fields       *registry.FieldSpec
	Breakers     *resilience.ServiceBreakers

	closers []func() error
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	for i := len(pe.closers) - 1; i >= 0; i-- {
		if err := pe.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline loads the registries, builds the agent backend and optical
// recovery, and assembles the Orchestrator. A registry that cannot be loaded
// is the only fatal error. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cases, err := registry.LoadCases(ctx, cfg.Registry.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load case registry")
	}
	fields, err := registry.LoadFieldSpec(cfg.Pipeline.FieldSpecPath)
	if err != nil {
		return nil, eris.Wrap(err, "load field spec")
	}
	zap.L().Info("registries loaded",
		zap.Int("cases", cases.Len()),
		zap.Strings("header_fields", fields.HeaderNames()),
	)

	env := &pipelineEnv{
		Loader: document.NewLoader(cfg.Document),
		Fields: fields,
	}

	calc := cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))
	completer, err := initCompleter(ctx, env, calc)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Breakers = resilience.NewServiceBreakers(
		resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs))
	retry := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs, cfg.Retry.JitterFraction)

	opts := pipeline.OptionsFromConfig(cfg)
	deps := pipeline.Deps{
		Gate:       pipeline.NewGate(cfg.Gate.MinLength, cfg.Gate.Markers),
		Cases:      cases,
		Fields:     fields,
		Header:     agent.NewHeaderAgent(completer),
		LineItems:  agent.NewLineItemAgent(completer, cases),
		AgentGuard: resilience.NewGuard(completer.Name(), cfg.Pipeline.CallTimeout(), retry, env.Breakers),
	}

	if cfg.Pipeline.OpticalEnabled {
		svc, err := initOptical(env)
		if err != nil {
			env.Close()
			return nil, err
		}
		deps.Optical = svc.Recover
		deps.OpticalGuard = resilience.NewGuard("ocr", cfg.Pipeline.CallTimeout(), retry, env.Breakers)
		if cfg.OCR.Provider == "mistral" {
			opts.OpticalPageCost = calc.OCRPages(1)
		}
	}

	env.Orchestrator, err = pipeline.New(opts, deps)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Store, err = initStore(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func initCompleter(ctx context.Context, env *pipelineEnv, calc *cost.Calculator) (agent.Completer, error) {
	var backend agent.Completer
	switch cfg.Agent.Backend {
	case "gemini":
		client, err := geminipkg.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini client")
		}
		env.closers = append(env.closers, client.Close)
		backend = agent.NewGeminiBackend(client, cfg.Gemini.Model, cfg.Agent.MaxTokens, calc)
	default:
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		backend = agent.NewAnthropicBackend(client, cfg.Anthropic.Model, cfg.Agent.MaxTokens, calc)
	}
	zap.L().Info("agent backend ready", zap.String("backend", backend.Name()))
	return agent.NewLimited(backend, cfg.Agent.RequestsPerSecond, cfg.Agent.Burst), nil
}

func initOptical(env *pipelineEnv) (*ocr.Service, error) {
	recognizer, err := ocr.NewRecognizer(cfg.OCR)
	if err != nil {
		return nil, err
	}

	var cache ocr.Cache
	if cfg.OCR.CachePath != "" {
		bc, err := ocr.OpenBoltCache(cfg.OCR.CachePath)
		if err != nil {
			return nil, eris.Wrap(err, "open optical cache")
		}
		env.closers = append(env.closers, bc.Close)
		cache = bc
	}

	zap.L().Info("optical recovery enabled",
		zap.String("provider", recognizer.Name()),
		zap.Bool("cache", cache != nil),
	)
	return ocr.NewService(ocr.NewFitzRenderer(cfg.OCR.DPI), recognizer, cache, cfg.OCR.MaxPages), nil
}
