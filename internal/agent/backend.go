package agent

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/cost"
	"github.com/sells-group/invoice-cli/pkg/anthropic"
	"github.com/sells-group/invoice-cli/pkg/gemini"
)

const defaultMaxTokens = 4096

// AnthropicBackend completes prompts with Claude.
type AnthropicBackend struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	calc      *cost.Calculator
}

// NewAnthropicBackend creates a Claude-backed Completer.
func NewAnthropicBackend(client anthropic.Client, model string, maxTokens int64, calc *cost.Calculator) *AnthropicBackend {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicBackend{client: client, model: model, maxTokens: maxTokens, calc: calc}
}

// Name implements Completer.
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Complete implements Completer.
func (b *AnthropicBackend) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	maxTokens := b.maxTokens
	if p.MaxTokens > 0 {
		maxTokens = p.MaxTokens
	}
	temp := 0.0
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       b.model,
		MaxTokens:   maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(p.System),
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, statusError("agent: anthropic", anthropic.StatusCode(err), err)
	}

	u := resp.Usage
	c := &Completion{
		Text:         resp.Text(),
		Model:        b.model,
		InputTokens:  u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens,
		OutputTokens: u.OutputTokens,
		CostUSD:      b.calc.Claude(b.model, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens),
	}
	logCost(c, p.Phase)

	if resp.StopReason == "refusal" {
		return c, refused("agent: anthropic", resp.StopReason)
	}
	if resp.StopReason == "max_tokens" {
		return c, malformed("agent: anthropic", eris.New("response truncated at max_tokens"))
	}
	return c, nil
}

// GeminiBackend completes prompts with Gemini.
type GeminiBackend struct {
	client    gemini.Client
	model     string
	maxTokens int32
	calc      *cost.Calculator
}

// NewGeminiBackend creates a Gemini-backed Completer.
func NewGeminiBackend(client gemini.Client, model string, maxTokens int64, calc *cost.Calculator) *GeminiBackend {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &GeminiBackend{client: client, model: model, maxTokens: int32(maxTokens), calc: calc}
}

// Name implements Completer.
func (b *GeminiBackend) Name() string { return "gemini" }

// Complete implements Completer.
func (b *GeminiBackend) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	var temp float32
	resp, err := b.client.Generate(ctx, gemini.Request{
		Model:       b.model,
		System:      p.System,
		Prompt:      p.User,
		Temperature: &temp,
		MaxTokens:   b.maxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, statusError("agent: gemini", gemini.StatusCode(err), err)
	}

	c := &Completion{
		Text:         resp.Text,
		Model:        b.model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostUSD:      b.calc.Gemini(b.model, resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}
	logCost(c, p.Phase)

	if resp.Blocked() {
		reason := resp.BlockReason
		if reason == "" {
			reason = resp.FinishReason
		}
		return c, refused("agent: gemini", strings.ToLower(reason))
	}
	return c, nil
}

func logCost(c *Completion, phase string) {
	zap.L().Info("cost attribution",
		zap.String("model", c.Model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", c.InputTokens),
		zap.Int64("output_tokens", c.OutputTokens),
		zap.Float64("estimated_cost_usd", c.CostUSD),
	)
}
