package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the settings needed by mode are present. Modes:
// "batch", "run", "serve" process invoices; "eval" and "runs" only read.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "batch", "run", "serve":
		errs = append(errs, c.validateProcessing()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "eval":
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateProcessing() []string {
	var errs []string
	if c.Registry.Path == "" {
		errs = append(errs, "registry.path is required")
	}
	if c.Pipeline.CallTimeoutSecs <= 0 {
		errs = append(errs, "pipeline.call_timeout_secs must be > 0")
	}
	if len(c.Pipeline.CriticalFields) == 0 {
		errs = append(errs, "pipeline.critical_fields must not be empty")
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
		errs = append(errs, "batch.concurrency must be between 1 and 64")
	}

	switch c.Agent.Backend {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			errs = append(errs, "gemini.key is required")
		}
	default:
		errs = append(errs, "agent.backend must be anthropic or gemini")
	}

	if c.Pipeline.OpticalEnabled {
		switch c.OCR.Provider {
		case "tesseract", "":
		case "mistral":
			if c.OCR.MistralKey == "" {
				errs = append(errs, "ocr.mistral_api_key is required for the mistral provider")
			}
		default:
			errs = append(errs, "ocr.provider must be tesseract or mistral")
		}
	}

	return append(errs, c.validateStore()...)
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	case "", "none":
		return nil
	default:
		return []string{"store.driver must be sqlite, postgres or none"}
	}
}
