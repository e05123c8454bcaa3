// Package ocr recovers text from invoice pages that have no usable text
// layer: pages are rendered to images, recognised, and cached by content hash.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/config"
)

// Page is one rendered page image.
type Page struct {
	Index int
	Data  []byte
	MIME  string
}

// Recognizer turns page images into text, one string per page.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, pages []Page) ([]string, error)
}

// NewRecognizer creates a Recognizer based on config.
func NewRecognizer(cfg config.OCRConfig) (Recognizer, error) {
	switch cfg.Provider {
	case "tesseract", "":
		return NewTesseract(cfg.Languages), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistral(cfg.MistralKey, cfg.MistralModel, cfg.MistralEndpoint), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
