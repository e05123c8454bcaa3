package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Tesseract recognises pages with a local Tesseract installation.
type Tesseract struct {
	languages []string
}

// NewTesseract creates a Tesseract recognizer. Empty languages default to
// Dutch and English.
func NewTesseract(languages []string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"nld", "eng"}
	}
	return &Tesseract{languages: languages}
}

// Name implements Recognizer.
func (t *Tesseract) Name() string {
	return "tesseract:" + strings.Join(t.languages, "+")
}

// Recognize implements Recognizer.
func (t *Tesseract) Recognize(ctx context.Context, pages []Page) ([]string, error) {
	client := gosseract.NewClient()
	defer client.Close() //nolint:errcheck

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, model.NewKindError(model.KindServiceUnavailable, "ocr: tesseract", eris.Wrap(err, "set language"))
	}

	out := make([]string, 0, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ocr: tesseract cancelled")
		}
		if err := client.SetImageFromBytes(p.Data); err != nil {
			return nil, model.NewKindError(model.KindMalformedInput, "ocr: tesseract", eris.Wrapf(err, "load page %d", p.Index+1))
		}
		text, err := client.Text()
		if err != nil {
			return nil, model.NewKindError(model.KindServiceUnavailable, "ocr: tesseract", eris.Wrapf(err, "recognise page %d", p.Index+1))
		}
		out = append(out, text)
	}
	return out, nil
}
