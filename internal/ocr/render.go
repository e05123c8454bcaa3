package ocr

import (
	"bytes"
	"context"
	"image/png"
	"net/http"

	"github.com/gen2brain/go-fitz"
	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/model"
)

const defaultDPI = 300

// Renderer rasterises a source document into page images.
type Renderer interface {
	Render(ctx context.Context, data []byte, media model.MediaType, maxPages int) ([]Page, error)
}

// FitzRenderer renders PDF pages with MuPDF. Image documents are passed
// through as a single page.
type FitzRenderer struct {
	DPI float64
}

// NewFitzRenderer creates a FitzRenderer. A non-positive dpi uses 300.
func NewFitzRenderer(dpi float64) *FitzRenderer {
	if dpi <= 0 {
		dpi = defaultDPI
	}
	return &FitzRenderer{DPI: dpi}
}

// Render implements Renderer.
func (r *FitzRenderer) Render(ctx context.Context, data []byte, media model.MediaType, maxPages int) ([]Page, error) {
	switch media {
	case model.MediaImage:
		return []Page{{Index: 0, Data: data, MIME: http.DetectContentType(data)}}, nil
	case model.MediaPDF:
	default:
		return nil, eris.Errorf("ocr: cannot render %s documents", media)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: open pdf")
	}
	defer doc.Close() //nolint:errcheck

	n := doc.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	pages := make([]Page, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ocr: render cancelled")
		}
		img, err := doc.ImageDPI(i, r.DPI)
		if err != nil {
			return nil, eris.Wrapf(err, "ocr: render page %d", i+1)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, eris.Wrapf(err, "ocr: encode page %d", i+1)
		}
		pages = append(pages, Page{Index: i, Data: buf.Bytes(), MIME: "image/png"})
	}
	return pages, nil
}
