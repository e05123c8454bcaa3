package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MediaType classifies the source document an invoice was loaded from.
type MediaType string

const (
	MediaText  MediaType = "text"
	MediaPDF   MediaType = "pdf"
	MediaImage MediaType = "image"
	MediaDOCX  MediaType = "docx"
	MediaXLSX  MediaType = "xlsx"
)

// Renderable reports whether pages of this media type can be rasterised for
// optical recovery.
func (m MediaType) Renderable() bool {
	return m == MediaPDF || m == MediaImage
}

// OpticalPages is the outcome of optical recovery. Cached pages were served
// from a local store without calling the recogniser.
type OpticalPages struct {
	Texts  []string
	Cached bool
}

// OpticalFunc produces per-page optical text for an invoice.
type OpticalFunc func(ctx context.Context, inv *Invoice) (OpticalPages, error)

// Invoice is a single document moving through the extraction pipeline.
// RawText may be empty. Optical text is filled lazily, at most once per run.
type Invoice struct {
	ID          string
	Source      string
	ContentHash string
	MediaType   MediaType
	RawText     string
	PageCount   int
	Document    []byte

	opticalMu   sync.Mutex
	opticalDone bool
	optical     OpticalPages
	opticalErr  error
}

// Optical returns the optical pages, calling fn on first use only.
// A failed recovery is remembered as well, so fn runs at most once.
func (inv *Invoice) Optical(ctx context.Context, fn OpticalFunc) (OpticalPages, error) {
	inv.opticalMu.Lock()
	defer inv.opticalMu.Unlock()

	if !inv.opticalDone {
		inv.optical, inv.opticalErr = fn(ctx, inv)
		inv.opticalDone = true
	}
	return inv.optical, inv.opticalErr
}

// OpticalInvoked reports whether optical recovery has run for this invoice.
func (inv *Invoice) OpticalInvoked() bool {
	inv.opticalMu.Lock()
	defer inv.opticalMu.Unlock()
	return inv.opticalDone
}

// OpticalText returns the cached optical pages joined with page markers, or
// "" when recovery has not run or failed.
func (inv *Invoice) OpticalText() string {
	inv.opticalMu.Lock()
	defer inv.opticalMu.Unlock()
	return JoinPages(inv.optical.Texts)
}

// JoinPages concatenates page texts using "--- Page N ---" separators.
func JoinPages(pages []string) string {
	if len(pages) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n", i+1)
		sb.WriteString(p)
	}
	return sb.String()
}
