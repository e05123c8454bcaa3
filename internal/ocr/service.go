package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/resilience"
)

// Service renders, recognises and caches invoice pages.
type Service struct {
	renderer   Renderer
	recognizer Recognizer
	cache      Cache
	maxPages   int
}

// NewService creates a Service. cache may be nil.
func NewService(renderer Renderer, recognizer Recognizer, cache Cache, maxPages int) *Service {
	return &Service{
		renderer:   renderer,
		recognizer: recognizer,
		cache:      cache,
		maxPages:   maxPages,
	}
}

// Recover returns one text per rendered page of inv. It never returns an
// empty result without an error; failures carry an ErrorKind. Pages served
// from the cache are marked Cached.
func (s *Service) Recover(ctx context.Context, inv *model.Invoice) (model.OpticalPages, error) {
	texts, cached, err := s.recover(ctx, inv)
	if err != nil {
		return model.OpticalPages{}, err
	}
	return model.OpticalPages{Texts: texts, Cached: cached}, nil
}

func (s *Service) recover(ctx context.Context, inv *model.Invoice) ([]string, bool, error) {
	if !inv.MediaType.Renderable() {
		return nil, false, model.NewKindError(model.KindMalformedInput, "ocr: recover",
			eris.Errorf("%s documents have no page images", inv.MediaType))
	}
	if len(inv.Document) == 0 {
		return nil, false, model.NewKindError(model.KindMalformedInput, "ocr: recover", eris.New("no document bytes"))
	}

	key := s.cacheKey(inv)
	if s.cache != nil && key != "" {
		pages, ok, err := s.cache.Get(key)
		if err != nil {
			zap.L().Warn("ocr: cache read failed", zap.String("invoice", inv.ID), zap.Error(err))
		} else if ok {
			zap.L().Debug("ocr: cache hit", zap.String("invoice", inv.ID), zap.Int("pages", len(pages)))
			return pages, true, nil
		}
	}

	pages, err := s.renderer.Render(ctx, inv.Document, inv.MediaType, s.maxPages)
	if err != nil {
		return nil, false, model.NewKindError(model.KindMalformedInput, "ocr: render", err)
	}
	if len(pages) == 0 {
		return nil, false, model.NewKindError(model.KindMalformedInput, "ocr: render", eris.New("document has no pages"))
	}

	texts, err := s.recognizer.Recognize(ctx, pages)
	if err != nil {
		err = resilience.Classify("ocr: recognize", err)
		if model.KindOf(err) == "" {
			err = model.NewKindError(model.KindServiceUnavailable, "ocr: recognize", err)
		}
		return nil, false, err
	}
	if blankPages(texts) {
		return nil, false, model.NewKindError(model.KindMalformedInput, "ocr: recognize", eris.New("no text recognised"))
	}

	zap.L().Info("ocr: pages recovered",
		zap.String("invoice", inv.ID),
		zap.String("recognizer", s.recognizer.Name()),
		zap.Int("pages", len(texts)),
	)

	if s.cache != nil && key != "" {
		if err := s.cache.Put(key, texts); err != nil {
			zap.L().Warn("ocr: cache write failed", zap.String("invoice", inv.ID), zap.Error(err))
		}
	}
	return texts, false, nil
}

func (s *Service) cacheKey(inv *model.Invoice) string {
	if inv.ContentHash == "" {
		return ""
	}
	return inv.ContentHash + ":" + s.recognizer.Name()
}

func blankPages(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}
