package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/config"
	"github.com/sells-group/invoice-cli/internal/model"
)

func TestNewRecognizer_Tesseract(t *testing.T) {
	rec, err := NewRecognizer(config.OCRConfig{Provider: "tesseract", Languages: []string{"nld"}})
	require.NoError(t, err)
	assert.IsType(t, &Tesseract{}, rec)
	assert.Equal(t, "tesseract:nld", rec.Name())
}

func TestNewRecognizer_Default(t *testing.T) {
	rec, err := NewRecognizer(config.OCRConfig{})
	require.NoError(t, err)
	assert.Equal(t, "tesseract:nld+eng", rec.Name())
}

func TestNewRecognizer_MistralMissingKey(t *testing.T) {
	_, err := NewRecognizer(config.OCRConfig{Provider: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral provider requires mistral_api_key")
}

func TestNewRecognizer_MistralWithKey(t *testing.T) {
	rec, err := NewRecognizer(config.OCRConfig{Provider: "mistral", MistralKey: "test-key"})
	require.NoError(t, err)
	assert.IsType(t, &Mistral{}, rec)
	assert.Equal(t, "mistral:"+defaultMistralModel, rec.Name())
}

func TestNewRecognizer_UnknownProvider(t *testing.T) {
	_, err := NewRecognizer(config.OCRConfig{Provider: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "unknown"`)
}

func TestMistral_Defaults(t *testing.T) {
	m := NewMistral("key", "", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
}

func TestMistral_Recognize(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "image_url", req.Document.Type)
		assert.Contains(t, req.Document.ImageURL, "data:image/png;base64,")

		resp := mistralOCRResponse{Pages: []mistralOCRPage{{Index: 0, Markdown: "KvK 84726180"}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistral("test-key", "test-model", srv.URL)
	texts, err := m.Recognize(context.Background(), []Page{
		{Index: 0, Data: []byte("png-1"), MIME: "image/png"},
		{Index: 1, Data: []byte("png-2")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"KvK 84726180", "KvK 84726180"}, texts)
	assert.Equal(t, 2, calls)
}

func TestMistral_StatusKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   model.ErrorKind
	}{
		{http.StatusTooManyRequests, model.KindQuotaExceeded},
		{http.StatusServiceUnavailable, model.KindServiceUnavailable},
		{http.StatusBadRequest, model.KindMalformedInput},
		{http.StatusGatewayTimeout, model.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`)) //nolint:errcheck
			}))
			defer srv.Close()

			_, err := NewMistral("k", "m", srv.URL).Recognize(context.Background(), []Page{{Data: []byte("x")}})
			require.Error(t, err)
			assert.Equal(t, tt.kind, model.KindOf(err))
		})
	}
}

func TestMistral_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewMistral("k", "m", srv.URL).Recognize(context.Background(), []Page{{Data: []byte("x")}})
	assert.True(t, model.IsKind(err, model.KindMalformedResponse))
}

func TestBoltCache(t *testing.T) {
	cache, err := OpenBoltCache(filepath.Join(t.TempDir(), "optical.db"))
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	_, ok, err := cache.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put("abc:tesseract", []string{"page one", "page two"}))
	pages, ok, err := cache.Get("abc:tesseract")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"page one", "page two"}, pages)
}

type mockRenderer struct{ mock.Mock }

func (m *mockRenderer) Render(ctx context.Context, data []byte, media model.MediaType, maxPages int) ([]Page, error) {
	args := m.Called(ctx, data, media, maxPages)
	pages, _ := args.Get(0).([]Page)
	return pages, args.Error(1)
}

type mockRecognizer struct{ mock.Mock }

func (m *mockRecognizer) Name() string { return "mock" }

func (m *mockRecognizer) Recognize(ctx context.Context, pages []Page) ([]string, error) {
	args := m.Called(ctx, pages)
	texts, _ := args.Get(0).([]string)
	return texts, args.Error(1)
}

func pdfInvoice() *model.Invoice {
	return &model.Invoice{ID: "inv-1", MediaType: model.MediaPDF, Document: []byte("%PDF"), ContentHash: "h1"}
}

func TestService_RecoverAndCache(t *testing.T) {
	rend := new(mockRenderer)
	rec := new(mockRecognizer)
	pages := []Page{{Index: 0, Data: []byte("img")}}
	rend.On("Render", mock.Anything, []byte("%PDF"), model.MediaPDF, 5).Return(pages, nil).Once()
	rec.On("Recognize", mock.Anything, pages).Return([]string{"BTW NL863334647B01"}, nil).Once()

	cache, err := OpenBoltCache(filepath.Join(t.TempDir(), "optical.db"))
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	svc := NewService(rend, rec, cache, 5)
	got, err := svc.Recover(context.Background(), pdfInvoice())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTW NL863334647B01"}, got.Texts)
	assert.False(t, got.Cached)

	// second call with the same content hash is served from the cache
	got, err = svc.Recover(context.Background(), pdfInvoice())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTW NL863334647B01"}, got.Texts)
	assert.True(t, got.Cached)

	rend.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestService_TypedFailures(t *testing.T) {
	t.Run("not renderable", func(t *testing.T) {
		svc := NewService(new(mockRenderer), new(mockRecognizer), nil, 0)
		_, err := svc.Recover(context.Background(), &model.Invoice{MediaType: model.MediaText, Document: []byte("x")})
		assert.True(t, model.IsKind(err, model.KindMalformedInput))
	})

	t.Run("no bytes", func(t *testing.T) {
		svc := NewService(new(mockRenderer), new(mockRecognizer), nil, 0)
		_, err := svc.Recover(context.Background(), &model.Invoice{MediaType: model.MediaPDF})
		assert.True(t, model.IsKind(err, model.KindMalformedInput))
	})

	t.Run("render error", func(t *testing.T) {
		rend := new(mockRenderer)
		rend.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("corrupt"))
		_, err := NewService(rend, new(mockRecognizer), nil, 0).Recover(context.Background(), pdfInvoice())
		assert.True(t, model.IsKind(err, model.KindMalformedInput))
	})

	t.Run("zero pages", func(t *testing.T) {
		rend := new(mockRenderer)
		rend.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]Page{}, nil)
		_, err := NewService(rend, new(mockRecognizer), nil, 0).Recover(context.Background(), pdfInvoice())
		assert.True(t, model.IsKind(err, model.KindMalformedInput))
	})

	t.Run("blank text", func(t *testing.T) {
		rend := new(mockRenderer)
		rec := new(mockRecognizer)
		rend.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]Page{{}}, nil)
		rec.On("Recognize", mock.Anything, mock.Anything).Return([]string{"  \n"}, nil)
		_, err := NewService(rend, rec, nil, 0).Recover(context.Background(), pdfInvoice())
		assert.True(t, model.IsKind(err, model.KindMalformedInput))
	})

	t.Run("recognizer quota", func(t *testing.T) {
		rend := new(mockRenderer)
		rec := new(mockRecognizer)
		rend.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]Page{{}}, nil)
		rec.On("Recognize", mock.Anything, mock.Anything).
			Return(nil, model.NewKindError(model.KindQuotaExceeded, "test", errors.New("429")))
		_, err := NewService(rend, rec, nil, 0).Recover(context.Background(), pdfInvoice())
		assert.True(t, model.IsKind(err, model.KindQuotaExceeded))
	})

	t.Run("untyped recognizer error", func(t *testing.T) {
		rend := new(mockRenderer)
		rec := new(mockRecognizer)
		rend.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]Page{{}}, nil)
		rec.On("Recognize", mock.Anything, mock.Anything).Return(nil, errors.New("engine crashed"))
		_, err := NewService(rend, rec, nil, 0).Recover(context.Background(), pdfInvoice())
		assert.True(t, model.IsKind(err, model.KindServiceUnavailable))
	})
}

func TestFitzRenderer_ImagePassThrough(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	pages, err := NewFitzRenderer(0).Render(context.Background(), png, model.MediaImage, 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "image/png", pages[0].MIME)
	assert.Equal(t, png, pages[0].Data)
}

func TestFitzRenderer_RejectsText(t *testing.T) {
	_, err := NewFitzRenderer(150).Render(context.Background(), []byte("x"), model.MediaText, 0)
	assert.Error(t, err)
}
