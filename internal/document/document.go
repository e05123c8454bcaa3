// Package document loads invoice files into model.Invoice values: it picks
// the media type from the extension, pulls the text layer and hashes the
// source bytes.
package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/invoice-cli/internal/config"
	"github.com/sells-group/invoice-cli/internal/fetcher"
	"github.com/sells-group/invoice-cli/internal/model"
)

const defaultMaxBytes = 32 << 20

var extMedia = map[string]model.MediaType{
	".txt":  model.MediaText,
	".text": model.MediaText,
	".pdf":  model.MediaPDF,
	".docx": model.MediaDOCX,
	".xlsx": model.MediaXLSX,
	".png":  model.MediaImage,
	".jpg":  model.MediaImage,
	".jpeg": model.MediaImage,
	".tif":  model.MediaImage,
	".tiff": model.MediaImage,
}

// MediaTypeOf returns the media type implied by the file extension.
func MediaTypeOf(path string) (model.MediaType, bool) {
	m, ok := extMedia[strings.ToLower(filepath.Ext(path))]
	return m, ok
}

// InvoiceID derives an invoice identifier from a file name.
func InvoiceID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// InvoiceIDs derives one identifier per path, unique within paths. The bare
// file stem is kept where no other path shares it. Colliding paths are
// qualified step by step, first with their extension and then with one more
// parent directory, until they differ. Identical paths are numbered.
func InvoiceIDs(paths []string) []string {
	ids := make([]string, len(paths))
	level := make([]int, len(paths))
	for i, p := range paths {
		ids[i] = InvoiceID(p)
	}
	for {
		clash := collisions(ids)
		if len(clash) == 0 {
			return ids
		}
		moved := false
		for _, i := range clash {
			if id, ok := qualifiedID(paths[i], level[i]+1); ok {
				level[i]++
				ids[i] = id
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	seen := make(map[string]int, len(ids))
	for i, id := range ids {
		seen[id]++
		if n := seen[id]; n > 1 {
			ids[i] = fmt.Sprintf("%s-%d", id, n)
		}
	}
	return ids
}

func collisions(ids []string) []int {
	count := make(map[string]int, len(ids))
	for _, id := range ids {
		count[id]++
	}
	var out []int
	for i, id := range ids {
		if count[id] > 1 {
			out = append(out, i)
		}
	}
	return out
}

// qualifiedID names path at the given level: odd levels carry the extension,
// and every two levels add one parent directory, joined with "_".
func qualifiedID(path string, level int) (string, bool) {
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if p != "" && p != "." && p != ".." && !strings.HasSuffix(p, ":") {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	dirs := level / 2
	if dirs > len(parts)-1 {
		return "", false
	}
	name := parts[len(parts)-1]
	if level%2 == 0 {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return strings.Join(append(slices.Clone(parts[len(parts)-1-dirs:len(parts)-1]), name), "_"), true
}

// Discover lists the supported documents under dir in lexical order. Hidden
// files and directories are skipped.
func Discover(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := MediaTypeOf(path); ok {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "document: walk %s", dir)
	}
	sort.Strings(out)
	return out, nil
}

// PDFTextExtractor pulls a text layer from a PDF on disk.
type PDFTextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Loader reads documents into invoices.
type Loader struct {
	fallback PDFTextExtractor
	maxBytes int64
}

// NewLoader creates a Loader. The pdftotext binary is used when the native
// PDF reader yields no text.
func NewLoader(cfg config.DocumentConfig) *Loader {
	l := &Loader{maxBytes: cfg.MaxBytes}
	if cfg.PdfToTextPath != "" {
		l.fallback = NewPdfToText(cfg.PdfToTextPath)
	}
	if l.maxBytes <= 0 {
		l.maxBytes = defaultMaxBytes
	}
	return l
}

// Load reads the file at path as invoice id. An empty id falls back to
// InvoiceID(path).
func (l *Loader) Load(ctx context.Context, path, id string) (*model.Invoice, error) {
	if id == "" {
		id = InvoiceID(path)
	}
	media, ok := MediaTypeOf(path)
	if !ok {
		return nil, model.NewKindError(model.KindInputUnreadable, "document: load",
			eris.Errorf("unsupported file type %q", filepath.Ext(path)))
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, model.NewKindError(model.KindInputUnreadable, "document: load", eris.Wrapf(err, "stat %s", path))
	}
	if info.Size() > l.maxBytes {
		return nil, model.NewKindError(model.KindInputUnreadable, "document: load",
			eris.Errorf("%s is %d bytes, limit is %d", path, info.Size(), l.maxBytes))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewKindError(model.KindInputUnreadable, "document: load", eris.Wrapf(err, "read %s", path))
	}
	return l.FromBytes(ctx, id, path, media, data)
}

// FromBytes builds an invoice from in-memory content.
func (l *Loader) FromBytes(ctx context.Context, id, source string, media model.MediaType, data []byte) (*model.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "document: load cancelled")
	}
	sum := sha256.Sum256(data)
	inv := &model.Invoice{
		ID:          id,
		Source:      source,
		ContentHash: hex.EncodeToString(sum[:]),
		MediaType:   media,
		PageCount:   1,
	}

	var err error
	switch media {
	case model.MediaText:
		inv.RawText = DecodeText(data)
	case model.MediaPDF:
		inv.Document = data
		inv.RawText, inv.PageCount = l.pdfText(ctx, id, data)
	case model.MediaImage:
		inv.Document = data
	case model.MediaDOCX:
		inv.RawText, err = docxText(ctx, data)
	case model.MediaXLSX:
		inv.RawText, inv.PageCount, err = xlsxText(data)
	default:
		err = eris.Errorf("unsupported media type %q", media)
	}
	if err != nil {
		return nil, model.NewKindError(model.KindInputUnreadable, "document: "+string(media), err)
	}
	return inv, nil
}

// DecodeText returns data as UTF-8, reading invalid UTF-8 as Windows-1252.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(out)
}

// pdfText returns the text layer and page count. An unreadable layer yields
// empty text; the gate decides what that means.
func (l *Loader) pdfText(ctx context.Context, id string, data []byte) (string, int) {
	text, pages, err := readPDF(data)
	if err != nil {
		zap.L().Debug("document: native pdf read failed", zap.String("invoice", id), zap.Error(err))
	}
	if strings.TrimSpace(text) != "" || l.fallback == nil {
		return text, max(pages, 1)
	}

	tmp, err := os.CreateTemp("", "invoice-*.pdf")
	if err != nil {
		zap.L().Warn("document: temp file", zap.Error(err))
		return text, max(pages, 1)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return text, max(pages, 1)
	}
	tmp.Close() //nolint:errcheck

	out, err := l.fallback.ExtractText(ctx, tmp.Name())
	if err != nil {
		zap.L().Debug("document: pdftotext fallback failed", zap.String("invoice", id), zap.Error(err))
		return text, max(pages, 1)
	}
	return out, max(pages, 1)
}

func readPDF(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("document: pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, eris.Wrap(err, "document: open pdf")
	}
	pages = r.NumPage()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", pages, eris.Wrap(err, "document: pdf text")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", pages, eris.Wrap(err, "document: read pdf text")
	}
	return buf.String(), pages, nil
}

func docxText(ctx context.Context, data []byte) (string, error) {
	body, err := fetcher.ReadZIPEntry(data, "word/document.xml")
	if err != nil {
		return "", err
	}
	return fetcher.XMLText(ctx, bytes.NewReader(body), fetcher.XMLTextOptions{
		TextElement:  "t",
		BreakElement: "p",
		TabElements:  []string{"tab"},
	})
}

func xlsxText(data []byte) (string, int, error) {
	sheets, err := fetcher.ReadWorkbook(data, fetcher.XLSXOptions{SkipEmpty: true})
	if err != nil {
		return "", 0, err
	}
	return fetcher.SheetText(sheets), max(len(sheets), 1), nil
}
