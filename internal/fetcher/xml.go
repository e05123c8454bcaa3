package fetcher

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// XMLTextOptions selects which elements carry text and which end a line.
type XMLTextOptions struct {
	TextElement  string   // local name of character-data elements, e.g. "t"
	BreakElement string   // local name whose end emits a newline, e.g. "p"
	TabElements  []string // local names rendered as a tab, e.g. "tab"
}

// XMLText concatenates the character data of TextElement elements and
// inserts line breaks at the end of each BreakElement.
func XMLText(ctx context.Context, r io.Reader, opts XMLTextOptions) (string, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var (
		b      strings.Builder
		inText bool
	)
	for {
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "xml: context cancelled")
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", eris.Wrap(err, "xml: read token")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == opts.TextElement:
				inText = true
			case contains(opts.TabElements, t.Name.Local):
				b.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case opts.TextElement:
				inText = false
			case opts.BreakElement:
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
