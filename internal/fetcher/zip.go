package fetcher

import (
	"archive/zip"
	"bytes"
	"io"

	"github.com/rotisserie/eris"
)

// maxZIPEntry bounds how much of a single archive member is read.
const maxZIPEntry = 64 << 20

// ReadZIPEntry returns the contents of the named member of an in-memory ZIP
// archive (OOXML documents are ZIP containers).
func ReadZIPEntry(data []byte, name string) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		if f.UncompressedSize64 > maxZIPEntry {
			return nil, eris.Errorf("zip: entry %q too large (%d bytes)", name, f.UncompressedSize64)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrap(err, "zip: open entry")
		}
		defer rc.Close() //nolint:errcheck

		b, err := io.ReadAll(io.LimitReader(rc, maxZIPEntry))
		if err != nil {
			return nil, eris.Wrap(err, "zip: read entry")
		}
		return b, nil
	}

	return nil, eris.Errorf("zip: file %q not found in archive", name)
}
