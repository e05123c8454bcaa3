package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet is one worksheet of a workbook as string rows.
type Sheet struct {
	Name string
	Rows [][]string
}

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetName string // if set, only this sheet is read
	SkipRows  int    // number of header rows to skip per sheet
	// SkipEmpty drops rows without any non-blank cell.
	SkipEmpty bool
}

// ReadWorkbook parses an XLSX document held in memory.
func ReadWorkbook(data []byte, opts XLSXOptions) ([]Sheet, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	var sheets []*xlsx.Sheet
	if opts.SheetName != "" {
		s, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		sheets = append(sheets, s)
	} else {
		sheets = f.Sheets
	}

	out := make([]Sheet, 0, len(sheets))
	for _, s := range sheets {
		sh := Sheet{Name: s.Name}
		for i, row := range s.Rows {
			if i < opts.SkipRows || row == nil {
				continue
			}
			cells := rowToStrings(row)
			if opts.SkipEmpty && blank(cells) {
				continue
			}
			sh.Rows = append(sh.Rows, cells)
		}
		out = append(out, sh)
	}
	return out, nil
}

// SheetText renders sheets as tab-separated lines, one block per sheet.
func SheetText(sheets []Sheet) string {
	var b strings.Builder
	for i, s := range sheets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("--- Sheet: " + s.Name + " ---\n")
		for _, row := range s.Rows {
			b.WriteString(strings.TrimRight(strings.Join(row, "\t"), "\t"))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
