package core

// streaming.go reads CSV datasets without loading the raw bytes up front.
//
// ReadRows wraps the input to handle common file issues:
//
//   - a size limit that fails once MaxBytes is exceeded
//   - invalid UTF-8 sequences, replaced with U+FFFD
//   - the UTF-8 BOM (0xEF 0xBB 0xBF) that Windows programs add
//
// The text cleanup uses golang.org/x/text transformers, which keep
// multi-byte sequences intact across read boundaries.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// NewTextReader returns a reader yielding valid UTF-8 without a leading
// BOM. Ill-formed bytes are replaced before the BOM is stripped, so a
// damaged BOM survives as replacement characters.
func NewTextReader(r io.Reader) io.Reader {
	return transform.NewReader(r, transform.Chain(
		runes.ReplaceIllFormed(),
		unicode.UTF8BOM.NewDecoder(),
	))
}

// ErrFileTooLarge is returned by ReadRows when the input exceeds MaxBytes.
var ErrFileTooLarge = errors.New("file too large")

// sizeLimitReader fails with ErrFileTooLarge once more than limit bytes
// have been read.
type sizeLimitReader struct {
	reader io.Reader
	limit  int64
	read   int64
}

func (r *sizeLimitReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read += int64(n)
	if r.limit > 0 && r.read > r.limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, r.limit)
	}
	return n, err
}

// ReadOptions controls how ReadRows parses a dataset.
type ReadOptions struct {
	Header   bool  // First record is a header row
	Comma    rune  // Field delimiter, default ','
	Comment  rune  // Lines starting with this rune are skipped; 0 disables
	MaxBytes int64 // 0 means unlimited
}

// Table is a parsed dataset.
type Table struct {
	Header      []string
	HeaderIndex HeaderIndex
	Rows        [][]string
	// Lines holds the physical line on which each row starts, counting
	// skipped blank and comment lines.
	Lines []int
}

// ReadRows parses a CSV dataset. Rows may have differing lengths; short
// rows are treated as having empty trailing fields by the assembler.
//
// The size limit is enforced on the raw bytes, before any decoding.
func ReadRows(r io.Reader, opts ReadOptions) (*Table, error) {
	limited := &sizeLimitReader{reader: r, limit: opts.MaxBytes}
	reader := csv.NewReader(NewTextReader(limited))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.Comment = opts.Comment

	table := &Table{}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrFileTooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		if opts.Header && table.Header == nil {
			table.Header = rec
			table.HeaderIndex = MakeHeaderIndex(rec)
			continue
		}
		if isBlankRow(rec) {
			continue
		}
		line, _ := reader.FieldPos(0)
		table.Rows = append(table.Rows, rec)
		table.Lines = append(table.Lines, line)
	}

	if table.Header == nil && len(table.Rows) == 0 {
		return nil, errors.New("empty file: no rows found")
	}
	return table, nil
}

func isBlankRow(rec []string) bool {
	for _, f := range rec {
		if CleanCell(f) != "" {
			return false
		}
	}
	return true
}
