package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewTextReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello,world")...),
			expected: "hello,world",
		},
		{
			name:     "file without BOM",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "BOM only stripped at the start",
			input:    []byte("a\uFEFFb"),
			expected: "a\uFEFFb",
		},
		{
			name:     "valid multibyte kept",
			input:    []byte("température,°C"),
			expected: "température,°C",
		},
		{
			name:     "invalid single byte replaced",
			input:    []byte{'h', 'e', 0x80, 'l', 'o'},
			expected: "he\uFFFDlo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(NewTextReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestNewTextReader_DamagedBOM(t *testing.T) {
	result, err := io.ReadAll(NewTextReader(bytes.NewReader([]byte{0xEF, 0xBB, 'a', 'b', 'c'})))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := string(result)
	if !utf8.ValidString(got) || !strings.HasPrefix(got, "\uFFFD") || !strings.HasSuffix(got, "abc") {
		t.Errorf("got %q, want replacement characters followed by abc", got)
	}
}

// oneByteReader returns a single byte per Read, splitting every multi-byte
// sequence across reads.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestNewTextReader_SplitReads(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Tequ,°C,µatm")...)
	result, err := io.ReadAll(NewTextReader(&oneByteReader{data: input}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "Tequ,°C,µatm" {
		t.Errorf("got %q, want %q", string(result), "Tequ,°C,µatm")
	}
}

func TestReadRows(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		opts       ReadOptions
		wantHeader []string
		wantRows   int
		wantErr    string
	}{
		{
			name:       "header and rows",
			input:      "lon,lat\n10,20\n11,21\n",
			opts:       ReadOptions{Header: true},
			wantHeader: []string{"lon", "lat"},
			wantRows:   2,
		},
		{
			name:     "no header",
			input:    "10,20\n11,21\n",
			wantRows: 2,
		},
		{
			name:     "blank rows skipped",
			input:    "10,20\n,\n\n11,21\n",
			wantRows: 2,
		},
		{
			name:     "ragged rows allowed",
			input:    "10,20,30\n11\n",
			wantRows: 2,
		},
		{
			name:     "semicolon delimiter",
			input:    "10;20\n",
			opts:     ReadOptions{Comma: ';'},
			wantRows: 1,
		},
		{
			name:     "comment lines skipped",
			input:    "# instrument export\n10,20\n",
			opts:     ReadOptions{Comment: '#'},
			wantRows: 1,
		},
		{
			name:       "header only",
			input:      "lon,lat\n",
			opts:       ReadOptions{Header: true},
			wantHeader: []string{"lon", "lat"},
			wantRows:   0,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: "empty file",
		},
		{
			name:    "size limit exceeded",
			input:   strings.Repeat("1,2\n", 100),
			opts:    ReadOptions{MaxBytes: 16},
			wantErr: "file too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ReadRows(strings.NewReader(tt.input), tt.opts)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ReadRows() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadRows() unexpected error: %v", err)
			}
			if tt.wantHeader != nil && strings.Join(table.Header, ",") != strings.Join(tt.wantHeader, ",") {
				t.Errorf("Header = %v, want %v", table.Header, tt.wantHeader)
			}
			if len(table.Rows) != tt.wantRows {
				t.Errorf("got %d rows, want %d", len(table.Rows), tt.wantRows)
			}
		})
	}
}

func TestReadRows_BOMAndInvalidUTF8(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte{'L', 'o', 'n', ',', 'l', 'a', 't', '\n', '1', 0x80, ',', '2', '\n'}...)

	table, err := ReadRows(bytes.NewReader(input), ReadOptions{Header: true})
	if err != nil {
		t.Fatalf("ReadRows() unexpected error: %v", err)
	}
	if _, ok := table.HeaderIndex["lon"]; !ok {
		t.Errorf("HeaderIndex = %v, want lon key without BOM", table.HeaderIndex)
	}
	if got := table.Rows[0][0]; got != "1\uFFFD" {
		t.Errorf("Rows[0][0] = %q, want %q", got, "1\uFFFD")
	}
}

func TestReadRows_FileTooLargeIsSentinel(t *testing.T) {
	_, err := ReadRows(strings.NewReader(strings.Repeat("x", 64)), ReadOptions{MaxBytes: 8})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestReadRows_Lines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  ReadOptions
		want  []int
	}{
		{
			name:  "consecutive rows",
			input: "10,20\n11,21\n",
			want:  []int{1, 2},
		},
		{
			name:  "header skipped",
			input: "lon,lat\n10,20\n",
			opts:  ReadOptions{Header: true},
			want:  []int{2},
		},
		{
			name:  "blank and comment lines counted",
			input: "row1\n\n#comment\nrow with sst=999\n",
			opts:  ReadOptions{Comment: '#'},
			want:  []int{1, 4},
		},
		{
			name:  "empty-field row counted",
			input: "10,20\n,\n11,21\n",
			want:  []int{1, 3},
		},
		{
			name:  "multi-line quoted field",
			input: "\"a\nb\",1\n10,20\n",
			want:  []int{1, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ReadRows(strings.NewReader(tt.input), tt.opts)
			if err != nil {
				t.Fatalf("ReadRows() unexpected error: %v", err)
			}
			if len(table.Lines) != len(tt.want) {
				t.Fatalf("Lines = %v, want %v", table.Lines, tt.want)
			}
			for i := range tt.want {
				if table.Lines[i] != tt.want[i] {
					t.Errorf("Lines = %v, want %v", table.Lines, tt.want)
					break
				}
			}
		})
	}
}
