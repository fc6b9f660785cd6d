package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Split("some text", tt.size, tt.overlap); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Split(size=%d, overlap=%d) error = %v, want ErrInvalidConfig", tt.size, tt.overlap, err)
			}
		})
	}
}

func TestSplit_Windows(t *testing.T) {
	t.Parallel()

	text := "abcdefghij" // 10 chars
	chunks, err := Split(text, 4, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"abcd", "cdef", "efgh", "ghij", "ij"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %q, want %d", len(chunks), chunks, len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

// TestSplit_Coverage checks the reconstruction property: concatenating the
// chunks with each chunk's leading overlap removed yields the input exactly,
// no chunk exceeds the window size, and consecutive chunks share exactly
// overlap characters.
func TestSplit_Coverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		text          string
		size, overlap int
	}{
		{"exact multiple", strings.Repeat("x", 1600) + "tail", 1000, 200},
		{"short text", "short", 1000, 200},
		{"no overlap", strings.Repeat("abcde", 100), 50, 0},
		{"heavy overlap", strings.Repeat("qwerty", 40), 30, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chunks, err := Split(tt.text, tt.size, tt.overlap)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}

			var rebuilt strings.Builder
			for i, c := range chunks {
				if len(c) > tt.size {
					t.Errorf("chunk[%d] length %d exceeds size %d", i, len(c), tt.size)
				}
				if i == 0 {
					rebuilt.WriteString(c)
					continue
				}
				prev := chunks[i-1]
				shared := tt.overlap
				if shared > len(c) {
					// A short trailing chunk can carry less than the full overlap.
					shared = len(c)
				}
				if len(prev) >= shared && prev[len(prev)-shared:] != c[:shared] {
					t.Errorf("chunk[%d] does not overlap chunk[%d] by %d chars", i, i-1, shared)
				}
				rebuilt.WriteString(c[shared:])
			}

			if rebuilt.String() != tt.text {
				t.Errorf("reconstructed text differs from input (got %d chars, want %d)",
					rebuilt.Len(), len(tt.text))
			}
		})
	}
}

// TestSplit_MultiByteRunes checks that windows never cut a multi-byte rune
// in half: every chunk must be valid UTF-8 and span whole code points.
func TestSplit_MultiByteRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		text          string
		size, overlap int
		want          []string
	}{
		{
			name: "two-byte runes",
			text: strings.Repeat("é", 10),
			size: 3, overlap: 0,
			want: []string{"ééé", "ééé", "ééé", "é"},
		},
		{
			name: "mixed widths with overlap",
			text: "aéa" + "日本語" + "bεb",
			size: 4, overlap: 1,
			want: []string{"aéa日", "日本語b", "bεb"},
		},
		{
			name: "four-byte runes",
			text: strings.Repeat("𝛼", 5),
			size: 2, overlap: 0,
			want: []string{"𝛼𝛼", "𝛼𝛼", "𝛼"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chunks, err := Split(tt.text, tt.size, tt.overlap)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			if len(chunks) != len(tt.want) {
				t.Fatalf("got %d chunks %q, want %d", len(chunks), chunks, len(tt.want))
			}
			for i, c := range chunks {
				if !utf8.ValidString(c) {
					t.Errorf("chunk[%d] = %q is not valid UTF-8", i, c)
				}
				if c != tt.want[i] {
					t.Errorf("chunk[%d] = %q, want %q", i, c, tt.want[i])
				}
				if n := utf8.RuneCountInString(c); n > tt.size {
					t.Errorf("chunk[%d] spans %d runes, want at most %d", i, n, tt.size)
				}
			}
		})
	}
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("the quick brown fox ", 200)
	a, err := Split(text, 1000, 200)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	b, err := Split(text, 1000, 200)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk[%d] differs between runs", i)
		}
	}
}

func TestSplit_ChunkCount(t *testing.T) {
	t.Parallel()

	// count = ceil(len/stride) when no chunk is whitespace-only.
	text := strings.Repeat("a", 4000)
	chunks, err := Split(text, 1000, 200)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	stride := 1000 - 200
	want := (len(text) + stride - 1) / stride
	if len(chunks) != want {
		t.Errorf("got %d chunks, want ceil(%d/%d) = %d", len(chunks), len(text), stride, want)
	}
}

func TestSplit_DropsWhitespaceChunks(t *testing.T) {
	t.Parallel()

	// Window of spaces in the middle must be dropped.
	text := "aaaa" + strings.Repeat(" ", 4) + "bbbb"
	chunks, err := Split(text, 4, 0)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk[%d] is whitespace-only: %q", i, c)
		}
	}
	if len(chunks) != 2 {
		t.Errorf("got %d chunks %q, want 2", len(chunks), chunks)
	}
}

func TestSplit_Empty(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "\n\t\n"} {
		chunks, err := Split(text, 1000, 200)
		if err != nil {
			t.Fatalf("Split(%q): %v", text, err)
		}
		if len(chunks) != 0 {
			t.Errorf("Split(%q) = %q, want no chunks", text, chunks)
		}
	}
}
