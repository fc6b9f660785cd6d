// Package chunker splits long document text into overlapping fixed-size
// windows suitable for embedding and retrieval. Window size and overlap
// count characters (Unicode code points), never bytes, so a boundary can
// not land inside a multi-byte rune. The splitter is deterministic, so
// re-chunking unchanged text always yields the same sequence, which keeps
// derived vector IDs stable across re-indexing.
package chunker

import (
	"errors"
	"strings"
)

// Default window parameters used by the indexing pipeline.
const (
	// DefaultSize is the maximum number of characters per chunk.
	DefaultSize = 1000
	// DefaultOverlap is the number of characters shared by consecutive chunks.
	DefaultOverlap = 200
)

// ErrInvalidConfig is returned when the chunk size and overlap cannot form a
// positive stride (size must be greater than overlap, overlap non-negative).
var ErrInvalidConfig = errors.New("chunker: chunk size must be greater than overlap and overlap must be non-negative")

// Split cuts text into windows of at most size characters, where consecutive
// windows overlap by overlap characters. Starting at offset 0, each window
// spans size code points and the offset advances by size-overlap. Windows
// whose trimmed content is empty are dropped, so the result contains no
// whitespace-only chunks. The union of the returned chunks covers text with
// no gaps.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidConfig
	}

	runes := []rune(text)
	var chunks []string
	stride := size - overlap
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if c := string(runes[start:end]); strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
	}

	return chunks, nil
}
