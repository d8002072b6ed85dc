package chunker

import (
	"fmt"

	"ragcore/internal/domain"
)

// WindowChunker splits text into fixed-size windows of Unicode code points.
// Consecutive windows share overlap code points.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrInvalidConfiguration, size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunk returns the windows of text in reading order. A window starts at
// every multiple of size-overlap below the text length, so the final windows
// may be shorter than size and a tail window may lie inside its predecessor.
func (c *WindowChunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := c.size - c.overlap

	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
