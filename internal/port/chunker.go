package port

// Chunker splits extracted text into ordered, possibly overlapping passages.
type Chunker interface {
	Chunk(text string) []string
}
