package port

// Extractor turns raw document bytes into plain text.
// Malformed but parseable input yields whatever text could be recovered.
type Extractor interface {
	Extract(name string, data []byte) (string, error)
}
