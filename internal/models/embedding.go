package models

// Document is an uploaded file before it is split into pages and chunks.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Page is the text extracted from one page of a document. Number is nil for
// formats without pages.
type Page struct {
	Number *int
	Text   string
}

// Chunk represents a window of document text with its citation metadata
type Chunk struct {
	Content string
	Source  string
	Page    *int
	// Index is the position of the chunk within its source document.
	Index int
}

// PageNumber returns a pointer to n, for building paged chunks.
func PageNumber(n int) *int {
	return &n
}
