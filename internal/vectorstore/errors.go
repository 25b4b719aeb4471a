package vectorstore

import (
	"errors"
	"fmt"

	"rag-chatbot/internal/models"
)

// ErrDimensionMismatch is returned when a vector does not have the length the
// store was created with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CheckDimensions verifies that every entry has dims values.
func CheckDimensions(entries []Entry, dims int) error {
	for _, e := range entries {
		if len(e.Embedding) != dims {
			return fmt.Errorf("%w: %w: entry %s has %d values, store expects %d",
				models.ErrRetrieval, ErrDimensionMismatch, e.ID, len(e.Embedding), dims)
		}
	}
	return nil
}
