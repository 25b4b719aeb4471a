package parser

import (
	"strings"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
)

// ChunkText splits content into windows of chunkSize runes, each starting
// chunkSize-chunkOverlap runes after the previous one. The last window may be
// shorter. Empty content yields no chunks.
func ChunkText(content string, chunkSize, chunkOverlap int) ([]string, error) {
	if err := config.ValidateChunking(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}

	runes := []rune(content)
	if len(runes) == 0 {
		return nil, nil
	}

	step := chunkSize - chunkOverlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+chunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// JoinChunks rebuilds the text that ChunkText split, dropping the overlapping
// prefix of every chunk after the first.
func JoinChunks(chunks []string, chunkOverlap int) string {
	var b strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			b.WriteString(chunk)
			continue
		}
		runes := []rune(chunk)
		if chunkOverlap < len(runes) {
			b.WriteString(string(runes[chunkOverlap:]))
		}
	}
	return b.String()
}

// ChunkPages chunks every page of a document. Chunk indexes run across the
// whole document so that they preserve reading order. Blank pages are skipped.
func ChunkPages(pages []models.Page, source string, chunkSize, chunkOverlap int) ([]models.Chunk, error) {
	if err := config.ValidateChunking(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		texts, err := ChunkText(page.Text, chunkSize, chunkOverlap)
		if err != nil {
			return nil, err
		}
		for _, t := range texts {
			chunks = append(chunks, models.Chunk{
				Content: t,
				Source:  source,
				Page:    page.Number,
				Index:   len(chunks),
			})
		}
	}
	return chunks, nil
}
