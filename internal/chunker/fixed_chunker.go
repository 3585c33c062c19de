package chunker

import (
	"strconv"
	"strings"

	"creditscout/internal/domain"
)

// FixedChunker slices text into fixed-size character windows. It is the
// deterministic fallback when no smarter segmentation is available.
type FixedChunker struct {
	maxChars int
}

func NewFixedChunker(maxChars int) *FixedChunker {
	if maxChars <= 0 {
		maxChars = 800
	}
	return &FixedChunker{maxChars: maxChars}
}

func (c *FixedChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Content)
	var chunks []domain.Chunk
	idx := 0
	for start := 0; start < len(runes); start += c.maxChars {
		end := start + c.maxChars
		if end > len(runes) {
			end = len(runes)
		}
		text := strings.TrimSpace(string(runes[start:end]))
		if text == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			Text:       text,
			Index:      idx,
		})
		idx++
	}
	return chunks, nil
}
