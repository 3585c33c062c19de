package chunker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"creditscout/internal/domain"
	"creditscout/internal/logger"
)

// Completer is the LLM call the chunker needs: one prompt in, one answer out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMChunker asks a chat model to segment text into semantically complete
// paragraphs. Any provider failure falls back to fixed-size segmentation so
// ingestion never stalls on the segmentation step.
type LLMChunker struct {
	completer Completer
	fallback  *FixedChunker
	maxChars  int
	// The model only sees a prefix of very long documents.
	maxInputChars int
}

func NewLLMChunker(completer Completer, maxChars int) *LLMChunker {
	if maxChars <= 0 {
		maxChars = 800
	}
	return &LLMChunker{
		completer:     completer,
		fallback:      NewFixedChunker(maxChars),
		maxChars:      maxChars,
		maxInputChars: 2000,
	}
}

func (c *LLMChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	input := document.Content
	if runes := []rune(input); len(runes) > c.maxInputChars {
		input = string(runes[:c.maxInputChars])
	}
	answer, err := c.completer.Complete(context.Background(), c.prompt(input))
	if err != nil {
		logger.Warn("LLM segmentation failed, using fixed-size fallback", "error", err)
		return c.fallback.Chunk(document)
	}
	var chunks []domain.Chunk
	idx := 0
	for _, part := range strings.Split(answer, "---") {
		text := strings.TrimSpace(part)
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
	if len(chunks) == 0 {
		logger.Warn("LLM segmentation returned nothing usable, using fixed-size fallback")
		return c.fallback.Chunk(document)
	}
	return chunks, nil
}

func (c *LLMChunker) prompt(text string) string {
	return fmt.Sprintf(`Please segment the following text into semantically complete paragraphs, with each segment not exceeding %d characters:

%s

Requirements:
1. Maintain semantic integrity and coherence
2. Keep each segment under %d characters
3. Remove reference numbers at the end of sentences (e.g. "investors.1" becomes "investors.")
4. Return format: one segment per line, separated by "---"`, c.maxChars, text, c.maxChars)
}
