package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscout/internal/domain"
)

func doc(content string) domain.Document {
	return domain.Document{ID: "doc1", Path: "doc1.txt", Content: content}
}

func TestSentenceChunker(t *testing.T) {
	c := NewSentenceChunker(2, 0)
	chunks, err := c.Chunk(doc("One. Two. Three. Four. Five."))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "One. Two.", chunks[0].Text)
	assert.Equal(t, "doc1:0", chunks[0].ChunkID)
	assert.Equal(t, "Five.", chunks[2].Text)
}

func TestSentenceChunker_Overlap(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	chunks, err := c.Chunk(doc("One. Two. Three."))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "One. Two.", chunks[0].Text)
	assert.Equal(t, "Two. Three.", chunks[1].Text)
}

func TestSentenceChunker_Abbreviations(t *testing.T) {
	c := NewSentenceChunker(1, 0)
	content := "The U.S. credit market tightened. Moody's Corp. cut the outlook for several issuers. Spreads widened sharply."
	chunks, err := c.Chunk(doc(content))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "The U.S. credit market tightened.", chunks[0].Text)
	assert.Equal(t, "Moody's Corp. cut the outlook for several issuers.", chunks[1].Text)
	assert.Equal(t, "Spreads widened sharply.", chunks[2].Text)
}

func TestSentenceChunker_ParenthesizedAbbreviation(t *testing.T) {
	c := NewSentenceChunker(1, 0)
	chunks, err := c.Chunk(doc("Spreads widened (e.g. in high yield). Issuance slowed."))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Spreads widened (e.g. in high yield).", chunks[0].Text)
}

func TestSentenceChunker_NoTerminators(t *testing.T) {
	c := NewSentenceChunker(5, 0)
	chunks, err := c.Chunk(doc("no punctuation here"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "no punctuation here", chunks[0].Text)
}

func TestSentenceChunker_Empty(t *testing.T) {
	c := NewSentenceChunker(5, 0)
	chunks, err := c.Chunk(doc("   "))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestFixedChunker(t *testing.T) {
	c := NewFixedChunker(10)
	chunks, err := c.Chunk(doc(strings.Repeat("abcde ", 5))) // 30 chars
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.LessOrEqual(t, len(ch.Text), 10)
	}
}

type fakeCompleter struct {
	answer string
	err    error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return f.answer, f.err
}

func TestLLMChunker_SplitsOnSeparator(t *testing.T) {
	c := NewLLMChunker(&fakeCompleter{answer: "First part.\n---\nSecond part.\n---\n"}, 800)
	chunks, err := c.Chunk(doc("First part. Second part."))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "First part.", chunks[0].Text)
	assert.Equal(t, "Second part.", chunks[1].Text)
}

func TestLLMChunker_FallbackOnError(t *testing.T) {
	c := NewLLMChunker(&fakeCompleter{err: errors.New("provider down")}, 10)
	chunks, err := c.Chunk(doc("some text that still needs splitting"))
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestLLMChunker_FallbackOnEmptyAnswer(t *testing.T) {
	c := NewLLMChunker(&fakeCompleter{answer: "  --- "}, 10)
	chunks, err := c.Chunk(doc("some text that still needs splitting"))
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}
