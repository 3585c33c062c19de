package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscout/internal/chunker"
	"creditscout/internal/domain"
	"creditscout/internal/embedding/tfidf"
	"creditscout/internal/summarizer"
	"creditscout/internal/vectorstore/memory"
)

func newTestService() *Service {
	return NewService(
		chunker.NewSentenceChunker(2, 0),
		tfidf.NewEmbedder(),
		memory.NewStorage(),
		summarizer.NewFrequencySummarizer(),
		3,
	)
}

func corpusDocs() []domain.Document {
	return []domain.Document{
		{ID: "d1", Topic: "ratings", Content: "Credit rating agencies assess default risk. Their methodologies weigh leverage and cash flow. Sovereign ratings move bond markets."},
		{ID: "d2", Topic: "bureaus", Content: "Consumer credit bureaus collect repayment histories. Scores summarize borrower behavior. Lenders price loans using scores."},
	}
}

func TestIndexDocuments_BuildsIndexAndSummary(t *testing.T) {
	s := newTestService()
	summary, err := s.IndexDocuments(corpusDocs())
	require.NoError(t, err)
	assert.NotEmpty(t, summary)
	assert.NotEmpty(t, s.chunks)
}

func TestIndexDocuments_EmptyInputFails(t *testing.T) {
	s := newTestService()
	_, err := s.IndexDocuments(nil)
	assert.Error(t, err)
}

func TestIndexArticles_SkipsFailures(t *testing.T) {
	s := newTestService()
	articles := []domain.Article{
		{Topic: "good", Content: "Rating agencies publish rating criteria. Criteria describe default analysis.", Success: true},
		{Topic: "bad", Error: "timeout", Success: false},
		{Topic: "empty", Content: "   ", Success: true},
	}
	_, err := s.IndexArticles(articles)
	require.NoError(t, err)

	results, err := s.Query("rating criteria", 1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Chunk.Text, "criteria")
}

func TestQuery_ReturnsRelevantChunks(t *testing.T) {
	s := newTestService()
	_, err := s.IndexDocuments(corpusDocs())
	require.NoError(t, err)

	results, err := s.Query("consumer credit bureaus scores", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Chunk.DocumentID, "d2")
}

func TestQuery_OutOfVocabularyFallsBackToLexical(t *testing.T) {
	s := newTestService()
	_, err := s.IndexDocuments(corpusDocs())
	require.NoError(t, err)

	// stopwords only, so the tf-idf vector is all zeros
	results, err := s.Query("the of and", 2)
	require.NoError(t, err)
	assert.NotNil(t, results)
}
