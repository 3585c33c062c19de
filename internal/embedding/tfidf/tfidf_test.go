package tfidf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare_EmptyCorpus(t *testing.T) {
	e := NewEmbedder()
	assert.Error(t, e.Prepare(nil))
}

func TestEmbed_RequiresPrepare(t *testing.T) {
	e := NewEmbedder()
	_, err := e.Embed("credit spreads")
	assert.Error(t, err)
}

func TestTokenize_KeepsFinancialTerms(t *testing.T) {
	e := NewEmbedder()
	tokens := e.tokenize("Tier-1 capital ratios improved in Q1 despite COVID-19 pressure.")
	assert.Contains(t, tokens, "tier-1")
	assert.Contains(t, tokens, "q1")
	assert.Contains(t, tokens, "covid-19")
	assert.NotContains(t, tokens, "in")
}

func TestEmbed_HyphenatedTermWeighted(t *testing.T) {
	e := NewEmbedder()
	corpus := []string{
		"sovereign credit ratings and default risk",
		"bank tier-1 capital ratios under stress",
		"consumer loan repayment histories",
	}
	require.NoError(t, e.Prepare(corpus))
	require.Positive(t, e.Dimension())

	v, err := e.Embed("tier-1 capital under stress")
	require.NoError(t, err)
	require.Len(t, v, e.Dimension())

	idx, ok := e.vocabulary["tier-1"]
	require.True(t, ok, "hyphenated term must be in the vocabulary")
	assert.Positive(t, v[idx])
}
