package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sonar", cfg.Search.Model)
	assert.Equal(t, "week", cfg.Search.TimeFilter)
	assert.Equal(t, 60, cfg.Budget.CheckIntervalSecs)
	assert.Equal(t, 0.9, cfg.Budget.WarnFraction)
	assert.NotEmpty(t, cfg.Search.Topics)
	assert.Equal(t, []string{".txt", ".md"}, cfg.Ingest.Extensions)
}

func TestLoad_PartialFileGetsDefaultsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
search:
  model: sonar-pro
  topics: ["only topic"]
budget:
  limits:
    perplexity:
      tokens: 1000
      cost_usd: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sonar-pro", cfg.Search.Model)
	assert.Equal(t, []string{"only topic"}, cfg.Search.Topics)
	// Defaults fill the unset fields.
	assert.Equal(t, "https://api.perplexity.ai", cfg.Search.BaseURL)
	assert.Equal(t, 60, cfg.Budget.CheckIntervalSecs)
	assert.Equal(t, 1000, cfg.Budget.Limits["perplexity"].Tokens)
	// Default rate table is injected when none was configured.
	assert.InDelta(t, 3.0, cfg.Budget.Rates["perplexity"]["sonar-pro"].Input, 1e-9)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := defaultConfig()
	cfg.Search.Model = "sonar-pro"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sonar-pro", loaded.Search.Model)
	assert.Equal(t, cfg.Budget.Limits, loaded.Budget.Limits)
}
