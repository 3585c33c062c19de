package budget

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Entry is a single usage event. Entries are append-only and keep the exact
// order in which LogUsage was invoked.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// TotalTokens returns the billable token count of the entry.
func (e Entry) TotalTokens() int { return e.InputTokens + e.OutputTokens }

// Totals is the cumulative usage of one provider.
type Totals struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// Limit is a per-provider ceiling. A zero value in either dimension means no
// ceiling for that dimension.
type Limit struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// ledgerExport is the on-disk postmortem shape written on Stop or abort.
type ledgerExport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Entries     []Entry           `json:"entries"`
	Totals      map[string]Totals `json:"totals_by_provider"`
	Limits      map[string]Limit  `json:"limits_by_provider"`
}

func writeLedger(path string, exp ledgerExport) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
