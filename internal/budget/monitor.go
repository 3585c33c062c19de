// Package budget tracks cumulative token and cost usage across all outbound
// API calls and terminates the process as soon as any configured ceiling is
// crossed, either immediately after a call or on the next periodic sweep.
package budget

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"creditscout/internal/logger"
)

type phase int

const (
	phaseIdle phase = iota
	phaseMonitoring
	phaseStopped
	phaseAborted
)

var (
	// ErrNotMonitoring is returned when LogUsage is called outside Monitoring.
	ErrNotMonitoring = errors.New("budget: monitor is not running")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("budget: monitor already started")
)

// Config assembles a Monitor.
type Config struct {
	// Interval between periodic sweeps. Defaults to 60s.
	Interval time.Duration
	// WarnFraction of a limit at which a near-limit warning fires once per
	// crossing. Defaults to 0.9.
	WarnFraction float64
	// Rates prices each (provider, model) pair.
	Rates RateTable
	// Limits per provider. Providers without an entry have no ceiling.
	Limits map[string]Limit
	// ExportPath, when set, receives the full ledger on Stop and on abort.
	ExportPath string
	// Exit replaces os.Exit in tests. The abort contract is a hard stop.
	Exit func(code int)
}

// Monitor owns the usage ledger for one process. All mutation and every
// threshold read goes through a single mutex so the background sweep never
// observes a half-applied update.
type Monitor struct {
	mu      sync.Mutex
	state   phase
	entries []Entry
	totals  map[string]Totals
	limits  map[string]Limit
	warned  map[string]bool
	rates   RateTable

	interval     time.Duration
	warnFraction float64
	exportPath   string
	exit         func(code int)

	stop chan struct{}
	done chan struct{}
}

// NewMonitor creates an idle monitor. Limits and rates are fixed for the
// lifetime of the monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.WarnFraction <= 0 {
		cfg.WarnFraction = 0.9
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	limits := make(map[string]Limit, len(cfg.Limits))
	for p, l := range cfg.Limits {
		limits[p] = l
	}
	return &Monitor{
		state:        phaseIdle,
		totals:       make(map[string]Totals),
		limits:       limits,
		warned:       make(map[string]bool),
		rates:        cfg.Rates,
		interval:     cfg.Interval,
		warnFraction: cfg.WarnFraction,
		exportPath:   cfg.ExportPath,
		exit:         cfg.Exit,
	}
}

// Start transitions Idle -> Monitoring and spawns the periodic sweep goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != phaseIdle {
		return ErrAlreadyStarted
	}
	m.state = phaseMonitoring
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop()
	logger.Info("budget monitor started", "interval", m.interval, "providers", len(m.limits))
	return nil
}

// Stop transitions Monitoring -> Stopped, cancels the periodic sweep and
// exports the ledger when an export path is configured. Safe to call once.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state != phaseMonitoring {
		m.mu.Unlock()
		return nil
	}
	m.state = phaseStopped
	close(m.stop)
	done := m.done
	exp := m.exportLocked()
	path := m.exportPath
	m.mu.Unlock()

	<-done
	if path != "" {
		if err := writeLedger(path, exp); err != nil {
			return fmt.Errorf("export usage ledger: %w", err)
		}
	}
	logger.Info("budget monitor stopped", "entries", len(exp.Entries))
	return nil
}

// LogUsage appends a ledger entry, updates the provider totals and runs the
// immediate limit check before returning. Valid only while Monitoring.
func (m *Monitor) LogUsage(provider, model string, inputTokens, outputTokens int) error {
	m.mu.Lock()
	if m.state != phaseMonitoring {
		m.mu.Unlock()
		return ErrNotMonitoring
	}
	cost := m.rates.Cost(provider, model, inputTokens, outputTokens)
	entry := Entry{
		Timestamp:    time.Now(),
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
	}
	m.entries = append(m.entries, entry)
	t := m.totals[provider]
	t.Tokens += entry.TotalTokens()
	t.CostUSD += cost
	m.totals[provider] = t

	logger.Debug("usage logged",
		"provider", provider, "model", model,
		"input_tokens", inputTokens, "output_tokens", outputTokens,
		"cost_usd", cost)

	if reason, exceeded := m.exceededLocked(provider); exceeded {
		m.abortLocked(reason) // does not return
	}
	m.mu.Unlock()
	return nil
}

// Totals returns a snapshot of the cumulative usage for one provider.
func (m *Monitor) Totals(provider string) Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[provider]
}

// TotalsByProvider returns a snapshot of the cumulative usage of every
// provider seen so far.
func (m *Monitor) TotalsByProvider() map[string]Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Totals, len(m.totals))
	for p, t := range m.totals {
		out[p] = t
	}
	return out
}

// Entries returns a copy of the ledger in insertion order.
func (m *Monitor) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep re-evaluates the limits of every provider, not just the most recently
// updated one, and emits near-limit warnings. Runs on every tick; exported so
// tests can drive the periodic check deterministically.
func (m *Monitor) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != phaseMonitoring {
		return
	}
	for provider, limit := range m.limits {
		t := m.totals[provider]
		near := m.nearLimitLocked(t, limit)
		if near && !m.warned[provider] {
			m.warned[provider] = true
			logger.Warn("provider approaching usage limit",
				"provider", provider,
				"tokens", t.Tokens, "token_limit", limit.Tokens,
				"cost_usd", t.CostUSD, "cost_limit_usd", limit.CostUSD)
		} else if !near && m.warned[provider] {
			// Usage dropped back below the threshold: arm the warning again.
			m.warned[provider] = false
		}
		if reason, exceeded := m.exceededLocked(provider); exceeded {
			m.abortLocked(reason) // does not return
		}
		if m.state != phaseMonitoring {
			// Reachable only under an injected exit func.
			return
		}
	}
}

func (m *Monitor) nearLimitLocked(t Totals, limit Limit) bool {
	if limit.Tokens > 0 && float64(t.Tokens) >= m.warnFraction*float64(limit.Tokens) {
		return true
	}
	if limit.CostUSD > 0 && t.CostUSD >= m.warnFraction*limit.CostUSD {
		return true
	}
	return false
}

func (m *Monitor) exceededLocked(provider string) (string, bool) {
	limit, ok := m.limits[provider]
	if !ok {
		return "", false
	}
	t := m.totals[provider]
	if limit.Tokens > 0 && t.Tokens > limit.Tokens {
		return fmt.Sprintf("%s token limit exceeded: %d > %d", provider, t.Tokens, limit.Tokens), true
	}
	if limit.CostUSD > 0 && t.CostUSD > limit.CostUSD {
		return fmt.Sprintf("%s cost limit exceeded: $%.4f > $%.4f", provider, t.CostUSD, limit.CostUSD), true
	}
	return "", false
}

// abortLocked persists the ledger for postmortem analysis, prints a loud
// message and terminates the process. The caller holds the mutex; this never
// returns under the real exit func.
func (m *Monitor) abortLocked(reason string) {
	if m.state == phaseAborted {
		return
	}
	prev := m.state
	m.state = phaseAborted
	if prev == phaseMonitoring && m.stop != nil {
		close(m.stop)
	}
	if m.exportPath != "" {
		if err := writeLedger(m.exportPath, m.exportLocked()); err != nil {
			logger.Error("failed to persist usage ledger before abort", "error", err)
		}
	}
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "EMERGENCY STOP: %s\n", reason)
	logger.Error("budget exceeded, terminating process", "reason", reason)
	m.exit(1)
}

func (m *Monitor) exportLocked() ledgerExport {
	entries := make([]Entry, len(m.entries))
	copy(entries, m.entries)
	totals := make(map[string]Totals, len(m.totals))
	for p, t := range m.totals {
		totals[p] = t
	}
	limits := make(map[string]Limit, len(m.limits))
	for p, l := range m.limits {
		limits[p] = l
	}
	return ledgerExport{
		GeneratedAt: time.Now(),
		Entries:     entries,
		Totals:      totals,
		Limits:      limits,
	}
}
