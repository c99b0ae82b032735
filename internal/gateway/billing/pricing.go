package billing

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/apd/v3"
)

// ProviderPrice is the externally supplied price per 1000 tokens for one
// provider, as decimal strings (never binary floats).
type ProviderPrice struct {
	InputPer1K  string
	OutputPer1K string
}

type priceEntry struct {
	inputPer1K  *apd.Decimal
	outputPer1K *apd.Decimal
}

// PriceTable holds per-provider pricing. Reloads replace the whole table
// under a write lock, never mutate entries in place, so a concurrent cost
// calculation can never observe a half-updated price.
type PriceTable struct {
	mu      sync.RWMutex
	entries map[string]priceEntry
}

// NewPriceTable parses and validates the initial pricing configuration.
func NewPriceTable(prices map[string]ProviderPrice) (*PriceTable, error) {
	entries, err := parsePrices(prices)
	if err != nil {
		return nil, err
	}
	return &PriceTable{entries: entries}, nil
}

// Replace swaps in a complete new pricing table. Safe to call while cost
// calculations are running.
func (t *PriceTable) Replace(prices map[string]ProviderPrice) error {
	entries, err := parsePrices(prices)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}

func (t *PriceTable) lookup(provider string) (priceEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[provider]
	return entry, ok
}

func parsePrices(prices map[string]ProviderPrice) (map[string]priceEntry, error) {
	entries := make(map[string]priceEntry, len(prices))
	for provider, price := range prices {
		in, err := parseDecimal(price.InputPer1K)
		if err != nil {
			return nil, fmt.Errorf("invalid input price for %s: %w", provider, err)
		}
		out, err := parseDecimal(price.OutputPer1K)
		if err != nil {
			return nil, fmt.Errorf("invalid output price for %s: %w", provider, err)
		}
		entries[provider] = priceEntry{inputPer1K: in, outputPer1K: out}
	}
	return entries, nil
}

func parseDecimal(s string) (*apd.Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.Negative {
		return nil, fmt.Errorf("price %q must not be negative", s)
	}
	return &d, nil
}
