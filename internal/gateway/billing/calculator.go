package billing

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Calculator computes the billed cost of a vendor call. The arithmetic is
// exact decimal throughout; the result is rounded half-up to 6 fractional
// digits.
type Calculator struct {
	table *PriceTable
}

// NewCalculator creates a calculator over an injected pricing table.
func NewCalculator(table *PriceTable) *Calculator {
	return &Calculator{table: table}
}

// Cost returns (tokensIn/1000)*pricePerKIn + (tokensOut/1000)*pricePerKOut
// as a fixed-point decimal string with 6 fractional digits, e.g. "0.001600".
func (c *Calculator) Cost(provider string, tokensIn, tokensOut int) (string, error) {
	if tokensIn < 0 || tokensOut < 0 {
		return "", fmt.Errorf("token counts must be non-negative (got %d/%d)", tokensIn, tokensOut)
	}

	entry, ok := c.table.lookup(provider)
	if !ok {
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp
	thousand := apd.New(1000, 0)

	var inputCost, outputCost, total apd.Decimal
	if _, err := ctx.Quo(&inputCost, apd.New(int64(tokensIn), 0), thousand); err != nil {
		return "", fmt.Errorf("cost calculation failed: %w", err)
	}
	if _, err := ctx.Mul(&inputCost, &inputCost, entry.inputPer1K); err != nil {
		return "", fmt.Errorf("cost calculation failed: %w", err)
	}
	if _, err := ctx.Quo(&outputCost, apd.New(int64(tokensOut), 0), thousand); err != nil {
		return "", fmt.Errorf("cost calculation failed: %w", err)
	}
	if _, err := ctx.Mul(&outputCost, &outputCost, entry.outputPer1K); err != nil {
		return "", fmt.Errorf("cost calculation failed: %w", err)
	}
	if _, err := ctx.Add(&total, &inputCost, &outputCost); err != nil {
		return "", fmt.Errorf("cost calculation failed: %w", err)
	}

	var rounded apd.Decimal
	if _, err := ctx.Quantize(&rounded, &total, -6); err != nil {
		return "", fmt.Errorf("cost rounding failed: %w", err)
	}

	return rounded.Text('f'), nil
}
