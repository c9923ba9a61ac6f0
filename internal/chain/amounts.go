package chain

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// nativeDecimals is the denomination of the ledger's base unit.
const nativeDecimals = 18

var amountCtx = apd.BaseContext.WithPrecision(50)

// nativeAmount converts a human decimal amount ("0.05") into the ledger's
// integer base-unit representation ("50000000000000000"). Decimal arithmetic
// only; floats would lose precision at 18 decimals. An empty value means zero.
func nativeAmount(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "0", nil
	}

	amount, _, err := apd.NewFromString(value)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if amount.Negative {
		return "", fmt.Errorf("amount %q cannot be negative", value)
	}

	scaled := new(apd.Decimal)
	if _, err := amountCtx.Mul(scaled, amount, apd.New(1, nativeDecimals)); err != nil {
		return "", fmt.Errorf("scale amount %q: %w", value, err)
	}
	scaled.Reduce(scaled)
	if scaled.Exponent < 0 {
		return "", fmt.Errorf("amount %q has more than %d decimal places", value, nativeDecimals)
	}

	return scaled.Text('f'), nil
}
