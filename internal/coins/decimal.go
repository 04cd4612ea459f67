package coins

import (
	"fmt"
	"math/big"
	"strings"
)

// SumDecimal adds decimal amount strings exactly and renders the total in
// plain decimal notation. Amounts stay out of floats end to end; the result
// keeps the widest fractional width seen in the inputs, minus trailing
// zeros. Blank inputs count as zero.
func SumDecimal(amounts ...string) (string, error) {
	total := new(big.Rat)
	scale := 0
	for _, raw := range amounts {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v, ok := new(big.Rat).SetString(raw)
		if !ok {
			return "", fmt.Errorf("coins: malformed amount %q", raw)
		}
		total.Add(total, v)
		if dot := strings.IndexByte(raw, '.'); dot >= 0 {
			if frac := len(raw) - dot - 1; frac > scale {
				scale = frac
			}
		}
	}
	out := total.FloatString(scale)
	if scale > 0 {
		out = strings.TrimRight(out, "0")
		out = strings.TrimSuffix(out, ".")
	}
	return out, nil
}
