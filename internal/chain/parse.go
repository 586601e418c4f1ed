package chain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountLeg is one parsed value movement of a history entry.
type AmountLeg struct {
	Amount  decimal.Decimal
	Asset   string
	IsToken bool
}

// ParseAmountLeg parses a "<amount>@<symbol>" history leg, e.g. "3.5@DFI".
func ParseAmountLeg(raw string) (AmountLeg, error) {
	parts := strings.SplitN(raw, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return AmountLeg{}, fmt.Errorf("malformed amount leg %q", raw)
	}
	amount, err := decimal.NewFromString(parts[0])
	if err != nil {
		return AmountLeg{}, fmt.Errorf("malformed amount in leg %q: %w", raw, err)
	}
	return AmountLeg{Amount: amount, Asset: parts[1]}, nil
}
