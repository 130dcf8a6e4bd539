package watch

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// PriceReading is one observation of an item's price.
type PriceReading struct {
	Amount     decimal.Decimal
	CapturedAt time.Time
}

// ParsePrice reads the amount out of a price field such as
// "Cardmarket€1,234.56 (35 cards)". Anything from the first "(" on is
// ignored, as is the label in front of the number. The number uses "." for
// decimals and "," for thousands regardless of locale.
func ParsePrice(text string) (decimal.Decimal, error) {
	s := text
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != '-'
	})
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r)
	})
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Decimal{}, &PriceParseError{Text: text, Err: errors.New("no amount")}
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != '-' {
			return decimal.Decimal{}, &PriceParseError{Text: text, Err: errors.New("unexpected character in amount")}
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &PriceParseError{Text: text, Err: err}
	}
	if d.IsNegative() {
		return decimal.Decimal{}, &PriceParseError{Text: text, Err: errors.New("negative amount")}
	}
	return d, nil
}
