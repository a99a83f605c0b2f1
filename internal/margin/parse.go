package margin

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxNumberLength bounds the normalised text handed to decimal, which is far longer than any
// price or percentage.
const maxNumberLength = 32

var unitSuffixes = []string{"руб.", "руб", "р.", "₽", "%"}

var separatorReplacer = strings.NewReplacer(
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\u2009", "",
	"\t", "",
	"'", "",
	"_", "",
	",", ".",
)

// ParseDecimal reads a user-entered number. Whitespace and thousands separators are dropped,
// comma and dot are both decimal separators and a trailing currency or percent sign is allowed.
// Exponent notation and overly long numbers are rejected.
func ParseDecimal(text string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, suffix := range unitSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	s = separatorReplacer.Replace(s)
	if s == "" || len(s) > maxNumberLength || strings.Count(s, ".") > 1 {
		return 0, false
	}
	// exponent notation would let a short reply expand into an enormous integer
	if strings.ContainsAny(s, "e") {
		return 0, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}

	f, _ := d.Float64()
	return f, true
}
