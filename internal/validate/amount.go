package validate

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/claims-review/internal/entity"
)

// Tolerance is the largest accepted gap between the stated total and the line-item sum.
var Tolerance = decimal.NewFromInt(2)

var amountCleaner = strings.NewReplacer(",", "", "$", "")

// ParseAmount trims surrounding whitespace, strips thousands separators and a currency
// sign and parses the rest. A blank amount is zero.
func ParseAmount(field string, a entity.Amount) (decimal.Decimal, error) {
	if a.IsBlank() {
		return decimal.Zero, nil
	}
	s := amountCleaner.Replace(strings.TrimSpace(string(a)))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &MalformedAmountError{Field: field, Value: string(a), Cause: err}
	}
	return d, nil
}

// FormatAmount renders d in the canonical stored form: at least two decimal places,
// more when d carries sub-cent digits. Parsing the result yields d again.
func FormatAmount(d decimal.Decimal) entity.Amount {
	return entity.Amount(d.StringFixed(max(2, -d.Exponent())))
}
