package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/claims-review/internal/common"
)

// MalformedAmountError names an amount field that does not parse as a decimal.
type MalformedAmountError struct {
	Field string
	Value string
	Cause error
}

func (e *MalformedAmountError) Error() string {
	return fmt.Sprintf("malformed amount in %s: %q", e.Field, e.Value)
}

func (e *MalformedAmountError) Unwrap() error { return e.Cause }

func (e *MalformedAmountError) Is(target error) bool { return target == common.ErrValidation }

// TotalMismatchError reports a line-item sum that is too far from the stated total.
type TotalMismatchError struct {
	Expected decimal.Decimal // cleaned_total_charge
	Actual   decimal.Decimal // sum of line item charges
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total charge %s does not match line items total %s (difference %s exceeds %s)",
		FormatAmount(e.Expected), FormatAmount(e.Actual), FormatAmount(e.Difference()), FormatAmount(Tolerance))
}

// Difference is the absolute gap between the stated total and the line sum.
func (e *TotalMismatchError) Difference() decimal.Decimal {
	return e.Expected.Sub(e.Actual).Abs()
}

func (e *TotalMismatchError) Is(target error) bool { return target == common.ErrValidation }
