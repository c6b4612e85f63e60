// Package validate checks a reviewed record for internal consistency and
// normalizes it into the form written to the output queue. Everything here is
// pure: no I/O, deterministic, and safe to apply more than once.
package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/claims-review/internal/entity"
)

// Result is a record ready for commit plus the figures it was checked against.
type Result struct {
	Record    entity.Record
	Total     decimal.Decimal
	LineTotal decimal.Decimal
	// ClearedDates names date fields that were present but unparseable and were emptied.
	ClearedDates []string
}

// PrepareForCommit normalizes amounts and dates and enforces that the line items add up
// to the stated total within Tolerance. The input record is not modified.
func PrepareForCommit(rec entity.Record) (Result, error) {
	out := rec.Clone()

	total, err := ParseAmount("cleaned_total_charge", out.CleanedTotalCharge)
	if err != nil {
		return Result{}, err
	}

	lineTotal := decimal.Zero
	for i := range out.LineItems {
		field := fmt.Sprintf("line_items.%d.cleaned_charge", i)
		charge, err := ParseAmount(field, out.LineItems[i].CleanedCharge)
		if err != nil {
			return Result{}, err
		}
		out.LineItems[i].CleanedCharge = FormatAmount(charge)
		lineTotal = lineTotal.Add(charge)
	}

	// compared unrounded: exactly Tolerance apart still passes
	if total.Sub(lineTotal).Abs().GreaterThan(Tolerance) {
		return Result{}, &TotalMismatchError{Expected: total, Actual: lineTotal}
	}
	out.CleanedTotalCharge = FormatAmount(total)

	var cleared []string
	var ok bool
	if out.CleanedDOS1, ok = NormalizeDate(out.CleanedDOS1); !ok {
		cleared = append(cleared, "cleaned_dos1")
	}
	if out.CleanedDOS2, ok = NormalizeDate(out.CleanedDOS2); !ok {
		cleared = append(cleared, "cleaned_dos2")
	}

	return Result{
		Record:       out,
		Total:        total,
		LineTotal:    lineTotal,
		ClearedDates: cleared,
	}, nil
}
