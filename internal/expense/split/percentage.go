package split

import (
	"github.com/shopspring/decimal"

	"github.com/fkhayef/splitledger/internal/currency"
)

// PercentageStrategy divides the expense based on each participant's percentage
type PercentageStrategy struct{}

// Type returns the split type identifier
func (s *PercentageStrategy) Type() SplitType {
	return SplitTypePercentage
}

// Validate checks if the inputs are valid for a percentage split
func (s *PercentageStrategy) Validate(total currency.Money, participants []SplitInput) error {
	if err := validateCommon(total, participants); err != nil {
		return err
	}

	sum := decimal.Zero
	for _, p := range participants {
		if p.Percentage == nil {
			return ErrMissingPercentage
		}
		if p.Percentage.IsNegative() || p.Percentage.GreaterThan(hundred) {
			return ErrPercentageOutOfRange
		}
		sum = sum.Add(*p.Percentage)
	}

	if !sum.Equal(hundred) {
		return ErrInvalidPercentages
	}

	return nil
}

// Calculate rounds each debtor's share half-up to the cent. The last debtor
// absorbs the rounding residual so debtors owe exactly the total minus the
// payer's rounded share.
func (s *PercentageStrategy) Calculate(total currency.Money, payerID int64, participants []SplitInput) ([]SplitOutput, error) {
	if err := s.Validate(total, participants); err != nil {
		return nil, err
	}

	debtors := filterPayer(payerID, participants)
	if len(debtors) == 0 {
		return []SplitOutput{}, nil
	}

	payerShare := currency.Zero
	for _, p := range participants {
		if p.UserID == payerID {
			payerShare = percentOf(total, *p.Percentage)
			break
		}
	}
	expected := total.Sub(payerShare)

	outputs := make([]SplitOutput, len(debtors))
	var distributed currency.Money
	for i, debtor := range debtors {
		amount := percentOf(total, *debtor.Percentage)
		distributed = distributed.Add(amount)
		outputs[i] = SplitOutput{UserID: debtor.UserID, AmountOwed: amount}
	}

	last := len(outputs) - 1
	outputs[last].AmountOwed = outputs[last].AmountOwed.Add(expected.Sub(distributed))

	return outputs, nil
}

// percentOf returns pct percent of total, rounded half-up to the cent.
func percentOf(total currency.Money, pct decimal.Decimal) currency.Money {
	cents := total.Decimal().Mul(pct).Div(hundred).Shift(currency.Scale).Round(0)
	return currency.FromCents(cents.IntPart())
}
