package split

import "github.com/fkhayef/splitledger/internal/currency"

// ExactStrategy assigns each participant a specific amount; amounts must sum to the total
type ExactStrategy struct{}

// Type returns the split type identifier
func (s *ExactStrategy) Type() SplitType {
	return SplitTypeExact
}

// Validate checks if the inputs are valid for an exact split
func (s *ExactStrategy) Validate(total currency.Money, participants []SplitInput) error {
	if err := validateCommon(total, participants); err != nil {
		return err
	}

	var sum currency.Money
	for _, p := range participants {
		if p.Amount == nil {
			return ErrMissingExactAmount
		}
		if p.Amount.IsNegative() {
			return ErrNegativeAmount
		}
		sum = sum.Add(*p.Amount)
	}

	if currency.Compare(sum, total) != 0 {
		return ErrInvalidExactAmounts
	}

	return nil
}

// Calculate returns the exact amounts specified for each participant
func (s *ExactStrategy) Calculate(total currency.Money, payerID int64, participants []SplitInput) ([]SplitOutput, error) {
	if err := s.Validate(total, participants); err != nil {
		return nil, err
	}

	debtors := filterPayer(payerID, participants)

	outputs := make([]SplitOutput, len(debtors))
	for i, debtor := range debtors {
		outputs[i] = SplitOutput{
			UserID:     debtor.UserID,
			AmountOwed: *debtor.Amount,
		}
	}

	return outputs, nil
}
