package split

import "github.com/fkhayef/splitledger/internal/currency"

// EvenStrategy divides the expense equally among all participants
type EvenStrategy struct{}

// Type returns the split type identifier
func (s *EvenStrategy) Type() SplitType {
	return SplitTypeEven
}

// Validate checks if the inputs are valid for an even split
func (s *EvenStrategy) Validate(total currency.Money, participants []SplitInput) error {
	return validateCommon(total, participants)
}

// Calculate divides the total evenly. Leftover cents go to the earliest
// participants in request order, the payer included.
func (s *EvenStrategy) Calculate(total currency.Money, payerID int64, participants []SplitInput) ([]SplitOutput, error) {
	if err := s.Validate(total, participants); err != nil {
		return nil, err
	}

	shares := currency.Distribute(total, len(participants))

	outputs := make([]SplitOutput, 0, len(participants))
	for i, p := range participants {
		if p.UserID == payerID {
			continue
		}
		outputs = append(outputs, SplitOutput{UserID: p.UserID, AmountOwed: shares[i]})
	}

	return outputs, nil
}
