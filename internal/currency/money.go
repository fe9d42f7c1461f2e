// Package currency implements exact two-decimal monetary arithmetic.
//
// Amounts are held as a signed count of cents. Parsing goes through
// shopspring/decimal so that string inputs are never routed through float64.
package currency

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by Money.
const Scale = 2

var (
	ErrInvalidAmount = errors.New("invalid monetary amount")

	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// Money is a signed amount with exactly two fractional digits.
// The zero value is 0.00.
type Money struct {
	cents int64
}

// Zero is 0.00.
var Zero = Money{}

// FromCents creates Money from an integer count of cents.
func FromCents(cents int64) Money {
	return Money{cents: cents}
}

// Parse reads a fixed-point decimal string such as "10", "-7.5" or "12.34".
// Inputs with more than two significant fractional digits are rejected rather
// than rounded.
func Parse(s string) (Money, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Zero, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	return fromDecimal(d, s)
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func fromDecimal(d decimal.Decimal, original string) (Money, error) {
	if !d.Equal(d.Truncate(Scale)) {
		return Zero, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, original, Scale)
	}

	shifted := d.Shift(Scale)
	if shifted.Abs().GreaterThan(maxCents) {
		return Zero, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, original)
	}

	return Money{cents: shifted.IntPart()}, nil
}

// Cents returns the amount as an integer count of cents.
func (m Money) Cents() int64 { return m.cents }

// Decimal returns the amount as a decimal.Decimal.
func (m Money) Decimal() decimal.Decimal { return decimal.New(m.cents, -Scale) }

// Add returns m + other.
func (m Money) Add(other Money) Money { return Money{cents: m.cents + other.cents} }

// Sub returns m - other.
func (m Money) Sub(other Money) Money { return Money{cents: m.cents - other.cents} }

// Multiply returns m multiplied by an integer scalar.
func (m Money) Multiply(scalar int64) Money { return Money{cents: m.cents * scalar} }

// Neg returns -m.
func (m Money) Neg() Money { return Money{cents: -m.cents} }

// Abs returns |m|.
func (m Money) Abs() Money {
	if m.cents < 0 {
		return m.Neg()
	}
	return m
}

// Sign returns -1, 0 or +1.
func (m Money) Sign() int {
	switch {
	case m.cents < 0:
		return -1
	case m.cents > 0:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool     { return m.cents == 0 }
func (m Money) IsPositive() bool { return m.cents > 0 }
func (m Money) IsNegative() bool { return m.cents < 0 }

// Compare returns -1 if a < b, 0 if a == b and +1 if a > b.
func Compare(a, b Money) int {
	switch {
	case a.cents < b.cents:
		return -1
	case a.cents > b.cents:
		return 1
	default:
		return 0
	}
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.cents < b.cents {
		return a
	}
	return b
}

// Sum adds all values.
func Sum(values ...Money) Money {
	var total int64
	for _, v := range values {
		total += v.cents
	}
	return Money{cents: total}
}

// String formats m with exactly two decimals, e.g. "-10.00".
func (m Money) String() string {
	sign := ""
	abs := m.cents
	if abs < 0 {
		sign = "-"
		abs = -abs
	}
	return fmt.Sprintf("%s%d.%02d", sign, abs/100, abs%100)
}

// Distribute splits total into n parts that sum exactly to total. Residual
// cents go to the earliest parts. n must be positive.
func Distribute(total Money, n int) []Money {
	if n <= 0 {
		panic(fmt.Sprintf("currency: cannot distribute over %d parts", n))
	}

	count := int64(n)
	base := total.cents / count
	rem := total.cents - base*count

	step := int64(1)
	if rem < 0 {
		step = -1
		rem = -rem
	}

	parts := make([]Money, n)
	for i := range parts {
		parts[i] = Money{cents: base}
		if int64(i) < rem {
			parts[i].cents += step
		}
	}
	return parts
}

// MarshalJSON encodes m as a fixed-point decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Zero
		return nil
	}
	if quoted := strings.HasPrefix(raw, `"`); quoted || strings.HasSuffix(raw, `"`) {
		if !quoted || len(raw) < 2 || !strings.HasSuffix(raw, `"`) {
			return fmt.Errorf("%w: unbalanced quotes in %s", ErrInvalidAmount, raw)
		}
		raw = raw[1 : len(raw)-1]
	}

	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Scan implements sql.Scanner for NUMERIC(12,2) columns.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Zero
		return nil
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	case int64:
		*m = FromCents(v * 100)
		return nil
	case float64:
		d := decimal.NewFromFloat(v).Round(Scale)
		parsed, err := fromDecimal(d, d.String())
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	default:
		return fmt.Errorf("currency: cannot scan %T into Money", src)
	}
}

func (m *Money) scanString(s string) error {
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
