package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ErrOverflow reports an addition that does not fit 256 bits.
var ErrOverflow = errors.New("amount overflow")

// Amount is an exact, unsigned asset amount in base units. It cannot go
// negative; JSON encodes it as a decimal string.
type Amount struct {
	v uint256.Int
}

// ParseAmount parses a base-10 amount. The empty string parses as zero.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, nil
	}
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: amount %q: %v", ErrMalformedResponse, s, err)
	}
	return Amount{v: *n}, nil
}

// MustAmount is ParseAmount for literals; it panics on bad input.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromUint64 converts a native integer.
func AmountFromUint64(u uint64) Amount {
	return Amount{v: *uint256.NewInt(u)}
}

// Add returns a+b, or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a.String(), b.String())
	}
	return out, nil
}

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) IsZero() bool { return a.v.IsZero() }

func (a Amount) String() string { return a.v.Dec() }

// Decimal scales the amount down by decimals for display.
func (a Amount) Decimal(decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(a.v.ToBig(), -int32(decimals))
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a JSON integer.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("%w: amount %s", ErrMalformedResponse, string(b))
		}
		s = n.String()
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
