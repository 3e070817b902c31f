package models

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Money is an exact decimal currency amount. Arithmetic never rounds;
// rounding to cents happens only when rendering JSON or charging the
// provider.
type Money struct {
	d decimal.Decimal
}

var Zero = Money{}

func NewMoney(d decimal.Decimal) Money { return Money{d: d} }

// MustMoney parses a decimal literal and panics on malformed input. Used for
// constants and tests.
func MustMoney(s string) Money { return Money{d: decimal.RequireFromString(s)} }

func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

func (m Money) MulQty(q int) Money { return Money{d: m.d.Mul(decimal.NewFromInt(int64(q)))} }

func (m Money) MulRate(rate decimal.Decimal) Money { return Money{d: m.d.Mul(rate)} }

func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) IsZero() bool { return m.d.IsZero() }

// Equal compares exact values.
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

// Rounded returns the amount rounded half away from zero to cents.
func (m Money) Rounded() Money { return Money{d: m.d.Round(2)} }

// Cents is the amount in the smallest currency unit, as charged by the
// payment provider.
func (m Money) Cents() int64 { return m.d.Round(2).Shift(2).IntPart() }

// String renders the exact value.
func (m Money) String() string { return m.d.String() }

// MarshalJSON renders the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.StringFixed(2)), nil
}

// UnmarshalJSON accepts numbers and numeric strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		m.d = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("invalid money amount %q: %w", string(b), err)
	}
	m.d = d
	return nil
}

// MarshalBSONValue stores the exact amount as Decimal128.
func (m Money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d128, err := primitive.ParseDecimal128(m.d.String())
	if err != nil {
		return 0, nil, fmt.Errorf("money to decimal128: %w", err)
	}
	return bson.MarshalValue(d128)
}

// UnmarshalBSONValue reads Decimal128 as well as the plain numbers written by
// the catalog service.
func (m *Money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Decimal128:
		d, err := decimal.NewFromString(rv.Decimal128().String())
		if err != nil {
			return fmt.Errorf("decimal128 to money: %w", err)
		}
		m.d = d
	case bsontype.Double:
		m.d = decimal.NewFromFloat(rv.Double())
	case bsontype.Int32:
		m.d = decimal.NewFromInt32(rv.Int32())
	case bsontype.Int64:
		m.d = decimal.NewFromInt(rv.Int64())
	case bsontype.String:
		d, err := decimal.NewFromString(rv.StringValue())
		if err != nil {
			return fmt.Errorf("string to money: %w", err)
		}
		m.d = d
	case bsontype.Null, bsontype.Undefined:
		m.d = decimal.Zero
	default:
		return fmt.Errorf("cannot decode %s into money", t)
	}
	return nil
}
