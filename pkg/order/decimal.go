package order

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept for quantities and prices.
const Precision = 8

// ParseDecimal converts v to an exact decimal. Floats go through their
// shortest decimal text first, so 0.1 becomes exactly 0.1 and not the
// nearest binary fraction.
func ParseDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Decimal{}, fmt.Errorf("nil decimal")
		}
		return *x, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case json.Number:
		return decimal.NewFromString(x.String())
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case uint:
		return decimal.NewFromString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return decimal.NewFromString(strconv.FormatUint(x, 10))
	case float32:
		return decimal.NewFromString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case float64:
		return decimal.NewFromString(strconv.FormatFloat(x, 'f', -1, 64))
	case nil:
		return decimal.Decimal{}, fmt.Errorf("missing value")
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported type %T", v)
	}
}

// Truncate rounds d toward zero to Precision fractional digits.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Precision)
}
