package extract

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/shopsync/pkg/transform"
)

// CompareCursor orders two cursor values: -1 if a < b, 0 if equal, 1 if
// a > b. Integers are compared exactly whatever their Go type (records decode
// them as json.Number, persisted state may hold float64 or strings);
// timestamps are compared as instants so "+00:00" and "Z" forms agree.
func CompareCursor(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if an, ok := numeric(a); ok {
		if bn, ok := numeric(b); ok {
			return an.Cmp(bn)
		}
	}

	as, bs := cursorString(a), cursorString(b)
	if at, err := transform.ParseTime(as); err == nil {
		if bt, err := transform.ParseTime(bs); err == nil {
			return at.Compare(bt)
		}
	}
	return strings.Compare(as, bs)
}

// numeric converts integral and floating values, and numeric strings, to a
// big.Float so int64 ids beyond 2^53 keep their precision.
func numeric(v any) (*big.Float, bool) {
	switch t := v.(type) {
	case int:
		return new(big.Float).SetInt64(int64(t)), true
	case int32:
		return new(big.Float).SetInt64(int64(t)), true
	case int64:
		return new(big.Float).SetInt64(t), true
	case uint64:
		return new(big.Float).SetUint64(t), true
	case float64:
		return big.NewFloat(t), true
	case json.Number:
		f, _, err := big.ParseFloat(string(t), 10, 128, big.ToNearestEven)
		return f, err == nil
	case string:
		if t == "" || strings.ContainsAny(t, "-:T") {
			return nil, false
		}
		f, _, err := big.ParseFloat(t, 10, 128, big.ToNearestEven)
		return f, err == nil
	default:
		return nil, false
	}
}

func cursorString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return transform.FormatTime(t)
	default:
		return fmt.Sprint(v)
	}
}

// FormatCursor renders a cursor as a request parameter.
func FormatCursor(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return transform.FormatTime(t)
	default:
		return fmt.Sprint(v)
	}
}
