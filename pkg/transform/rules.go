package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/iancoleman/strcase"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// RFC3339Layout keeps an explicit "+00:00" offset for UTC and drops
// trailing zero fractions.
const RFC3339Layout = "2006-01-02T15:04:05.999999-07:00"

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime parses the ISO-8601 variants emitted by the upstream APIs. A
// value without an offset is read as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatTime renders t in RFC3339Layout.
func FormatTime(t time.Time) string {
	return t.Format(RFC3339Layout)
}

// ToRFC3339 converts an ISO-8601 value. Null and empty values pass through
// unchanged. Converting an already converted value is a no-op.
func ToRFC3339(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return t, nil
		}
		parsed, err := ParseTime(t)
		if err != nil {
			return nil, err
		}
		return FormatTime(parsed), nil
	case time.Time:
		return FormatTime(t), nil
	default:
		return nil, fmt.Errorf("timestamp has type %T", v)
	}
}

// Timestamps converts the named fields with ToRFC3339. Absent fields stay
// absent.
func Timestamps(fields ...string) Func {
	return Each(func(r models.Record) error {
		return convertFields(r, fields)
	})
}

// NestedTimestamps converts fields inside the object held by parent.
func NestedTimestamps(parent string, fields ...string) Func {
	return Each(func(r models.Record) error {
		nested, ok := r[parent].(map[string]any)
		if !ok {
			return nil
		}
		return convertFields(nested, fields)
	})
}

func convertFields(m map[string]any, fields []string) error {
	for _, f := range fields {
		v, ok := m[f]
		if !ok {
			continue
		}
		converted, err := ToRFC3339(v)
		if err != nil {
			return Malformed(f, err)
		}
		m[f] = converted
	}
	return nil
}

// ResolveID converts a GraphQL global id ("gid://shopify/Product/123") or
// any integral number to int64. Numbers are returned as int64 unchanged so
// resolving twice is harmless. Null passes through.
func ResolveID(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return nil, fmt.Errorf("id %v is not integral", t)
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		s := t
		if strings.HasPrefix(s, "gid://") {
			s = s[strings.LastIndex(s, "/")+1:]
			if i := strings.IndexByte(s, '?'); i >= 0 {
				s = s[:i]
			}
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve id %q", t)
		}
		return id, nil
	default:
		return nil, fmt.Errorf("id has type %T", v)
	}
}

// GlobalIDType returns the resource type of a global id, e.g. "Product".
func GlobalIDType(gid string) string {
	rest, ok := strings.CutPrefix(gid, "gid://shopify/")
	if !ok {
		return ""
	}
	typ, _, _ := strings.Cut(rest, "/")
	return typ
}

// IDs resolves the named fields with ResolveID.
func IDs(fields ...string) Func {
	return Each(func(r models.Record) error {
		for _, f := range fields {
			v, ok := r[f]
			if !ok {
				continue
			}
			id, err := ResolveID(v)
			if err != nil {
				return Malformed(f, err)
			}
			r[f] = id
		}
		return nil
	})
}

// CompositeKey sets target to the named fields joined with "|", in order.
// Missing parts render as empty strings.
func CompositeKey(target string, fields ...string) Func {
	return Each(func(r models.Record) error {
		parts := make([]string, len(fields))
		for i, f := range fields {
			if v, ok := r[f]; ok && v != nil {
				parts[i] = fmt.Sprint(v)
			}
		}
		r[target] = strings.Join(parts, "|")
		return nil
	})
}

// Promote copies fields out of the object held by wrapper to the top level
// and removes the wrapper. mapping is wrapper field -> top-level field.
func Promote(wrapper string, mapping map[string]string) Func {
	return Each(func(r models.Record) error {
		inner, ok := r[wrapper].(map[string]any)
		delete(r, wrapper)
		if !ok {
			return nil
		}
		for from, to := range mapping {
			if v, ok := inner[from]; ok {
				r[to] = v
			}
		}
		return nil
	})
}

// Float converts the named numeric or numeric-string fields to float64.
func Float(fields ...string) Func {
	return Each(func(r models.Record) error {
		for _, f := range fields {
			v, ok := r[f]
			if !ok || v == nil {
				continue
			}
			var (
				out float64
				err error
			)
			switch t := v.(type) {
			case float64:
				out = t
			case json.Number:
				out, err = t.Float64()
			case string:
				out, err = strconv.ParseFloat(t, 64)
			case int64:
				out = float64(t)
			case int:
				out = float64(t)
			default:
				err = fmt.Errorf("number has type %T", v)
			}
			if err != nil {
				return Malformed(f, err)
			}
			r[f] = out
		}
		return nil
	})
}

// DefaultList sets missing or null list fields to an empty list.
func DefaultList(fields ...string) Func {
	return Each(func(r models.Record) error {
		for _, f := range fields {
			if v, ok := r[f]; !ok || v == nil {
				r[f] = []any{}
			}
		}
		return nil
	})
}

// Rename moves from to to when from is present.
func Rename(from, to string) Func {
	return Each(func(r models.Record) error {
		if v, ok := r[from]; ok {
			delete(r, from)
			r[to] = v
		}
		return nil
	})
}

// Drop removes the named fields.
func Drop(fields ...string) Func {
	return Each(func(r models.Record) error {
		for _, f := range fields {
			delete(r, f)
		}
		return nil
	})
}

// Require fails the record when a field is absent or null.
func Require(fields ...string) Func {
	return Each(func(r models.Record) error {
		for _, f := range fields {
			if !r.Has(f) {
				return Malformed(f, errors.New(errors.ErrorTypeData, "field is missing"))
			}
		}
		return nil
	})
}

// SnakeKeys converts object keys from camelCase to snake_case recursively.
// Keys starting with "__" are bulk markers and are kept verbatim.
func SnakeKeys(v any) any {
	switch t := v.(type) {
	case models.Record:
		return models.Record(snakeMap(t))
	case map[string]any:
		return snakeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = SnakeKeys(e)
		}
		return out
	default:
		return v
	}
}

func snakeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if !strings.HasPrefix(k, "__") {
			k = SnakeCase(k)
		}
		out[k] = SnakeKeys(v)
	}
	return out
}

// SnakeCase converts a camelCase name to snake_case, splitting only before
// upper-case letters: "address1" and "countryCodeV2" keep their digits
// attached.
func SnakeCase(name string) string {
	snake := strcase.ToSnake(name)
	if !strings.Contains(snake, "_") {
		return snake
	}
	var b strings.Builder
	b.Grow(len(snake))
	for i := 0; i < len(snake); i++ {
		if snake[i] == '_' && i > 0 && i+1 < len(snake) && isDigit(snake[i+1]) && !strings.Contains(name, snake[i-1:i+2]) {
			continue
		}
		b.WriteByte(snake[i])
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
