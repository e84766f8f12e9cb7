package gateway

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/f7las/gatekeeper/internal/executor"
)

// NormalizeValue maps any cell to a JSON-safe primitive: nil, string, bool or
// a finite number. Timestamps become RFC 3339 strings in UTC; anything else
// becomes its string form. It never panics, and values it returns map to
// themselves.
func NormalizeValue(v any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("<%T>", v)
		}
	}()

	switch x := v.(type) {
	case nil:
		return nil
	case string, bool:
		return x
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x
	case float64:
		return normalizeFloat(x)
	case float32:
		return normalizeFloat(float64(x))
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(x.String(), 64); err == nil {
			return normalizeFloat(f)
		}
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return base64.StdEncoding.EncodeToString(x)
	case driver.Valuer:
		// sql.NullTime, sql.NullString and friends.
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		inner, err := x.Value()
		if err != nil {
			return err.Error()
		}
		if inner != nil && reflect.TypeOf(inner) == reflect.TypeOf(v) {
			return fmt.Sprintf("%v", inner)
		}
		return NormalizeValue(inner)
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		return x.String()
	case error:
		return x.Error()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return NormalizeValue(rv.Elem().Interface())
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if encoded, err := json.Marshal(v); err == nil {
			return string(encoded)
		}
	}
	return fmt.Sprintf("%v", v)
}

func normalizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

// NormalizeRow normalizes every cell of row.
func NormalizeRow(row executor.Row) (out []any) {
	defer func() {
		if r := recover(); r != nil {
			out = []any{}
		}
	}()
	if row == nil {
		return []any{}
	}
	cells := row.Cells()
	out = make([]any, len(cells))
	for i, c := range cells {
		out[i] = NormalizeValue(c)
	}
	return out
}

// NormalizeRows normalizes at most limit rows; limit <= 0 means all.
func NormalizeRows(rows []executor.Row, limit int) [][]any {
	n := len(rows)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([][]any, n)
	for i := 0; i < n; i++ {
		out[i] = NormalizeRow(rows[i])
	}
	return out
}
