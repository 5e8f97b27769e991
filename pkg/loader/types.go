package loader

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Sternrassler/yelp-loader/pkg/flatten"
)

// Column types created for new tables.
const (
	TypeBigint      = "bigint"
	TypeDouble      = "double precision"
	TypeBoolean     = "boolean"
	TypeTimestamptz = "timestamptz"
	TypeText        = "text"
)

// InferTypes picks a column type for every column of table from the
// non-nil values it holds. Columns mixing integers and floats become
// double precision; any other mix, and all-nil columns, become text.
func InferTypes(table *flatten.Table) map[string]string {
	types := make(map[string]string, len(table.Columns))
	for i, col := range table.Columns {
		types[col] = inferColumn(table.Rows, i)
	}
	return types
}

func inferColumn(rows [][]any, idx int) string {
	var ints, floats, bools, times, other int
	for _, row := range rows {
		switch row[idx].(type) {
		case nil:
		case int64, int, int32:
			ints++
		case float64, float32:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		default:
			other++
		}
	}

	switch {
	case other > 0:
		return TypeText
	case times > 0 && ints+floats+bools == 0:
		return TypeTimestamptz
	case bools > 0 && ints+floats+times == 0:
		return TypeBoolean
	case ints > 0 && floats+bools+times == 0:
		return TypeBigint
	case ints+floats > 0 && bools+times == 0:
		return TypeDouble
	default:
		return TypeText
	}
}

// coerceRows converts cells to the Go types matching the target column
// types, so COPY never sees an integer for a float column or a number for
// a text column.
func coerceRows(table *flatten.Table, types map[string]string) [][]any {
	out := make([][]any, len(table.Rows))
	for i, row := range table.Rows {
		converted := make([]any, len(row))
		for j, v := range row {
			converted[j] = coerce(v, types[table.Columns[j]])
		}
		out[i] = converted
	}
	return out
}

func coerce(v any, pgType string) any {
	if v == nil {
		return nil
	}

	switch pgType {
	case TypeDouble, "real", "numeric":
		switch x := v.(type) {
		case int64:
			return float64(x)
		case int:
			return float64(x)
		case int32:
			return float64(x)
		case float32:
			return float64(x)
		}
	case TypeBigint, "integer", "smallint":
		switch x := v.(type) {
		case int:
			return int64(x)
		case int32:
			return int64(x)
		case float64:
			if x == math.Trunc(x) {
				return int64(x)
			}
		}
	case TypeTimestamptz, "timestamp with time zone", "timestamp without time zone":
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
	case TypeText, "character varying", "character":
		return textValue(v)
	}
	return v
}

func textValue(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
