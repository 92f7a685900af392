package dataset

import (
	"fmt"
	"strconv"
	"time"

	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/pool"
)

// FormatValue renders a row value as a CSV field. The formatting is
// deterministic: floats use the shortest representation that round-trips,
// nil becomes the empty string.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ToCSVRow projects a record onto the given column order. A column
// missing from the record is an error; a nil value becomes an empty
// field.
func ToCSVRow(r *pool.Record, columns []string) ([]string, error) {
	row := make([]string, len(columns))
	for i, col := range columns {
		v, ok := r.GetData(col)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "record missing column %s", col)
		}
		row[i] = FormatValue(v)
	}
	return row, nil
}
