package utils

import (
	"fmt"
	"strconv"

	"github.com/BartekS5/breweries/pkg/models"
)

// InferColumnType picks a column type from the JSON value types observed for
// one key across all records (json_each type names: null, true, false,
// integer, real, text, array, object). Mixed or nested values fall back to
// string.
func InferColumnType(jsonTypes []string) models.ColumnType {
	var ints, reals, bools, others int
	for _, t := range jsonTypes {
		switch t {
		case "null", "":
		case "integer":
			ints++
		case "real":
			reals++
		case "true", "false":
			bools++
		default:
			others++
		}
	}
	switch {
	case others > 0:
		return models.TypeString
	case bools > 0 && ints+reals == 0:
		return models.TypeBoolean
	case bools > 0:
		return models.TypeString
	case reals > 0:
		return models.TypeDouble
	case ints > 0:
		return models.TypeLong
	default:
		return models.TypeString
	}
}

// ConvertToColumnType coerces a value scanned from the query engine into the
// Go type a Frame column of type t holds.
func ConvertToColumnType(val interface{}, t models.ColumnType) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch t {
	case models.TypeLong:
		return ConvertToInt64(val)
	case models.TypeDouble:
		return ConvertToFloat64(val)
	case models.TypeBoolean:
		return ConvertToBool(val)
	default:
		return ConvertToString(val), nil
	}
}

func ConvertToString(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func ConvertToInt64(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", val)
	}
}

func ConvertToFloat64(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", val)
	}
}

func ConvertToBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		return strconv.ParseBool(v)
	case []byte:
		return strconv.ParseBool(string(v))
	default:
		return false, fmt.Errorf("cannot convert %T to bool", val)
	}
}
