package tooladapter

import (
	"fmt"
	"strconv"

	"github.com/morgana-run/morgana/pkg/morgana"
)

// CoerceToJSONType converts a normalized argument value to the Go type
// implied by a parameter's declared JSON-Schema type (§ 4.7 step 2). Values
// already of the target type pass through unchanged; string representations
// of numbers/booleans (as commonly produced by the free-text argument
// parser) are converted.
func CoerceToJSONType(value any, jsonType string) (any, error) {
	switch jsonType {
	case morgana.MCPInteger.GoType():
		return coerceInt(value)
	case morgana.MCPNumber.GoType():
		return coerceFloat(value)
	case morgana.MCPBoolean.GoType():
		return coerceBool(value)
	default:
		return coerceString(value)
	}
}

func coerceInt(value any) (any, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to integer: %w", v, err)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", value)
	}
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to number: %w", v, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to number", value)
	}
}

func coerceBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to boolean: %w", v, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to boolean", value)
	}
}

func coerceString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}
