package profile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"mindvault/internal/models"
)

// ValidateFields checks raw argument values against the sub-record's field
// catalog and returns the coerced values (string, int64 or float64 per
// kind) plus a field→reason map of everything that failed. checkRequired
// additionally enforces Required fields, which only matters for record
// creation (goals).
//
// Both the tool executor and the PATCH handlers funnel through here, so
// the published tool schema and the actual field handling cannot diverge.
func ValidateFields(rec models.RecordSpec, args map[string]interface{}, checkRequired bool) (map[string]interface{}, map[string]string) {
	fields := make(map[string]interface{}, len(args))
	errs := make(map[string]string)

	for name, raw := range args {
		def := rec.FieldByName(name)
		if def == nil {
			errs[name] = "unknown field"
			continue
		}
		val, err := coerce(def, raw)
		if err != "" {
			errs[name] = err
			continue
		}
		fields[name] = val
	}

	if checkRequired {
		for _, def := range rec.Fields {
			if !def.Required {
				continue
			}
			if _, ok := fields[def.Name]; !ok {
				if _, failed := errs[def.Name]; !failed {
					errs[def.Name] = "this field is required"
				}
			}
		}
	}

	if len(errs) == 0 {
		errs = nil
	}
	return fields, errs
}

func coerce(def *models.Field, raw interface{}) (interface{}, string) {
	if raw == nil {
		return nil, "value must not be null"
	}
	switch def.Kind {
	case models.FieldString:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a string"
		}
		if len(def.Enum) > 0 && !contains(def.Enum, s) {
			return nil, fmt.Sprintf("must be one of %v", def.Enum)
		}
		if s == "" {
			return nil, "must not be empty"
		}
		return s, ""
	case models.FieldInteger:
		n, ok := toFloat(raw)
		if !ok || n != math.Trunc(n) {
			return nil, "must be an integer"
		}
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return nil, "must be an integer in range"
		}
		return int64(n), ""
	case models.FieldNumber:
		n, ok := toFloat(raw)
		if !ok {
			return nil, "must be a number"
		}
		return n, ""
	}
	return nil, "unsupported field kind"
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// formatValue renders a stored value for the context summary.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
