package presexch

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/dlclark/regexp2"
	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"
)

// ErrUnsupportedFilter is returned when a filter cannot be evaluated.
var ErrUnsupportedFilter = errors.New("unsupported filter")

// Filter is a JSON Schema fragment applied to the value found at a field path.
// type, const, enum, pattern and contains are evaluated directly, with
// ECMAScript regular expressions for pattern. A filter using any other
// keyword is evaluated as a whole by a JSON Schema validator.
type Filter struct {
	Type     string        `json:"type,omitempty"`
	Const    interface{}   `json:"const,omitempty"`
	Enum     []interface{} `json:"enum,omitempty"`
	Pattern  string        `json:"pattern,omitempty"`
	Contains *Filter       `json:"contains,omitempty"`

	raw   json.RawMessage
	other []string
}

var directKeywords = []string{"type", "const", "enum", "pattern", "contains"}

// UnmarshalJSON keeps the raw schema next to the decoded keywords.
func (f *Filter) UnmarshalJSON(data []byte) error {
	type plain Filter
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	*f = Filter(p)
	f.raw = append(json.RawMessage(nil), data...)
	for k := range keys {
		if !lo.Contains(directKeywords, k) {
			f.other = append(f.other, k)
		}
	}
	return nil
}

// MarshalJSON writes the filter as it was received.
func (f Filter) MarshalJSON() ([]byte, error) {
	if f.raw != nil {
		return f.raw, nil
	}
	type plain Filter
	return json.Marshal(plain(f))
}

// Match reports whether value satisfies the filter. Arrays match a
// non-array filter when any element does.
func (f *Filter) Match(value interface{}) (bool, error) {
	if len(f.other) > 0 {
		return f.matchSchema(value)
	}

	if arr, ok := value.([]interface{}); ok && f.Type != "array" && f.Contains == nil {
		for _, v := range arr {
			match, err := f.Match(v)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	}

	if f.Type != "" && !hasType(f.Type, value) {
		return false, nil
	}

	if len(f.Enum) > 0 && !lo.ContainsBy(f.Enum, func(e interface{}) bool { return reflect.DeepEqual(e, value) }) {
		return false, nil
	}

	if f.Const != nil && !reflect.DeepEqual(f.Const, value) {
		return false, nil
	}

	if f.Contains != nil {
		arr, ok := value.([]interface{})
		if !ok {
			return false, nil
		}
		found := false
		for _, v := range arr {
			match, err := f.Contains.Match(v)
			if err != nil {
				return false, err
			}
			if match {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	if f.Pattern != "" {
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		re, err := regexp2.Compile(f.Pattern, regexp2.ECMAScript)
		if err != nil {
			return false, fmt.Errorf("%w: pattern %q: %v", ErrUnsupportedFilter, f.Pattern, err)
		}
		return re.MatchString(s)
	}

	return true, nil
}

func (f *Filter) matchSchema(value interface{}) (bool, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(f.raw), gojsonschema.NewGoLoader(value))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnsupportedFilter, err)
	}
	return result.Valid(), nil
}

func hasType(t string, value interface{}) bool {
	switch t {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		n, ok := value.(float64)
		return ok && n == math.Trunc(n)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "null":
		return value == nil
	default:
		return false
	}
}
