package presexch

import (
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// MatchDescriptor reports whether a credential document satisfies every
// constraint field of the descriptor. A descriptor without constraints
// matches any credential.
func MatchDescriptor(descriptor InputDescriptor, credential Document) (bool, error) {
	if descriptor.Constraints == nil {
		return true, nil
	}

	for _, field := range descriptor.Constraints.Fields {
		match, err := matchField(field, credential)
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

func matchField(field Field, credential Document) (bool, error) {
	// optional fields are satisfied only when no path produced a value the filter rejected
	var optionalInvalid int
	for _, path := range field.Path {
		value, err := credential.valueAtPath(path)
		if err != nil {
			return false, err
		}
		if value == nil {
			continue
		}
		if field.Filter == nil {
			return true, nil
		}

		match, err := field.Filter.Match(value)
		if err != nil {
			return false, err
		}
		if match {
			return true, nil
		}
		optionalInvalid++
	}

	return field.Optional && optionalInvalid == 0, nil
}

// valueAtPath evaluates path against the document and then against the
// embedded vc object of a JWT credential. Missing keys yield nil.
func (d Document) valueAtPath(path string) (interface{}, error) {
	value, err := getValueAtPath(path, map[string]interface{}(d))
	if err != nil || value != nil {
		return value, err
	}

	if embedded, ok := d["vc"].(map[string]interface{}); ok {
		return getValueAtPath(path, embedded)
	}
	return nil, nil
}

func getValueAtPath(path string, document interface{}) (interface{}, error) {
	value, err := jsonpath.Get(path, document)
	if err != nil {
		msg := err.Error()
		if strings.HasPrefix(msg, "unknown key") || strings.Contains(msg, "out of") || strings.HasPrefix(msg, "unsupported value type") {
			return nil, nil
		}
		return nil, err
	}
	if arr, ok := value.([]interface{}); ok && len(arr) == 0 {
		return nil, nil
	}
	return value, nil
}
