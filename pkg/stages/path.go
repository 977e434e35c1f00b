package stages

import "strings"

// GetPath resolves a dot-separated path against nested
// map[string]interface{} values, e.g. "address.city". It returns
// (value, true) when every segment resolves, (nil, false) otherwise.
func GetPath(data map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var current interface{} = data

	for _, segment := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, ok := m[segment]
		if !ok {
			return nil, false
		}
		current = value
	}

	return current, true
}

// SetPath assigns value at a dot-separated path, creating intermediate
// maps as needed.
func SetPath(data map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	current := data

	for i, segment := range segments {
		if i == len(segments)-1 {
			current[segment] = value
			return
		}
		next, ok := current[segment].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[segment] = next
		}
		current = next
	}
}
