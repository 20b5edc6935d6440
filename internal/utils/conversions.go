package utils

import (
	"fmt"
	"sort"
)

// ToStringSlice flattens a decoded JSON value into a list of messages.
// Strings become a single entry, arrays are flattened recursively and
// objects contribute their values in key order.
func ToStringSlice(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		stringSlice := make([]string, 0, len(t))
		for _, item := range t {
			stringSlice = append(stringSlice, ToStringSlice(item)...)
		}
		return stringSlice
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		stringSlice := make([]string, 0, len(t))
		for _, k := range keys {
			stringSlice = append(stringSlice, ToStringSlice(t[k])...)
		}
		return stringSlice
	default:
		return []string{fmt.Sprint(t)}
	}
}
