// Package strings normalizes operator-supplied lists: environment CSVs,
// policy country codes and required field names.
package strings

import (
	"strings"
)

// SplitCSV splits a comma separated value and applies DedupeAndTrim.
//
//	SplitCSV(" 10.0.0.0/8, ,10.0.0.0/8,127.0.0.1")
//	// Returns: []string{"10.0.0.0/8", "127.0.0.1"}
func SplitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(v, ","))
}

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower also lowercases each element. Field names in document
// policies go through it.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
}

// DedupeAndTrimUpper also uppercases each element, for country codes.
func DedupeAndTrimUpper(values []string) []string {
	return dedupe(values, func(s string) string { return strings.ToUpper(strings.TrimSpace(s)) })
}

func dedupe(values []string, norm func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = norm(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}
	return result
}
