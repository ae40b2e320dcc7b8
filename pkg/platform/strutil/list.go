// Package strutil normalises identifier lists taken from requests and env.
package strutil

import "strings"

// DedupeAndTrim trims every value and drops blanks and repeats, keeping the
// first occurrence order. The result is nil when nothing survives.
func DedupeAndTrim(values ...string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a comma separated value and normalises it with
// DedupeAndTrim.
func SplitList(raw string) []string {
	return DedupeAndTrim(strings.Split(raw, ",")...)
}
