package command

import "strings"

// ParseTriggers splits a comma-separated trigger list. Entries are trimmed,
// empties dropped and later case-insensitive duplicates discarded. Order and
// case of the surviving entries are kept so operators see what they typed.
func ParseTriggers(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		t := strings.TrimSpace(part)
		if t == "" {
			continue
		}
		key := foldTrigger(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func foldTrigger(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
