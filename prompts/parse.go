package prompts

import "strings"

// ParseList splits a raw bullet-list response into entries. Each line is
// trimmed, one leading "-" or "*" marker is removed, and blank entries are
// dropped. Order is preserved.
func ParseList(raw string) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		entry := strings.TrimSpace(line)
		if strings.HasPrefix(entry, "-") || strings.HasPrefix(entry, "*") {
			entry = strings.TrimSpace(entry[1:])
		}
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
