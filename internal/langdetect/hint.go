package langdetect

import "strings"

// NormalizeHint reduces a declared language hint ("en-US", "nl_NL", "EN") to
// its lowercase primary subtag. Returns an empty string when the hint is blank
// or malformed, which hands the decision to the detector.
func NormalizeHint(raw string) string {
	hint := strings.ToLower(strings.TrimSpace(raw))
	if hint == "" {
		return ""
	}

	hint = strings.ReplaceAll(hint, "_", "-")
	if dash := strings.IndexByte(hint, '-'); dash >= 0 {
		hint = hint[:dash]
	}
	if len(hint) < 2 || len(hint) > 3 {
		return ""
	}
	for _, r := range hint {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return hint
}
