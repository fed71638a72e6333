package common

import (
	"fmt"
	"regexp"
	"strings"
)

// SanitizeModelID makes an LLM model id safe for file names:
// "gemini-2.0-flash" -> "gemini_20_flash".
func SanitizeModelID(id string) string {
	return strings.ReplaceAll(strings.ReplaceAll(id, "-", "_"), ".", "")
}

// SanitizeEmbeddingID makes an embedding model id safe for file names:
// "sentence-transformers/all-MiniLM-L6-v2" -> "sentence_transformers_all_MiniLM_L6_v2".
func SanitizeEmbeddingID(id string) string {
	return strings.ReplaceAll(strings.ReplaceAll(id, "/", "_"), "-", "_")
}

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// ExpandTemplate replaces {name} placeholders with values. A placeholder
// without a value is an error so a typo never yields a shared file name.
func ExpandTemplate(tmpl string, values map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unknown placeholder(s) %s in %q", strings.Join(missing, ", "), tmpl)
	}
	return out, nil
}

var urlPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9][-a-zA-Z0-9.]*[a-zA-Z0-9](:[0-9]+)?(/[^\s]*)?$`)

// ValidURL reports whether raw is an absolute http(s) URL without spaces.
func ValidURL(raw string) bool {
	return urlPattern.MatchString(strings.TrimSpace(raw))
}
