package runtime

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// render substitutes {{key}} placeholders using lookup.
// Placeholders lookup cannot resolve are left untouched.
func render(tmpl string, lookup func(key string) (string, bool)) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := lookup(key); ok {
			return v
		}
		return m
	})
}
