// utils/names.go
package utils

import (
	"regexp"
	"strings"
)

var separatorRuns = regexp.MustCompile(`[-_.]+`)

// NormalizePackageName converts a PyPI project name to its PEP 503 form:
// runs of '-', '_' and '.' become a single '-', and the result is lowercased.
func NormalizePackageName(name string) string {
	return strings.ToLower(separatorRuns.ReplaceAllString(strings.TrimSpace(name), "-"))
}
