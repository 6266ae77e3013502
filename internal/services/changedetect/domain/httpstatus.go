package domain

import (
	"net/http"
	"strings"
)

// httpReasonUpper renders an HTTP status code's reason phrase as the
// upper-snake-case symbolic name the audit report uses (e.g. 429 ->
// "TOO_MANY_REQUESTS", 200 -> "OK").
func httpReasonUpper(code int) string {
	phrase := http.StatusText(code)
	if phrase == "" {
		return "UNKNOWN"
	}
	phrase = strings.ReplaceAll(phrase, " ", "_")
	phrase = strings.ReplaceAll(phrase, "-", "_")
	return strings.ToUpper(phrase)
}
