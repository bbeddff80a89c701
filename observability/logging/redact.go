package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces sensitive field values in request logs.
const RedactedValue = "[REDACTED]"

// Keys the HTTP and settlement log paths may emit verbatim. Everything else
// carrying a value gets masked: authorization headers, relayer credentials
// and operator tokens must never reach the log sink.
var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"request_id": {},
	"method":     {},
	"path":       {},
	"status":     {},
	"vault":      {},
	"asset":      {},
	"batch_id":   {},
	"error":      {},
}

// IsAllowlisted reports whether the key may be logged without masking.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the keys exempt from masking.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the redaction placeholder for non-empty values. Empty
// values pass through so absent headers do not show up as masked noise.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that masks the value unless the key is
// allowlisted. The original key casing is preserved.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
