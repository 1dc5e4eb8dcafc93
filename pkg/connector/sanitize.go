package connector

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	redacted = "[REDACTED]"

	// MaxLoggedBodySize caps request and response bodies in the audit log.
	MaxLoggedBodySize = 10 * 1024
)

var sensitiveHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie", "Set-Cookie", "X-API-Key"}

var sensitiveBodyKeys = []string{"password", "secret", "token", "api_key", "apikey"}

// SanitizeHeaders copies headers with credential-bearing values redacted.
func SanitizeHeaders(headers map[string]string, extra ...string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if isSensitiveHeader(k, extra) {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveHeader(name string, extra []string) bool {
	canonical := http.CanonicalHeaderKey(name)
	for _, h := range sensitiveHeaders {
		if canonical == http.CanonicalHeaderKey(h) {
			return true
		}
	}
	for _, h := range extra {
		if h != "" && canonical == http.CanonicalHeaderKey(h) {
			return true
		}
	}
	return false
}

// SanitizeBody redacts secret-looking JSON keys and truncates the result.
// Non-JSON bodies are only truncated.
func SanitizeBody(body []byte) *string {
	if len(body) == 0 {
		return nil
	}

	text := validText(body)
	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		if b, err := json.Marshal(redactValue(parsed)); err == nil {
			text = string(b)
		}
	}

	if len(text) > MaxLoggedBodySize {
		text = truncate(text, MaxLoggedBodySize) + "...[truncated]"
	}
	return &text
}

// validText replaces invalid UTF-8 sequences so bodies can be stored as text.
func validText(b []byte) string {
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSensitiveKey(k) {
				out[k] = redacted
				continue
			}
			out[k] = redactValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(val)
		}
		return out
	}
	return v
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveBodyKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
