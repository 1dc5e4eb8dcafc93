package connector

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHeaders(t *testing.T) {
	out := SanitizeHeaders(map[string]string{
		"authorization": "Bearer abc",
		"Cookie":        "a=b",
		"X-Api-Key":     "k",
		"Ticket":        "t",
		"Accept":        "application/json",
	}, "ticket")

	assert.Equal(t, "[REDACTED]", out["authorization"])
	assert.Equal(t, "[REDACTED]", out["Cookie"])
	assert.Equal(t, "[REDACTED]", out["X-Api-Key"])
	assert.Equal(t, "[REDACTED]", out["Ticket"])
	assert.Equal(t, "application/json", out["Accept"])
}

func TestSanitizeBody(t *testing.T) {
	assert.Nil(t, SanitizeBody(nil))

	body := SanitizeBody([]byte(`{"user":"ana","Password":"x","nested":{"access_token":"y"},"list":[{"client_secret":"z"}]}`))
	require.NotNil(t, body)
	assert.Contains(t, *body, `"user":"ana"`)
	assert.NotContains(t, *body, `"x"`)
	assert.NotContains(t, *body, `"y"`)
	assert.NotContains(t, *body, `"z"`)

	plain := SanitizeBody([]byte("not json"))
	require.NotNil(t, plain)
	assert.Equal(t, "not json", *plain)

	long := SanitizeBody([]byte(strings.Repeat("a", MaxLoggedBodySize+50)))
	require.NotNil(t, long)
	assert.True(t, strings.HasSuffix(*long, "...[truncated]"))
	assert.Len(t, *long, MaxLoggedBodySize+len("...[truncated]"))
}

func TestSanitizeBody_KeepsValidUTF8(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"accents across the cut", []byte("x" + strings.Repeat("á", MaxLoggedBodySize))},
		{"json with accents", []byte(`{"glosa":"` + strings.Repeat("ñ", MaxLoggedBodySize) + `"}`)},
		{"latin-1 bytes", []byte("Educaci\xf3n municipal")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SanitizeBody(tt.body)
			require.NotNil(t, out)
			assert.True(t, utf8.ValidString(*out))
			assert.LessOrEqual(t, len(*out), MaxLoggedBodySize+len("...[truncated]"))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "é" is two bytes; cutting inside it drops the whole rune.
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "aé", truncate("aéb", 3))
}
