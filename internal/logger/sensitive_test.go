package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactSensitiveData(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no sensitive data",
			input:    "worker registered at /firebase-messaging-sw.js",
			expected: "worker registered at /firebase-messaging-sw.js",
		},
		{
			name:     "password",
			input:    "password=SuperSecretPassword123",
			expected: "password=[REDACTED]",
		},
		{
			name:     "session cookie",
			input:    "Cookie: session=1234567890abcdef; Path=/; HttpOnly",
			expected: "Cookie: session=[REDACTED]; Path=/; HttpOnly",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, RedactSensitiveData(tc.input))
		})
	}
}

func TestRedactToken(t *testing.T) {
	assert.Empty(t, RedactToken(""))
	assert.Equal(t, "[REDACTED]", RedactToken("tok123"))
	assert.Equal(t, "fcm-abcd…[REDACTED]", RedactToken("fcm-abcdefghijklmnop"))
}
