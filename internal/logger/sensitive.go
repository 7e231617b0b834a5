package logger

import (
	"regexp"
)

// SensitiveDataPatterns contains regex patterns for sensitive data that should be redacted in logs
var SensitiveDataPatterns = []*regexp.Regexp{
	// Auth tokens (Bearer, JWT)
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,})\.[a-zA-Z0-9_-]{5,}`),

	// API keys, tokens and secrets
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),

	// Cookie style pairs
	regexp.MustCompile(`(?i)((?:session|auth|token|csrf|sid)=)([^;,\s]{5,})`),
}

// tokenPrefixLen is how much of a push token stays visible after redaction
const tokenPrefixLen = 8

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "$1[REDACTED]")
	}

	return input
}

// RedactToken keeps the first few characters of a token and masks the rest.
// Short values are fully masked.
func RedactToken(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) <= tokenPrefixLen:
		return "[REDACTED]"
	default:
		return token[:tokenPrefixLen] + "…[REDACTED]"
	}
}
