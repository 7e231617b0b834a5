// Package secrets resolves credentials referenced from the configuration:
// ${VAR} and ${VAR:-default} expansion, and secret files such as Docker or
// Kubernetes mounted secrets. Secret values are never logged.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// maxFileSize bounds secret file reads. Secrets are tokens and passwords.
const maxFileSize = 64 * 1024

// ExpandString resolves ${VAR} and ${VAR:-default} references in s.
// A reference to an unset variable without a fallback is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")

		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret from path, trimming trailing newlines. Files that
// group or other can read are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", fileError(fmt.Errorf("secret file path is empty"), path)
	}

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	switch {
	case os.IsNotExist(err):
		return "", fileError(fmt.Errorf("secret file not found: %s", cleanPath), cleanPath)
	case err != nil:
		return "", fileError(fmt.Errorf("failed to stat secret file: %w", err), cleanPath)
	case !info.Mode().IsRegular():
		return "", fileError(fmt.Errorf("secret path is not a regular file: %s", cleanPath), cleanPath)
	case info.Size() > maxFileSize:
		return "", fileError(fmt.Errorf("secret file too large (max %d bytes): %s", maxFileSize, cleanPath), cleanPath)
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or other",
			logger.String("path", cleanPath),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", fileError(fmt.Errorf("failed to read secret file: %w", err), cleanPath)
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError(fmt.Errorf("secret file is empty: %s", cleanPath), cleanPath)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded. Both empty resolves to "".
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

// ResolveAll expands every value, stopping at the first failure
func ResolveAll(values []string) ([]string, error) {
	if len(values) == 0 {
		return values, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		expanded, err := ExpandString(v)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return out, nil
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

// GetLogger returns the secrets module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}
