package tool

import (
	"os"
	"strings"
)

// GetFileValue returns the value of the environment variable name. When
// name_FILE is set instead, the contents of that file are returned with
// surrounding whitespace removed.
func GetFileValue(name string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	path := os.Getenv(name + "_FILE")
	if path == "" {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// GetEnvDefault returns the environment variable or fallback when unset.
func GetEnvDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
