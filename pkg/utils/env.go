package utils

import (
	"os"
	"strconv"
)

// Env reads an environment variable, falling back to def when it is unset
// or empty.
func Env(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// EnvInt reads a positive integer environment variable. Unset, unparsable,
// and non-positive values all fall back to def.
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
