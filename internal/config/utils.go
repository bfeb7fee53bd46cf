package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookup parses the trimmed value of key, falling back when it is unset, blank or
// does not parse.
func lookup[T any](key string, fallback T, parse func(string) (T, error)) T {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	v, err := parse(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	return lookup(key, defaultVal, strconv.Atoi)
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	return lookup(key, defaultVal, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getEnvAsBool(key string, defaultVal bool) bool {
	return lookup(key, defaultVal, strconv.ParseBool)
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	return lookup(key, defaultVal, time.ParseDuration)
}

func getEnvAsStringSlice(key string, defaults []string) []string {
	parts := lookup(key, nil, func(value string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	})
	if len(parts) == 0 {
		return defaults
	}
	return parts
}
