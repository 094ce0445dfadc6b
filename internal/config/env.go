package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// envKeys maps environment variables to setting keys.
var envKeys = map[string]string{
	"GITWATCH_ROOT":      "watch.root",
	"GITWATCH_EXCLUDE":   "watch.exclude",
	"GITWATCH_LOG_LEVEL": "log.level",
	"GITWATCH_LOG_FILE":  "log.file",
	"GITWATCH_ADDR":      "server.addr",
}

// EnvOverrides collects setting overrides from lookup. Blank values are
// ignored.
func EnvOverrides(lookup func(string) (string, bool)) map[string]any {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	overrides := make(map[string]any)
	for name, key := range envKeys {
		value, ok := lookup(name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		overrides[key] = value
	}
	return overrides
}

// EnvLookup resolves variables from the process environment first, then
// from the dotenv file at path when it exists.
func EnvLookup(path string) (func(string) (string, bool), error) {
	fileValues := map[string]string{}
	if strings.TrimSpace(path) != "" {
		values, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if values != nil {
			fileValues = values
		}
	}
	return func(name string) (string, bool) {
		if value, ok := os.LookupEnv(name); ok {
			return value, true
		}
		value, ok := fileValues[name]
		return value, ok
	}, nil
}

// MergeOverrides combines override maps; later maps win.
func MergeOverrides(maps ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, values := range maps {
		for key, value := range values {
			merged[key] = value
		}
	}
	return merged
}
