package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every problem in settings joined into one error.
func Validate(settings Settings) error {
	var problems []error

	if err := validate.Struct(settings); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return err
		}
		for _, fieldError := range fieldErrors {
			problems = append(problems, describeFieldError(fieldError))
		}
	}

	for _, exclusion := range settings.Watch.Exclude {
		native := filepath.FromSlash(exclusion)
		if filepath.IsAbs(native) {
			problems = append(problems, fmt.Errorf("watch.exclude: %q must be relative to the root", exclusion))
			continue
		}
		cleaned := filepath.Clean(native)
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			problems = append(problems, fmt.Errorf("watch.exclude: %q escapes the root", exclusion))
		}
	}
	if strings.ContainsRune(settings.Watch.MetadataDir, filepath.Separator) && !filepath.IsAbs(settings.Watch.MetadataDir) {
		problems = append(problems, fmt.Errorf("watch.metadata-dir: %q must be a single directory name or an absolute path", settings.Watch.MetadataDir))
	}
	for _, origin := range settings.Server.AllowedOrigins {
		if origin != "*" && !strings.Contains(origin, "://") {
			problems = append(problems, fmt.Errorf("server.allowed-origins: %q must include a scheme", origin))
		}
	}

	return errors.Join(problems...)
}

func describeFieldError(fieldError validator.FieldError) error {
	key := settingKey(fieldError.Namespace())
	switch fieldError.Tag() {
	case "required":
		return fmt.Errorf("%s: value is required", key)
	case "min":
		return fmt.Errorf("%s: must be at least %s", key, fieldError.Param())
	case "max":
		return fmt.Errorf("%s: must be at most %s", key, fieldError.Param())
	case "oneof":
		return fmt.Errorf("%s: must be one of %s", key, fieldError.Param())
	case "hostname_port":
		return fmt.Errorf("%s: %q is not a host:port address", key, fieldError.Value())
	default:
		return fmt.Errorf("%s: failed %s check", key, fieldError.Tag())
	}
}

var settingKeys = map[string]string{
	"Settings.Watch.Root":             "watch.root",
	"Settings.Watch.MetadataDir":      "watch.metadata-dir",
	"Settings.Watch.MaxWatches":       "watch.max-watches",
	"Settings.Watch.DrainLimit":       "watch.drain-limit",
	"Settings.Watch.SweepIntervalMS":  "watch.sweep-interval-ms",
	"Settings.Watch.RewalkIntervalMS": "watch.rewalk-interval-ms",
	"Settings.Notify.BufferSize":      "notify.buffer-size",
	"Settings.Refresh.DebounceMS":     "refresh.debounce-ms",
	"Settings.Log.Level":              "log.level",
	"Settings.Log.MaxSizeMB":          "log.max-size-mb",
	"Settings.Log.MaxBackups":         "log.max-backups",
	"Settings.Log.MaxAgeDays":         "log.max-age-days",
	"Settings.Server.Addr":            "server.addr",
}

func settingKey(namespace string) string {
	if key, ok := settingKeys[namespace]; ok {
		return key
	}
	if strings.HasPrefix(namespace, "Settings.Watch.Exclude") {
		return "watch.exclude"
	}
	return namespace
}
