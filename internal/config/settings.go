package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gitwatch"
	"gitwatch/internal/config/tomlkeys"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Watch   WatchSettings   `json:"watch"`
	Notify  NotifySettings  `json:"notify"`
	Refresh RefreshSettings `json:"refresh"`
	Log     LogSettings     `json:"log"`
	Server  ServerSettings  `json:"server"`
}

type WatchSettings struct {
	Root             string   `json:"root" validate:"required"`
	Exclude          []string `json:"exclude" validate:"dive,required"`
	UseGitignore     bool     `json:"use_gitignore"`
	MetadataDir      string   `json:"metadata_dir" validate:"required"`
	FollowSymlinks   bool     `json:"follow_symlinks"`
	AutoRegister     bool     `json:"auto_register"`
	MaxWatches       int64    `json:"max_watches" validate:"min=1"`
	DrainLimit       int64    `json:"drain_limit" validate:"min=1,max=65536"`
	SweepIntervalMS  int64    `json:"sweep_interval_ms" validate:"min=0"`
	RewalkIntervalMS int64    `json:"rewalk_interval_ms" validate:"min=1"`
}

type NotifySettings struct {
	BufferSize int64 `json:"buffer_size" validate:"min=1"`
}

type RefreshSettings struct {
	DebounceMS int64 `json:"debounce_ms" validate:"min=1"`
}

type LogSettings struct {
	Level      string `json:"level" validate:"oneof=debug info warn warning error"`
	File       string `json:"file"`
	MaxSizeMB  int64  `json:"max_size_mb" validate:"min=1"`
	MaxBackups int64  `json:"max_backups" validate:"min=0"`
	MaxAgeDays int64  `json:"max_age_days" validate:"min=0"`
}

type ServerSettings struct {
	Addr           string   `json:"addr" validate:"required,hostname_port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DefaultsPayload returns the embedded default configuration.
func DefaultsPayload() ([]byte, error) {
	return fs.ReadFile(gitwatch.EmbeddedConfigFS, gitwatch.DefaultConfigPath)
}

// Load reads path on top of the embedded defaults. A missing file is not an
// error; overrides win over both.
func Load(path string, overrides map[string]any) (Settings, error) {
	defaultsPayload, err := DefaultsPayload()
	if err != nil {
		return Settings{}, fmt.Errorf("read embedded defaults: %w", err)
	}
	return LoadSettings(path, defaultsPayload, overrides)
}

func LoadSettings(path string, defaultsPayload []byte, overrides map[string]any) (Settings, error) {
	defaultsStore, err := tomlkeys.Decode(defaultsPayload)
	if err != nil {
		return Settings{}, err
	}
	defaults := defaultsStore.Flat()
	values := defaultsStore.Flat()

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else {
			store, err := decodeFile(path, payload)
			if err != nil {
				return Settings{}, fmt.Errorf("parse %s: %w", path, err)
			}
			for key, value := range store.Flat() {
				values[key] = value
			}
		}
	}

	for key, value := range overrides {
		normalized := tomlkeys.NormalizeKey(key)
		if normalized == "" {
			continue
		}
		values[normalized] = value
	}

	settings := Settings{}

	settings.Watch.Root = stringSetting(values, "watch.root", "")
	settings.Watch.Exclude = stringListSetting(values, "watch.exclude")
	settings.Watch.UseGitignore = boolSetting(values, "watch.use-gitignore", boolSetting(defaults, "watch.use-gitignore", false))
	settings.Watch.MetadataDir = stringSetting(values, "watch.metadata-dir", "")
	settings.Watch.FollowSymlinks = boolSetting(values, "watch.follow-symlinks", false)
	settings.Watch.AutoRegister = boolSetting(values, "watch.auto-register", boolSetting(defaults, "watch.auto-register", true))
	settings.Watch.MaxWatches = intSetting(values, "watch.max-watches", 0)
	settings.Watch.DrainLimit = intSetting(values, "watch.drain-limit", 0)
	settings.Watch.SweepIntervalMS = intSetting(values, "watch.sweep-interval-ms", -1)
	settings.Watch.RewalkIntervalMS = intSetting(values, "watch.rewalk-interval-ms", 0)
	settings.Notify.BufferSize = intSetting(values, "notify.buffer-size", 0)
	settings.Refresh.DebounceMS = intSetting(values, "refresh.debounce-ms", 0)
	settings.Log.Level = strings.ToLower(stringSetting(values, "log.level", ""))
	settings.Log.File = stringSetting(values, "log.file", "")
	settings.Log.MaxSizeMB = intSetting(values, "log.max-size-mb", 0)
	settings.Log.MaxBackups = intSetting(values, "log.max-backups", -1)
	settings.Log.MaxAgeDays = intSetting(values, "log.max-age-days", -1)
	settings.Server.Addr = stringSetting(values, "server.addr", "")
	settings.Server.AllowedOrigins = stringListSetting(values, "server.allowed-origins")

	return normalizeSettings(settings, defaults), nil
}

func decodeFile(path string, payload []byte) (tomlkeys.Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw := map[string]any{}
		if err := yaml.Unmarshal(payload, &raw); err != nil {
			return tomlkeys.Store{}, err
		}
		return tomlkeys.FromRaw(raw), nil
	default:
		return tomlkeys.Decode(payload)
	}
}

func normalizeSettings(settings Settings, defaults map[string]any) Settings {
	if settings.Watch.Root == "" {
		settings.Watch.Root = stringSetting(defaults, "watch.root", ".")
	}
	if settings.Watch.MetadataDir == "" {
		settings.Watch.MetadataDir = stringSetting(defaults, "watch.metadata-dir", ".git")
	}
	if settings.Watch.MaxWatches <= 0 {
		settings.Watch.MaxWatches = intSetting(defaults, "watch.max-watches", 8192)
	}
	if settings.Watch.DrainLimit <= 0 {
		settings.Watch.DrainLimit = intSetting(defaults, "watch.drain-limit", 256)
	}
	if settings.Watch.SweepIntervalMS < 0 {
		settings.Watch.SweepIntervalMS = intSetting(defaults, "watch.sweep-interval-ms", 60000)
	}
	if settings.Watch.RewalkIntervalMS <= 0 {
		settings.Watch.RewalkIntervalMS = intSetting(defaults, "watch.rewalk-interval-ms", 2000)
	}
	if settings.Notify.BufferSize <= 0 {
		settings.Notify.BufferSize = intSetting(defaults, "notify.buffer-size", 128)
	}
	if settings.Refresh.DebounceMS <= 0 {
		settings.Refresh.DebounceMS = intSetting(defaults, "refresh.debounce-ms", 150)
	}
	if settings.Log.Level == "" {
		settings.Log.Level = stringSetting(defaults, "log.level", "info")
	}
	if settings.Log.MaxSizeMB <= 0 {
		settings.Log.MaxSizeMB = intSetting(defaults, "log.max-size-mb", 10)
	}
	if settings.Log.MaxBackups < 0 {
		settings.Log.MaxBackups = intSetting(defaults, "log.max-backups", 3)
	}
	if settings.Log.MaxAgeDays < 0 {
		settings.Log.MaxAgeDays = intSetting(defaults, "log.max-age-days", 28)
	}
	if settings.Server.Addr == "" {
		settings.Server.Addr = stringSetting(defaults, "server.addr", "127.0.0.1:7419")
	}
	return settings
}

func intSetting(values map[string]any, key string, fallback int64) int64 {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := tomlkeys.Int(value); ok {
		return parsed
	}
	return fallback
}

func stringSetting(values map[string]any, key string, fallback string) string {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(string); ok {
		return strings.TrimSpace(parsed)
	}
	return fallback
}

func boolSetting(values map[string]any, key string, fallback bool) bool {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(bool); ok {
		return parsed
	}
	return fallback
}

// stringListSetting accepts a list or a comma-separated string.
func stringListSetting(values map[string]any, key string) []string {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return nil
	}
	var items []string
	switch typed := value.(type) {
	case string:
		items = strings.Split(typed, ",")
	case []string:
		items = typed
	case []any:
		for _, item := range typed {
			if text, ok := item.(string); ok {
				items = append(items, text)
			}
		}
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// UnknownKeys lists keys in the file at path that no setting reads.
func UnknownKeys(path string) ([]string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	store, err := decodeFile(path, payload)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defaultsPayload, err := DefaultsPayload()
	if err != nil {
		return nil, err
	}
	defaults, err := tomlkeys.Decode(defaultsPayload)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{})
	for _, key := range defaults.Keys() {
		known[key] = struct{}{}
	}
	var unknown []string
	for _, key := range store.Keys() {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	return unknown, nil
}
