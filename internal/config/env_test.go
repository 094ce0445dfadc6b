package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"GITWATCH_ROOT":      "/srv/repo",
		"GITWATCH_EXCLUDE":   "vendor,build",
		"GITWATCH_LOG_LEVEL": "  ",
		"UNRELATED":          "x",
	}
	overrides := EnvOverrides(func(name string) (string, bool) {
		value, ok := env[name]
		return value, ok
	})

	require.Equal(t, map[string]any{
		"watch.root":    "/srv/repo",
		"watch.exclude": "vendor,build",
	}, overrides)

	settings, err := Load("", overrides)
	require.NoError(t, err)
	require.Equal(t, "/srv/repo", settings.Watch.Root)
	require.Equal(t, []string{"vendor", "build"}, settings.Watch.Exclude)
	require.Equal(t, "info", settings.Log.Level)
}

func TestEnvLookupReadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GITWATCH_ADDR=127.0.0.1:9999\nGITWATCH_LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("GITWATCH_LOG_LEVEL", "error")

	lookup, err := EnvLookup(path)
	require.NoError(t, err)

	overrides := EnvOverrides(lookup)
	require.Equal(t, "127.0.0.1:9999", overrides["server.addr"])
	require.Equal(t, "error", overrides["log.level"])
}

func TestEnvLookupMissingDotenv(t *testing.T) {
	lookup, err := EnvLookup(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	_, ok := lookup("GITWATCH_SURELY_UNSET")
	require.False(t, ok)
}

func TestMergeOverridesLaterWins(t *testing.T) {
	merged := MergeOverrides(
		map[string]any{"watch.root": "a", "log.level": "debug"},
		map[string]any{"watch.root": "b"},
	)
	require.Equal(t, map[string]any{"watch.root": "b", "log.level": "debug"}, merged)
}
