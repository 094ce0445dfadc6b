package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gitwatch/internal/config"
	"gitwatch/internal/git"
	"gitwatch/internal/logging"
	"gitwatch/internal/metrics"
	"gitwatch/internal/refresh"
	"gitwatch/internal/watcher"

	"github.com/mattn/go-isatty"
)

const tokenEnvVar = "GITWATCH_TOKEN"

// environment is everything a long-running command needs, built from the
// merged settings.
type environment struct {
	settings   config.Settings
	logger     *logging.Logger
	registry   *metrics.Registry
	token      string
	repo       *git.Repository
	session    *watcher.Session
	controller *refresh.Controller
	closers    []io.Closer
}

// loadSettings merges embedded defaults, the config file, the environment
// and command line flags, in increasing priority, and validates the result.
func loadSettings(flags *globalFlags, root string) (config.Settings, func(string) (string, bool), error) {
	lookup, err := config.EnvLookup(flags.envFile)
	if err != nil {
		return config.Settings{}, nil, fmt.Errorf("read %s: %w", flags.envFile, err)
	}
	cli := map[string]any{}
	if flags.logLevel != "" {
		cli["log.level"] = flags.logLevel
	}
	if flags.logFile != "" {
		cli["log.file"] = flags.logFile
	}
	if root != "" {
		cli["watch.root"] = root
	}

	settings, err := config.Load(flags.configPath, config.MergeOverrides(config.EnvOverrides(lookup), cli))
	if err != nil {
		return config.Settings{}, nil, err
	}
	if err := config.Validate(settings); err != nil {
		return config.Settings{}, nil, usageError{err: err}
	}
	return settings, lookup, nil
}

func newLogger(settings config.LogSettings, stderr io.Writer) (*logging.Logger, io.Closer, error) {
	level, ok := logging.ParseLevel(settings.Level)
	if !ok {
		level = logging.LevelInfo
	}
	if settings.File == "" {
		return logging.NewLoggerWithOutput(nil, level, stderr), nil, nil
	}
	file, err := logging.NewFileOutput(logging.FileOptions{
		Path:       settings.File,
		MaxSizeMB:  int(settings.MaxSizeMB),
		MaxBackups: int(settings.MaxBackups),
		MaxAgeDays: int(settings.MaxAgeDays),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.NewLoggerWithOutput(nil, level, logging.NewTeeOutput(stderr, file)), file, nil
}

// startEnvironment opens the repository when there is one, starts the
// watch session and, for repositories, a refresh controller fed by it.
func startEnvironment(ctx context.Context, flags *globalFlags, root string, stderr io.Writer) (*environment, error) {
	settings, lookup, err := loadSettings(flags, root)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := newLogger(settings.Log, stderr)
	if err != nil {
		return nil, err
	}
	env := &environment{
		settings: settings,
		logger:   logger,
		registry: &metrics.Registry{},
	}
	env.token, _ = lookup(tokenEnvVar)
	if logCloser != nil {
		env.closers = append(env.closers, logCloser)
	}

	repo, err := git.OpenRoot(settings.Watch.Root)
	switch {
	case err == nil:
		env.repo = repo
	case errors.Is(err, git.ErrNotRepository):
		logger.Info("not a git repository; watching without refresh", map[string]string{
			"root": settings.Watch.Root,
		})
	default:
		env.close()
		return nil, err
	}

	exclusions, err := env.exclusions()
	if err != nil {
		env.close()
		return nil, err
	}

	session, err := watcher.Start(ctx, settings.Watch.Root, exclusions, env.watcherOptions())
	if err != nil {
		env.close()
		return nil, err
	}
	env.session = session

	if repo != nil {
		env.controller = refresh.NewController(ctx, repo, refresh.Options{
			Debounce: time.Duration(settings.Refresh.DebounceMS) * time.Millisecond,
			Logger:   logger,
			Metrics:  env.registry,
		})
		notifications, _ := session.Subscribe()
		go env.controller.Run(notifications)
	}
	return env, nil
}

// exclusions adds the directories Git ignores to the configured list.
func (env *environment) exclusions() ([]string, error) {
	exclusions := append([]string(nil), env.settings.Watch.Exclude...)
	if !env.settings.Watch.UseGitignore || env.repo == nil {
		return exclusions, nil
	}
	ignored, err := git.IgnoredDirs(env.settings.Watch.Root, env.settings.Watch.MetadataDir)
	if err != nil {
		return nil, fmt.Errorf("read ignore rules: %w", err)
	}
	env.logger.Debug("ignored directories excluded", map[string]string{
		"count": strconv.Itoa(len(ignored)),
	})
	return append(exclusions, ignored...), nil
}

func (env *environment) watcherOptions() watcher.Options {
	watch := env.settings.Watch
	metadataDir := watch.MetadataDir
	// Linked worktrees keep their metadata outside the tree.
	if env.repo != nil && metadataDir == watcher.DefaultMetadataDir && env.repo.MetadataDirName() == "" {
		metadataDir = env.repo.GitDir
	}
	sweep := time.Duration(watch.SweepIntervalMS) * time.Millisecond
	if watch.SweepIntervalMS == 0 {
		sweep = -1
	}
	return watcher.Options{
		Logger:              env.logger,
		Metrics:             env.registry,
		MetadataDir:         metadataDir,
		FollowSymlinks:      watch.FollowSymlinks,
		DisableAutoRegister: !watch.AutoRegister,
		MaxWatches:          int(watch.MaxWatches),
		DrainLimit:          int(watch.DrainLimit),
		SweepInterval:       sweep,
		RewalkInterval:      time.Duration(watch.RewalkIntervalMS) * time.Millisecond,
		BufferSize:          int(env.settings.Notify.BufferSize),
	}
}

// close stops the controller, then the session, then closes the log file.
func (env *environment) close() error {
	coordinator := newShutdownCoordinator(env.logger)
	if env.controller != nil {
		coordinator.Add("refresh", func(context.Context) error {
			env.controller.Close()
			return nil
		})
	}
	if env.session != nil {
		coordinator.Add("watcher", func(context.Context) error {
			return env.session.Close()
		})
	}
	for _, closer := range env.closers {
		coordinator.Add("log file", func(context.Context) error {
			return closer.Close()
		})
	}
	return coordinator.Run(context.Background())
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
