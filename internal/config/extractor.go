package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gitwatch/internal/logging"
)

var ErrConfigExists = errors.New("config file already exists")

type ExtractAction string

const (
	ExtractWritten  ExtractAction = "written"
	ExtractUpToDate ExtractAction = "up_to_date"
	ExtractReplaced ExtractAction = "replaced"
)

// Extractor backs `gitwatch config init`: it writes the embedded defaults
// to disk so they can be edited.
type Extractor struct {
	Logger *logging.Logger
}

// Extract writes the defaults to destPath. A file with identical content
// is left alone. A file with other content is kept unless force is set,
// in which case it is renamed to destPath+".bck" first.
func (e *Extractor) Extract(destPath string, force bool) (ExtractAction, error) {
	defaults, err := DefaultsPayload()
	if err != nil {
		return "", fmt.Errorf("read embedded defaults: %w", err)
	}

	action, err := e.prepareDestination(destPath, defaults, force)
	if err != nil || action == ExtractUpToDate {
		return action, err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}
	if err := replaceFile(destPath, defaults); err != nil {
		return "", fmt.Errorf("write %s: %w", destPath, err)
	}
	e.logger().Info("config file written", map[string]string{
		"path":   destPath,
		"action": string(action),
	})
	return action, nil
}

func (e *Extractor) prepareDestination(destPath string, defaults []byte, force bool) (ExtractAction, error) {
	info, err := os.Stat(destPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return ExtractWritten, nil
	case err != nil:
		return "", fmt.Errorf("stat destination: %w", err)
	case info.IsDir():
		return "", fmt.Errorf("destination is a directory: %s", destPath)
	}

	existing, err := os.ReadFile(destPath)
	if err != nil {
		return "", fmt.Errorf("read existing file: %w", err)
	}
	if bytes.Equal(existing, defaults) {
		e.logger().Debug("config file up-to-date, skipping", map[string]string{"path": destPath})
		return ExtractUpToDate, nil
	}
	if !force {
		return "", fmt.Errorf("%s: %w", destPath, ErrConfigExists)
	}

	backup := destPath + ".bck"
	if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove old backup: %w", err)
	}
	if err := os.Rename(destPath, backup); err != nil {
		return "", fmt.Errorf("back up %s: %w", destPath, err)
	}
	e.logger().Warn("config file backed up", map[string]string{
		"path":   destPath,
		"backup": backup,
	})
	return ExtractReplaced, nil
}

func (e *Extractor) logger() *logging.Logger {
	if e == nil {
		return nil
	}
	return e.Logger
}

// replaceFile writes through a temp file in the same directory so readers
// never see a partial config.
func replaceFile(destPath string, payload []byte) error {
	temp, err := os.CreateTemp(filepath.Dir(destPath), ".gitwatch-config-*")
	if err != nil {
		return err
	}
	defer os.Remove(temp.Name())

	if _, err := temp.Write(payload); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Chmod(0o644); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}
	return os.Rename(temp.Name(), destPath)
}
