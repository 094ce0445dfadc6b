package logging

import "strings"

// Level is the severity attached to every entry.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

var levelOrder = map[Level]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Valid reports whether the level is one of the four known severities.
func (level Level) Valid() bool {
	_, ok := levelOrder[level]
	return ok
}

// rank treats unknown levels as info.
func (level Level) rank() int {
	if rank, ok := levelOrder[level]; ok {
		return rank
	}
	return levelOrder[LevelInfo]
}

func (level Level) orInfo() Level {
	if level.Valid() {
		return level
	}
	return LevelInfo
}

// LevelAtLeast reports whether level is at or above min. An empty min admits everything.
func LevelAtLeast(level, min Level) bool {
	if min == "" {
		return true
	}
	return level.rank() >= min.rank()
}

// ParseLevel accepts the level names used in config files and query strings.
// "warn" is an alias for warning.
func ParseLevel(value string) (Level, bool) {
	normalized := Level(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "warn" {
		return LevelWarning, true
	}
	if !normalized.Valid() {
		return "", false
	}
	return normalized, true
}
