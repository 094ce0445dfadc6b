package logging

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// LogEntry is what the ring buffer stores and what /ws/logs streams.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Line renders the entry as a single logfmt line with sorted field keys.
func (entry LogEntry) Line() string {
	var line strings.Builder
	line.WriteString("time=")
	line.WriteString(entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	line.WriteString(" level=")
	line.WriteString(string(entry.Level))
	line.WriteString(" msg=")
	line.WriteString(strconv.Quote(entry.Message))
	for _, key := range slices.Sorted(maps.Keys(entry.Context)) {
		line.WriteByte(' ')
		line.WriteString(key)
		line.WriteByte('=')
		line.WriteString(strconv.Quote(entry.Context[key]))
	}
	return line.String()
}

func mergeFields(base, extra map[string]string) map[string]string {
	if len(base)+len(extra) == 0 {
		return nil
	}
	merged := maps.Clone(base)
	if merged == nil {
		merged = make(map[string]string, len(extra))
	}
	maps.Copy(merged, extra)
	return merged
}
