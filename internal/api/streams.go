package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"gitwatch/internal/logging"
	"gitwatch/internal/refresh"
	"gitwatch/internal/watcher"

	"github.com/gorilla/websocket"
)

type changePayload struct {
	Type      string    `json:"type"`
	Metadata  bool      `json:"metadata"`
	Timestamp time.Time `json:"timestamp"`
}

type refreshPayload struct {
	Type string `json:"type"`
	refresh.Snapshot
}

type logFilterMessage struct {
	Level string `json:"level"`
}

type levelFilter struct {
	mu    sync.RWMutex
	level logging.Level
}

func (f *levelFilter) Get() logging.Level {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.level
}

func (f *levelFilter) Set(level logging.Level) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

// handleChanges streams notifications. The optional kind parameter keeps
// only metadata_changed or worktree_changed.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	policy := s.access()
	if !requireStreamToken(w, r, policy, s.Logger) {
		return
	}
	if s.Session == nil {
		rejectStream(w, r, s.Logger, http.StatusServiceUnavailable, "watch session unavailable")
		return
	}

	var filter func(watcher.Notification) bool
	switch kind := r.URL.Query().Get("kind"); kind {
	case "":
	case watcher.NotificationMetadataChanged, watcher.NotificationWorktreeChanged:
		filter = func(notification watcher.Notification) bool {
			return notification.Type() == kind
		}
	default:
		rejectStream(w, r, s.Logger, http.StatusBadRequest, "unknown notification kind")
		return
	}

	output, cancel := s.Session.SubscribeFiltered(filter)
	defer cancel()

	serveStream(w, r, streamConfig[watcher.Notification]{
		Access: policy,
		Output: output,
		Logger: s.Logger,
		Encode: func(notification watcher.Notification) (any, bool) {
			return changePayload{
				Type:      notification.Type(),
				Metadata:  notification.Metadata(),
				Timestamp: time.Now().UTC(),
			}, true
		},
	})
}

// handleRefreshStream sends the latest repository snapshot, then every
// snapshot produced after it.
func (s *Server) handleRefreshStream(w http.ResponseWriter, r *http.Request) {
	policy := s.access()
	if !requireStreamToken(w, r, policy, s.Logger) {
		return
	}
	if s.Refresh == nil {
		rejectStream(w, r, s.Logger, http.StatusServiceUnavailable, "refresh unavailable")
		return
	}

	output, cancel := s.Refresh.Subscribe()
	defer cancel()

	serveStream(w, r, streamConfig[refresh.Snapshot]{
		Access: policy,
		Output: output,
		Logger: s.Logger,
		Replay: func(conn *websocket.Conn) error {
			latest, ok := s.Refresh.Latest()
			if !ok {
				return nil
			}
			return writeJSONFrame(conn, refreshPayload{Type: latest.Type(), Snapshot: latest})
		},
		Encode: func(snapshot refresh.Snapshot) (any, bool) {
			return refreshPayload{Type: snapshot.Type(), Snapshot: snapshot}, true
		},
	})
}

// handleLogs replays the log buffer and then streams new entries. Clients
// change the minimum level by sending {"level": "..."}.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	policy := s.access()
	if !requireStreamToken(w, r, policy, s.Logger) {
		return
	}
	if s.Logger == nil {
		rejectStream(w, r, nil, http.StatusServiceUnavailable, "log stream unavailable")
		return
	}

	filter := &levelFilter{}
	if rawLevel := r.URL.Query().Get("level"); rawLevel != "" {
		if level, ok := logging.ParseLevel(rawLevel); ok {
			filter.Set(level)
		}
	}

	output, cancel := s.Logger.Subscribe()
	defer cancel()

	snapshot := s.Logger.Buffer().List()
	serveStream(w, r, streamConfig[logging.LogEntry]{
		Access:  policy,
		Output:  output,
		Logger:  s.Logger,
		Limiter: s.logLimiter(),
		OnDrop:  func(logging.LogEntry) {
			s.Metrics.IncStreamDropped("logs")
		},
		Replay: func(conn *websocket.Conn) error {
			return writeLogSnapshot(conn, snapshot, filter.Get())
		},
		Encode: func(entry logging.LogEntry) (any, bool) {
			return entry, logging.LevelAtLeast(entry.Level, filter.Get())
		},
		OnText: func(message []byte) {
			var payload logFilterMessage
			if err := json.Unmarshal(message, &payload); err != nil {
				return
			}
			// An unrecognized level clears the filter.
			level, _ := logging.ParseLevel(payload.Level)
			filter.Set(level)
		},
	})
}

func writeLogSnapshot(conn *websocket.Conn, entries []logging.LogEntry, minLevel logging.Level) error {
	for _, entry := range entries {
		if !logging.LevelAtLeast(entry.Level, minLevel) {
			continue
		}
		if err := writeJSONFrame(conn, entry); err != nil {
			return err
		}
	}
	return nil
}
