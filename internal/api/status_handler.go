package api

import (
	"net/http"
	"strconv"
	"time"

	"gitwatch/internal/metrics"
	"gitwatch/internal/refresh"
	"gitwatch/internal/version"
	"gitwatch/internal/watcher"
)

type statusResponse struct {
	Root         string            `json:"root"`
	MetadataDir  string            `json:"metadata_dir"`
	Exclusions   []string          `json:"exclusions"`
	Running      bool              `json:"running"`
	Session      watcher.Metrics   `json:"session"`
	Totals       metrics.Snapshot  `json:"totals"`
	Repository   *refresh.Snapshot `json:"repository,omitempty"`
	RefreshStats *refresh.Stats    `json:"refresh_stats,omitempty"`
	LogDrops     uint64            `json:"log_drops"`
	Version      version.Info      `json:"version"`
	ServerTime   time.Time         `json:"server_time"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	if !s.running() {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "watch session stopped"}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	if s.Session == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "watch session unavailable"}
	}

	exclusions := s.Session.Exclusions()
	if exclusions == nil {
		exclusions = []string{}
	}
	response := statusResponse{
		Root:        s.Session.Root(),
		MetadataDir: s.Session.MetadataDir(),
		Exclusions:  exclusions,
		Running:     s.running(),
		Session:     s.Session.Metrics(),
		Totals:      s.Metrics.Snapshot(),
		LogDrops:    s.Logger.DroppedEntries(),
		Version:     version.Get(),
		ServerTime:  time.Now().UTC(),
	}
	if s.Refresh != nil {
		if snapshot, ok := s.Refresh.Latest(); ok {
			response.Repository = &snapshot
		}
		stats := s.Refresh.Stats()
		response.RefreshStats = &stats
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

// handleRefresh queues a repository refresh. full=true also re-reads the
// branch.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, http.MethodPost)
	}
	if s.Refresh == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "refresh unavailable"}
	}
	full := false
	if raw := r.URL.Query().Get("full"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return &apiError{Status: http.StatusBadRequest, Message: "full must be a boolean"}
		}
		full = parsed
	}
	s.Refresh.Request(full)
	writeJSON(w, http.StatusAccepted, map[string]bool{"full": full})
	return nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	if s.Metrics == nil {
		return &apiError{Status: http.StatusNotFound, Message: "metrics disabled"}
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := s.Metrics.WritePrometheus(w); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	return nil
}

func (s *Server) running() bool {
	if s.Session == nil {
		return false
	}
	select {
	case <-s.Session.Done():
		return false
	default:
		return true
	}
}
