package api

import (
	"net/http"
	"strconv"
	"time"

	"gitwatch/internal/logging"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	wsBufferSize   = 1024
	wsWriteTimeout = 10 * time.Second
	// RFC 6455 caps close reasons at 123 bytes.
	maxCloseReasonBytes = 123
)

// streamConfig describes one server-to-client websocket stream.
type streamConfig[T any] struct {
	Access access
	Output <-chan T
	// Encode maps a value to its JSON payload. Returning false skips it.
	// Nil sends values as they are.
	Encode func(T) (any, bool)
	// Replay runs after the upgrade and before any live value is sent.
	Replay func(*websocket.Conn) error
	// OnText receives text frames sent by the client.
	OnText func([]byte)
	// Values arriving faster than Limiter allows go to OnDrop instead.
	Limiter *rate.Limiter
	OnDrop  func(T)
	Logger  *logging.Logger
}

// serveStream upgrades the request and pumps Output to the client until
// Output closes, a write fails, the client leaves or the server shuts down.
func serveStream[T any](w http.ResponseWriter, r *http.Request, cfg streamConfig[T]) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.Access.originAllowed(r)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logStreamFailure(cfg.Logger, r, http.StatusBadRequest, "websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	if cfg.Replay != nil {
		if err := cfg.Replay(conn); err != nil {
			logStreamFailure(cfg.Logger, r, http.StatusInternalServerError, "stream replay failed", err)
			sendClose(conn, closeCodeForStatus(http.StatusInternalServerError), err.Error())
			return
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		pump(conn, cfg, stop)
	}()
	go func() {
		select {
		case <-pumped:
			sendClose(conn, websocket.CloseNormalClosure, "stream closed")
		case <-r.Context().Done():
			sendClose(conn, websocket.CloseGoingAway, "server shutting down")
		case <-stop:
			return
		}
		_ = conn.Close()
	}()

	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage && cfg.OnText != nil {
			cfg.OnText(message)
		}
	}
}

func pump[T any](conn *websocket.Conn, cfg streamConfig[T], stop <-chan struct{}) {
	for {
		var value T
		select {
		case <-stop:
			return
		case next, ok := <-cfg.Output:
			if !ok {
				return
			}
			value = next
		}

		if cfg.Limiter != nil && !cfg.Limiter.Allow() {
			if cfg.OnDrop != nil {
				cfg.OnDrop(value)
			}
			continue
		}
		var payload any = value
		if cfg.Encode != nil {
			encoded, ok := cfg.Encode(value)
			if !ok {
				continue
			}
			payload = encoded
		}
		if err := writeJSONFrame(conn, payload); err != nil {
			return
		}
	}
}

func writeJSONFrame(conn *websocket.Conn, payload any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}

func sendClose(conn *websocket.Conn, code int, reason string) {
	if len(reason) > maxCloseReasonBytes {
		reason = reason[:maxCloseReasonBytes]
	}
	message := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(wsWriteTimeout))
}

// rejectStream answers a websocket request that fails before the upgrade.
func rejectStream(w http.ResponseWriter, r *http.Request, logger *logging.Logger, status int, message string) {
	logStreamFailure(logger, r, status, message, nil)
	http.Error(w, message, status)
}

func requireStreamToken(w http.ResponseWriter, r *http.Request, policy access, logger *logging.Logger) bool {
	if policy.authorized(r) {
		return true
	}
	rejectStream(w, r, logger, http.StatusUnauthorized, "unauthorized")
	return false
}

func logStreamFailure(logger *logging.Logger, r *http.Request, status int, message string, err error) {
	fields := map[string]string{
		"gitwatch.category": "api",
		"path":              r.URL.Path,
		"status":            strconv.Itoa(status),
		"close_code":        strconv.Itoa(closeCodeForStatus(status)),
		"message":           message,
	}
	if r.RemoteAddr != "" {
		fields["remote_addr"] = r.RemoteAddr
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if status >= http.StatusInternalServerError {
		logger.Error("websocket error", fields)
		return
	}
	logger.Warn("websocket error", fields)
}

func closeCodeForStatus(status int) int {
	switch {
	case status == http.StatusBadRequest:
		return websocket.CloseProtocolError
	case status == http.StatusServiceUnavailable:
		return websocket.CloseTryAgainLater
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseInternalServerErr
	}
}
