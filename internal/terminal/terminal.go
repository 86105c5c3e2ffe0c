// Package terminal relays a browser-side terminal session to the
// ttyd PTY server running inside a project's sandbox container: the
// Terminal Gateway.
package terminal

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bitsy-Chuck/pomodex/internal/auth"
	"github.com/Bitsy-Chuck/pomodex/internal/log"
	"github.com/Bitsy-Chuck/pomodex/internal/metrics"
	"github.com/Bitsy-Chuck/pomodex/internal/runtime"
	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/storage"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

const (
	ttydPort    = 7681
	ttydDialTimeout = 5 * time.Second

	closeInvalidRequest  = 4400
	closeUnauthorized    = 4401
	closeBackendFailed   = 4502
	closeContainerDown   = 4503
)

// Gateway accepts websocket connections at /terminal/{project_id} and
// proxies them to the project's in-container ttyd.
type Gateway struct {
	verifier *auth.Verifier
	store    storage.Store
	runtime  runtime.ContainerRuntime
	audit    AuditLogger

	upgrader websocket.Upgrader
	connSeq  uint64
}

// AuditLogger records inbound (client -> PTY) terminal messages. The
// reverse direction is ANSI-heavy and not audited.
type AuditLogger interface {
	LogInput(projectID, userID string, content []byte)
}

func New(verifier *auth.Verifier, store storage.Store, rt runtime.ContainerRuntime, audit AuditLogger) *Gateway {
	return &Gateway{
		verifier: verifier,
		store:    store,
		runtime:  rt,
		audit:    audit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// parseWSPath extracts project_id and token from a path of the form
// /terminal/{project_id}?token={jwt}.
func parseWSPath(r *http.Request) (projectID, token string, ok bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "terminal" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], r.URL.Query().Get("token"), true
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	seq := atomic.AddUint64(&g.connSeq, 1)
	logger := log.WithConn(seq)

	rejectInvalid := func(reason string) {
		if c, err := g.upgrader.Upgrade(w, r, nil); err == nil {
			closeWith(c, closeInvalidRequest, reason)
			_ = c.Close()
		}
	}

	projectID, token, ok := parseWSPath(r)
	if !ok {
		logger.Warn().Str("path", r.URL.Path).Msg("rejected: invalid path")
		rejectInvalid("invalid path")
		return
	}
	if token == "" {
		logger.Warn().Str("project_id", projectID).Msg("rejected: no token")
		rejectInvalid("token required")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.TerminalConnectionsActive.Inc()
	defer metrics.TerminalConnectionsActive.Dec()

	ctx := r.Context()

	userID, err := g.authorize(ctx, token, projectID)
	if err != nil {
		logger.Warn().Err(err).Str("project_id", projectID).Msg("rejected: unauthorized")
		closeWith(conn, closeUnauthorized, "unauthorized")
		metrics.TerminalConnectionsTotal.WithLabelValues("4401").Inc()
		return
	}

	ip, err := g.containerIP(ctx, projectID)
	if err != nil {
		logger.Warn().Err(err).Str("project_id", projectID).Msg("rejected: container not running")
		closeWith(conn, closeContainerDown, "container not running")
		metrics.TerminalConnectionsTotal.WithLabelValues("4503").Inc()
		return
	}

	ttydConn, err := dialTTYD(ip)
	if err != nil {
		logger.Warn().Err(err).Str("project_id", projectID).Msg("ttyd dial failed")
		closeWith(conn, closeBackendFailed, "backend connection failed")
		metrics.TerminalConnectionsTotal.WithLabelValues("4502").Inc()
		return
	}
	defer ttydConn.Close()

	logger.Info().Str("project_id", projectID).Str("user_id", userID).Msg("relay started")
	code := g.relay(conn, ttydConn, projectID, userID)
	metrics.TerminalConnectionsTotal.WithLabelValues(code).Inc()
}

// authorize decodes the access token, loads the project scoped to its
// subject, and bumps last_connection_at. A token valid for a different
// user's project fails identically to an invalid token.
func (g *Gateway) authorize(ctx context.Context, token, projectID string) (string, error) {
	userID, err := g.verifier.DecodeAccessToken(token)
	if err != nil {
		return "", err
	}

	p, err := g.store.GetProject(ctx, projectID)
	if err != nil {
		return "", sandboxerr.New(sandboxerr.Unauthorized, "project not found")
	}
	if p.UserID != userID {
		return "", sandboxerr.New(sandboxerr.Unauthorized, "token does not own this project")
	}

	now := time.Now().UTC()
	p.LastConnectionAt = &now
	if err := g.store.UpdateProject(ctx, p); err != nil {
		log.WithProjectID(projectID).Warn().Err(err).Msg("failed to record last_connection_at")
	}
	return userID, nil
}

func (g *Gateway) containerIP(ctx context.Context, projectID string) (string, error) {
	status, err := g.runtime.GetContainerStatus(ctx, projectID)
	if err != nil {
		return "", err
	}
	if status != types.ContainerStatusRunning {
		return "", sandboxerr.New(sandboxerr.InvalidState, "container not running")
	}
	return g.runtime.GetContainerIP(ctx, projectID)
}

func dialTTYD(ip string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{"tty"},
		HandshakeTimeout: ttydDialTimeout,
	}
	url := "ws://" + ip + ":" + strconv.Itoa(ttydPort) + "/ws"
	conn, _, err := dialer.Dial(url, nil)
	return conn, err
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
