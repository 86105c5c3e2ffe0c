package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

// ProjectDetail is the caller-facing project representation.
// terminal_url and the ssh_* fields are populated only while the
// project is running.
type ProjectDetail struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActiveAt   time.Time  `json:"last_active_at"`
	TerminalURL    string     `json:"terminal_url,omitempty"`
	SSHHost        string     `json:"ssh_host,omitempty"`
	SSHPort        int        `json:"ssh_port,omitempty"`
	SSHUser        string     `json:"ssh_user,omitempty"`
	SSHPrivateKey  string     `json:"ssh_private_key,omitempty"`
	LastBackupAt   *time.Time `json:"last_backup_at,omitempty"`
	LastSnapshotAt *time.Time `json:"last_snapshot_at,omitempty"`
}

// ProjectSummary is the list-view representation: no connection
// secrets, just enough to render a project list.
type ProjectSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// BackupStatus answers "when was this last durably saved".
type BackupStatus struct {
	LastBackupAt   *time.Time       `json:"last_backup_at,omitempty"`
	SnapshotImage  string           `json:"snapshot_image,omitempty"`
	LastSnapshotAt *time.Time       `json:"last_snapshot_at,omitempty"`
	History        []SnapshotEntry  `json:"history,omitempty"`
}

// SnapshotEntry is one prior snapshot tag recorded in the registry.
type SnapshotEntry struct {
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) toDetail(p *types.Project) ProjectDetail {
	d := ProjectDetail{
		ID:             p.ID,
		Name:           p.Name,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
		LastActiveAt:   p.LastActiveAt,
		LastBackupAt:   p.LastBackupAt,
		LastSnapshotAt: p.LastSnapshotAt,
	}
	if p.Status == types.ProjectStatusRunning {
		d.TerminalURL = "ws://" + s.hostIP + ":" + strconv.Itoa(s.terminalPort) + "/terminal/" + p.ID
		d.SSHHost = s.hostIP
		d.SSHPort = p.SSHPort
		d.SSHUser = "agent"
		d.SSHPrivateKey = p.SSHPrivateKey
	}
	return d
}

func toSummary(p *types.Project) ProjectSummary {
	return ProjectSummary{
		ID:           p.ID,
		Name:         p.Name,
		Status:       string(p.Status),
		CreatedAt:    p.CreatedAt,
		LastActiveAt: p.LastActiveAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForErr maps the domain error taxonomy to an HTTP status code.
func statusForErr(err error) int {
	switch sandboxerr.CodeOf(err) {
	case sandboxerr.NotFound, sandboxerr.InvalidState:
		return http.StatusNotFound
	case sandboxerr.Conflict:
		return http.StatusConflict
	case sandboxerr.Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
