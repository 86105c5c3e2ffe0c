package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjectsByUser(r.Context(), callerUserID(r))
	if err != nil {
		writeError(w, statusForErr(err), "could not list projects")
		return
	}

	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, toSummary(p))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p, _, err := s.lifecycle.Create(r.Context(), callerUserID(r), req.Name)
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, s.toDetail(p))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	p, err := s.store.GetProject(r.Context(), projectID)
	if err != nil || p.UserID != callerUserID(r) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, s.toDetail(p))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	p, err := s.lifecycle.Start(r.Context(), projectID, callerUserID(r))
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.toDetail(p))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	p, err := s.lifecycle.Stop(r.Context(), projectID, callerUserID(r))
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.toDetail(p))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if err := s.lifecycle.Delete(r.Context(), projectID, callerUserID(r)); err != nil {
		if sandboxerr.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleBackupStatus(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	p, err := s.store.GetProject(r.Context(), projectID)
	if err != nil || p.UserID != callerUserID(r) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	status := BackupStatus{
		LastBackupAt:   p.LastBackupAt,
		SnapshotImage:  p.SnapshotImage,
		LastSnapshotAt: p.LastSnapshotAt,
	}

	if snapshots, err := s.reg.ListSnapshots(r.Context(), projectID); err == nil {
		status.History = make([]SnapshotEntry, 0, len(snapshots))
		for _, snap := range snapshots {
			status.History = append(status.History, SnapshotEntry{Tag: snap.Tag, CreatedAt: snap.CreatedAt})
		}
	}

	writeJSON(w, http.StatusOK, status)
}

