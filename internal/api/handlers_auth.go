package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Bitsy-Chuck/pomodex/internal/auth"
	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not hash password")
		return
	}

	u := &types.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		writeError(w, statusForErr(err), "email already registered")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": u.ID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !auth.VerifyPassword(req.Password, u.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	access, err := s.verifier.CreateAccessToken(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create access token")
		return
	}
	refresh, err := s.verifier.IssueRefreshToken(r.Context(), u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{Access: access, Refresh: refresh})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "refresh token required")
		return
	}

	userID, newRefresh, err := s.verifier.RotateRefreshToken(r.Context(), req.Refresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	access, err := s.verifier.CreateAccessToken(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create access token")
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{Access: access, Refresh: newRefresh})
}

type internalValidateRequest struct {
	Token     string `json:"token"`
	ProjectID string `json:"project_id"`
}

// handleInternalValidate exists for deployments that run the terminal
// gateway out of process; the in-process gateway calls
// internal/terminal's own authorize path directly instead.
func (s *Server) handleInternalValidate(w http.ResponseWriter, r *http.Request) {
	var req internalValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := s.verifier.DecodeAccessToken(req.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	p, err := s.store.GetProject(r.Context(), req.ProjectID)
	if err != nil || p.UserID != userID {
		writeError(w, http.StatusUnauthorized, sandboxerr.New(sandboxerr.Unauthorized, "token does not own project").Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID})
}
