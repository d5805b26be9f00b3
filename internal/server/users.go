package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/54b3r/docchat-go/internal/auth"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/store"
)

// handleLogin handles POST /api/auth/login. Unknown email, wrong password
// and inactive accounts all get the same 401 so callers cannot probe which
// emails exist.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	log := logging.FromContext(r.Context())

	deny := func(reason string) {
		log.Warn("login rejected", slog.String("reason", reason))
		w.Header().Set("WWW-Authenticate", `Bearer realm="docchat"`)
		writeError(w, r, http.StatusUnauthorized, auth.ErrBadCredentials.Error())
	}

	user, err := s.store.UserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		deny("unknown email")
		return
	}
	if err != nil {
		internalError(w, r, "failed to load user", err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		deny("bad password")
		return
	}
	if !user.IsActive {
		deny("inactive")
		return
	}

	token, err := s.issuer.Issue(user.Email, string(user.Role))
	if err != nil {
		internalError(w, r, "failed to issue token", err)
		return
	}
	log.Info("login succeeded", slog.String("user_id", user.ID))
	writeJSON(w, r, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.issuer.TTL().Seconds()),
	})
}

// handleMe handles GET /api/auth/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	writeJSON(w, r, http.StatusOK, u)
}

// handleListUsers handles GET /api/admin/users?search=.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		internalError(w, r, "failed to list users", err)
		return
	}
	writeJSON(w, r, http.StatusOK, users)
}

// handleCreateUser handles POST /api/admin/users and POST /api/auth/signup.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	role := store.RoleUser
	if req.Role != "" {
		role = store.Role(req.Role)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		internalError(w, r, "failed to hash password", err)
		return
	}
	u, err := s.store.CreateUser(r.Context(), req.Email, hash, role)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, r, http.StatusBadRequest, "email already registered")
		return
	}
	if err != nil {
		internalError(w, r, "failed to create user", err)
		return
	}
	logging.FromContext(r.Context()).Info("user created",
		slog.String("new_user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	writeJSON(w, r, http.StatusCreated, u)
}

// handleUpdateUser handles PATCH /api/admin/users/{id}.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	upd := store.UserUpdate{Email: req.Email, IsActive: req.IsActive}
	if req.Role != nil {
		role := store.Role(*req.Role)
		upd.Role = &role
	}

	u, err := s.store.UpdateUser(r.Context(), r.PathValue("id"), upd)
	switch {
	case errors.Is(err, store.ErrNoChanges):
		writeError(w, r, http.StatusBadRequest, "no fields to update")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, r, http.StatusBadRequest, "email already registered")
	case err != nil:
		internalError(w, r, "failed to update user", err)
	default:
		writeJSON(w, r, http.StatusOK, u)
	}
}

// handleDeleteUser handles DELETE /api/admin/users/{id}. Admins cannot
// delete their own account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if me, _ := currentUser(r.Context()); me.ID == id {
		writeError(w, r, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	err := s.store.DeleteUser(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case err != nil:
		internalError(w, r, "failed to delete user", err)
	default:
		writeJSON(w, r, http.StatusOK, messageResponse{Message: "user deleted successfully"})
	}
}

// handleChatHistory handles GET /api/admin/users/{id}/chat-history: every
// thread of the user with up to one page of its messages.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.UserByID(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		internalError(w, r, "failed to load user", err)
		return
	}

	threads, err := s.store.ListThreads(r.Context(), id)
	if err != nil {
		internalError(w, r, "failed to list threads", err)
		return
	}
	history := make([]historyThread, 0, len(threads))
	for _, th := range threads {
		msgs, err := s.store.Messages(r.Context(), th.ID, 0, store.DefaultMessageLimit)
		if err != nil {
			internalError(w, r, "failed to list messages", err)
			return
		}
		history = append(history, historyThread{Thread: th, Messages: msgs})
	}
	writeJSON(w, r, http.StatusOK, history)
}
