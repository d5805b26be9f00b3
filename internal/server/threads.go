package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/store"
)

// maxMessageLimit caps the page size of GET /api/chat/{threadID}/messages.
const maxMessageLimit = 500

// accessibleThread loads a thread and checks that the caller owns it or is
// an admin. On failure it writes 404 or 403 and returns false.
func (s *Server) accessibleThread(w http.ResponseWriter, r *http.Request, id string) (store.Thread, bool) {
	th, err := s.store.Thread(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "thread not found")
		return store.Thread{}, false
	}
	if err != nil {
		internalError(w, r, "failed to load thread", err)
		return store.Thread{}, false
	}
	u, _ := currentUser(r.Context())
	if th.UserID != u.ID && u.Role != store.RoleAdmin {
		writeError(w, r, http.StatusForbidden, "not enough permissions")
		return store.Thread{}, false
	}
	return th, true
}

// handleCreateThread handles POST /api/threads. An empty body or title
// gives the thread a dated default title.
func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	u, _ := currentUser(r.Context())
	th, err := s.store.CreateThread(r.Context(), u.ID, req.Title)
	if err != nil {
		internalError(w, r, "failed to create thread", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, th)
}

// handleListThreads handles GET /api/threads. Users see their own threads;
// admins see every thread.
func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	owner := u.ID
	if u.Role == store.RoleAdmin {
		owner = ""
	}
	threads, err := s.store.ListThreads(r.Context(), owner)
	if err != nil {
		internalError(w, r, "failed to list threads", err)
		return
	}
	writeJSON(w, r, http.StatusOK, threads)
}

// handleUpdateThread handles PATCH /api/threads/{id}.
func (s *Server) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	var req updateThreadRequest
	if !s.decode(w, r, &req) {
		return
	}
	th, ok := s.accessibleThread(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	updated, err := s.store.RenameThread(r.Context(), th.ID, req.Title)
	if err != nil {
		internalError(w, r, "failed to update thread", err)
		return
	}
	writeJSON(w, r, http.StatusOK, updated)
}

// handleDeleteThread handles DELETE /api/threads/{id}. Messages of the
// thread are deleted with it.
func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	th, ok := s.accessibleThread(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if err := s.store.DeleteThread(r.Context(), th.ID); err != nil {
		internalError(w, r, "failed to delete thread", err)
		return
	}
	writeJSON(w, r, http.StatusOK, messageResponse{Message: "thread deleted successfully"})
}

// handleSendMessage handles POST /api/chat/{threadID}/message: store the
// question, compose the answer, store the answer with its citations, and
// bump the thread. Composition never fails; provider errors surface as the
// apology text.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	th, ok := s.accessibleThread(w, r, r.PathValue("threadID"))
	if !ok {
		return
	}
	ctx := r.Context()
	log := logging.FromContext(ctx).With(slog.String("thread_id", th.ID))
	ctx = logging.WithLogger(ctx, log)

	question, err := s.store.AppendMessage(ctx, th.ID, store.AuthorUser, req.text(), nil)
	if err != nil {
		internalError(w, r, "failed to store message", err)
		return
	}

	start := time.Now()
	res := s.answerer.Answer(ctx, req.text())
	elapsed := time.Since(start)
	s.metrics.observeChat(res.Branch, elapsed)

	refs := res.References
	if refs == nil {
		refs = []rag.Reference{}
	}
	answer, err := s.store.AppendMessage(ctx, th.ID, store.AuthorAssistant, res.Text, refs)
	if err != nil {
		internalError(w, r, "failed to store answer", err)
		return
	}
	if err := s.store.TouchThread(ctx, th.ID); err != nil {
		log.Warn("failed to bump thread", slog.Any("error", err))
	}

	log.Info("chat turn answered",
		slog.String("branch", string(res.Branch)),
		slog.Int("refs", len(refs)),
		slog.Duration("duration", elapsed),
	)
	writeJSON(w, r, http.StatusOK, sendMessageResponse{
		Message:          res.Text,
		RetrievalRefs:    refs,
		Branch:           res.Branch,
		UserMessage:      question,
		AssistantMessage: answer,
	})
}

// handleListMessages handles GET /api/chat/{threadID}/messages?skip=&limit=.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	skip, ok := queryInt(w, r, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", store.DefaultMessageLimit)
	if !ok {
		return
	}
	if limit == 0 || limit > maxMessageLimit {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxMessageLimit))
		return
	}
	th, ok := s.accessibleThread(w, r, r.PathValue("threadID"))
	if !ok {
		return
	}
	msgs, err := s.store.Messages(r.Context(), th.ID, skip, limit)
	if err != nil {
		internalError(w, r, "failed to list messages", err)
		return
	}
	writeJSON(w, r, http.StatusOK, msgs)
}

// handleCountMessages handles GET /api/chat/{threadID}/messages/count.
func (s *Server) handleCountMessages(w http.ResponseWriter, r *http.Request) {
	th, ok := s.accessibleThread(w, r, r.PathValue("threadID"))
	if !ok {
		return
	}
	n, err := s.store.CountMessages(r.Context(), th.ID)
	if err != nil {
		internalError(w, r, "failed to count messages", err)
		return
	}
	writeJSON(w, r, http.StatusOK, countResponse{Count: n})
}

// handleDeleteMessage handles DELETE /api/chat/messages/{id}. Only the
// thread owner or an admin may delete.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Message(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		internalError(w, r, "failed to load message", err)
		return
	}
	if _, ok := s.accessibleThread(w, r, m.ThreadID); !ok {
		return
	}
	if err := s.store.DeleteMessage(r.Context(), m.ID); err != nil {
		internalError(w, r, "failed to delete message", err)
		return
	}
	writeJSON(w, r, http.StatusOK, messageResponse{Message: "message deleted successfully"})
}

// queryInt parses a non-negative integer query parameter. On a malformed
// value it writes 400 and returns false.
func queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, r, http.StatusBadRequest, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
