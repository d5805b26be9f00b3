package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docchat-go/internal/auth"
	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/extract"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/store"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// fakeAnswerer records queries and returns a fixed result.
type fakeAnswerer struct {
	mu      sync.Mutex
	queries []string
	result  chat.Result
}

func (f *fakeAnswerer) Answer(_ context.Context, query string) chat.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.result
}

// fakeDocs records ingestion and deletion calls.
type fakeDocs struct {
	mu         sync.Mutex
	processed  []ingestion.Request
	deleted    []string
	processErr error
	deleteErr  error
	indexed    bool
	replace    bool
}

func (f *fakeDocs) Process(_ context.Context, req ingestion.Request) (ingestion.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processErr != nil {
		return ingestion.Document{}, f.processErr
	}
	f.processed = append(f.processed, req)
	id := req.DocID
	if id == "" {
		id = "doc-" + req.Filename
		if n := len(f.processed); n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}
	}
	doc := ingestion.Document{
		DocID:        id,
		Filename:     req.Filename,
		SizeBytes:    int64(len(req.Data)),
		PageCount:    2,
		RAGProcessed: f.indexed,
	}
	if f.indexed {
		doc.Chunks = 3
	}
	return doc, nil
}

func (f *fakeDocs) ReplaceExisting() bool { return f.replace }

func (f *fakeDocs) Delete(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, docID)
	return nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

// testEnv is a Server over an in-memory store with fake collaborators.
type testEnv struct {
	srv     *Server
	store   *store.SQLiteStore
	answer  *fakeAnswerer
	docs    *fakeDocs
	issuer  *auth.Issuer
	reg     *prometheus.Registry
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	issuer, err := auth.NewIssuer("test-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	env := &testEnv{
		store: st,
		answer: &fakeAnswerer{result: chat.Result{
			Text:       "Use the M6 bolts (mount.pdf p.4).",
			References: []rag.Reference{{DocID: "d1", Filename: "mount.pdf", Page: 4, ChunkID: "d1_chunk2", Score: 0.82}},
			Branch:     chat.BranchGrounded,
		}},
		docs:   &fakeDocs{indexed: true},
		issuer: issuer,
		reg:    prometheus.NewRegistry(),
	}
	srv, err := New(Deps{Store: st, Answerer: env.answer, Documents: env.docs, Issuer: issuer}, &Config{
		Logger:          logging.NewWithWriter(io.Discard, "error", "text"),
		MetricsRegistry: env.reg,
		MetricsGatherer: env.reg,
		RateLimit:       1000,
		RateBurst:       1000,
		UploadMaxBytes:  1 << 20,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.stopRL)
	env.srv = srv
	env.handler = srv.Handler()
	return env
}

// newTestServer returns a bare Server for handler-level tests.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestEnv(t).srv
}

// user creates an account and returns it with a valid token.
func (e *testEnv) user(t *testing.T, email string, role store.Role) (store.User, string) {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), email, "unused-hash", role)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	tok, err := e.issuer.Issue(u.Email, string(u.Role))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return u, tok
}

// do sends a request through the full middleware stack. body is JSON-encoded
// unless it is already an io.Reader.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		rdr = b
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.1:4321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected %d, got %d; body: %s", code, w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func Test_New_RequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := New(Deps{}, nil); err == nil {
		t.Fatal("expected error for missing deps")
	}
}

func Test_RequestIDEchoed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc123")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc123" {
		t.Errorf("request id = %q, want echo of abc123", got)
	}

	w = env.do(t, http.MethodGet, "/api/health", "", nil)
	if _, err := uuid.Parse(w.Header().Get(requestIDHeader)); err != nil {
		t.Errorf("generated request id = %q, want a UUID", w.Header().Get(requestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "bad\nid")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got == "bad\nid" {
		t.Error("request id with control characters was echoed")
	}
}

func Test_RequestLogger_LogsCompletion(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, "info", "json")

	h := requestLogger(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		noteUser(r.Context(), "u-42")
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["level"] != "ERROR" || line["status"] != float64(500) || line["user_id"] != "u-42" {
		t.Errorf("unexpected completion line %v", line)
	}
	if n, _ := line["bytes"].(float64); n == 0 {
		t.Errorf("bytes = %v, want the body size", line["bytes"])
	}
}

// ---------------------------------------------------------------------------
// Auth endpoints
// ---------------------------------------------------------------------------

func Test_Login(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	hash, _ := auth.HashPassword("correct horse")
	if _, err := env.store.CreateUser(ctx, "ada@example.com", hash, store.RoleUser); err != nil {
		t.Fatal(err)
	}
	off, _ := env.store.CreateUser(ctx, "off@example.com", hash, store.RoleUser)
	inactive := false
	if _, err := env.store.UpdateUser(ctx, off.ID, store.UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "ada@example.com", Password: "correct horse"})
	wantStatus(t, w, http.StatusOK)
	tok := decodeJSON[tokenResponse](t, w)
	if tok.TokenType != "bearer" || tok.ExpiresIn != 3600 {
		t.Errorf("unexpected token response: %+v", tok)
	}
	claims, err := env.issuer.Verify(tok.AccessToken)
	if err != nil || claims.Subject != "ada@example.com" || claims.Role != "user" {
		t.Errorf("issued token invalid: %+v, %v", claims, err)
	}

	tests := []struct {
		name string
		body loginRequest
		code int
	}{
		{"wrong password", loginRequest{Email: "ada@example.com", Password: "nope"}, http.StatusUnauthorized},
		{"unknown email", loginRequest{Email: "who@example.com", Password: "correct horse"}, http.StatusUnauthorized},
		{"inactive", loginRequest{Email: "off@example.com", Password: "correct horse"}, http.StatusUnauthorized},
		{"not an email", loginRequest{Email: "ada", Password: "x"}, http.StatusUnprocessableEntity},
		{"missing password", loginRequest{Email: "ada@example.com"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/auth/login", "", tt.body)
			wantStatus(t, w, tt.code)
		})
	}
}

func Test_Login_MalformedBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/auth/login", "", strings.NewReader("{not json"))
	wantStatus(t, w, http.StatusBadRequest)
}

func Test_Me(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u, tok := env.user(t, "me@example.com", store.RoleUser)

	w := env.do(t, http.MethodGet, "/api/auth/me", tok, nil)
	wantStatus(t, w, http.StatusOK)
	got := decodeJSON[map[string]any](t, w)
	if got["id"] != u.ID || got["email"] != "me@example.com" || got["role"] != "user" {
		t.Errorf("unexpected body: %v", got)
	}
	if _, leaked := got["password_hash"]; leaked {
		t.Error("password hash must not be serialised")
	}
	if _, leaked := got["PasswordHash"]; leaked {
		t.Error("password hash must not be serialised")
	}
}

// ---------------------------------------------------------------------------
// Threads
// ---------------------------------------------------------------------------

func Test_Threads_CRUDAndVisibility(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, aliceTok := env.user(t, "alice@example.com", store.RoleUser)
	_, bobTok := env.user(t, "bob@example.com", store.RoleUser)
	_, adminTok := env.user(t, "root@example.com", store.RoleAdmin)

	w := env.do(t, http.MethodPost, "/api/threads", aliceTok, createThreadRequest{})
	wantStatus(t, w, http.StatusCreated)
	th := decodeJSON[store.Thread](t, w)
	if !strings.HasPrefix(th.Title, "New Chat ") {
		t.Errorf("default title = %q", th.Title)
	}

	w = env.do(t, http.MethodPost, "/api/threads", bobTok, nil)
	wantStatus(t, w, http.StatusCreated)

	mine := decodeJSON[[]store.Thread](t, env.do(t, http.MethodGet, "/api/threads", aliceTok, nil))
	if len(mine) != 1 || mine[0].ID != th.ID {
		t.Errorf("alice should see only her thread, got %+v", mine)
	}
	all := decodeJSON[[]store.Thread](t, env.do(t, http.MethodGet, "/api/threads", adminTok, nil))
	if len(all) != 2 {
		t.Errorf("admin should see every thread, got %d", len(all))
	}

	path := "/api/threads/" + th.ID
	wantStatus(t, env.do(t, http.MethodPatch, path, bobTok, updateThreadRequest{Title: "hijack"}), http.StatusForbidden)
	wantStatus(t, env.do(t, http.MethodPatch, path, aliceTok, updateThreadRequest{}), http.StatusUnprocessableEntity)

	w = env.do(t, http.MethodPatch, path, aliceTok, updateThreadRequest{Title: "Wall mounts"})
	wantStatus(t, w, http.StatusOK)
	if got := decodeJSON[store.Thread](t, w); got.Title != "Wall mounts" {
		t.Errorf("title = %q", got.Title)
	}

	wantStatus(t, env.do(t, http.MethodPatch, "/api/threads/missing", aliceTok, updateThreadRequest{Title: "x"}), http.StatusNotFound)
	wantStatus(t, env.do(t, http.MethodDelete, path, bobTok, nil), http.StatusForbidden)
	wantStatus(t, env.do(t, http.MethodDelete, path, adminTok, nil), http.StatusOK)
	wantStatus(t, env.do(t, http.MethodDelete, path, aliceTok, nil), http.StatusNotFound)
}

func Test_Threads_RequireToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/threads", "", nil)
	wantStatus(t, w, http.StatusUnauthorized)
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header on 401")
	}
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

func Test_Chat_SendMessage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, tok := env.user(t, "ann@example.com", store.RoleUser)
	th := decodeJSON[store.Thread](t, env.do(t, http.MethodPost, "/api/threads", tok, createThreadRequest{Title: "t"}))

	w := env.do(t, http.MethodPost, "/api/chat/"+th.ID+"/message", tok, sendMessageRequest{Content: "How do I mount it?"})
	wantStatus(t, w, http.StatusOK)
	resp := decodeJSON[sendMessageResponse](t, w)

	if resp.Message != env.answer.result.Text || resp.Branch != chat.BranchGrounded {
		t.Errorf("unexpected reply: %+v", resp)
	}
	if len(resp.RetrievalRefs) != 1 || resp.RetrievalRefs[0].ChunkID != "d1_chunk2" {
		t.Errorf("refs not returned: %+v", resp.RetrievalRefs)
	}
	if resp.UserMessage.Role != store.AuthorUser || resp.AssistantMessage.Role != store.AuthorAssistant {
		t.Errorf("roles: %s / %s", resp.UserMessage.Role, resp.AssistantMessage.Role)
	}
	if len(env.answer.queries) != 1 || env.answer.queries[0] != "How do I mount it?" {
		t.Errorf("answerer queries = %v", env.answer.queries)
	}

	msgs := decodeJSON[[]store.Message](t, env.do(t, http.MethodGet, "/api/chat/"+th.ID+"/messages", tok, nil))
	if len(msgs) != 2 || msgs[0].Content != "How do I mount it?" || msgs[1].Refs[0].Filename != "mount.pdf" {
		t.Errorf("stored messages: %+v", msgs)
	}
	if msgs[0].Refs != nil {
		t.Errorf("question should carry no refs, got %+v", msgs[0].Refs)
	}
}

func Test_Chat_MessageAliasAndUngroundedRefs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.answer.result = chat.Result{Text: chat.FallbackMessage, Branch: chat.BranchFallback}
	_, tok := env.user(t, "ben@example.com", store.RoleUser)
	th := decodeJSON[store.Thread](t, env.do(t, http.MethodPost, "/api/threads", tok, nil))

	w := env.do(t, http.MethodPost, "/api/chat/"+th.ID+"/message", tok, map[string]string{"message": "hello"})
	wantStatus(t, w, http.StatusOK)
	body := decodeJSON[map[string]any](t, w)
	refs, ok := body["retrieval_refs"].([]any)
	if !ok || len(refs) != 0 {
		t.Errorf("retrieval_refs should be an empty list, got %#v", body["retrieval_refs"])
	}
	if env.answer.queries[0] != "hello" {
		t.Errorf("alias not honoured: %v", env.answer.queries)
	}

	wantStatus(t, env.do(t, http.MethodPost, "/api/chat/"+th.ID+"/message", tok, map[string]string{}), http.StatusUnprocessableEntity)
}

func Test_Chat_Permissions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, ownerTok := env.user(t, "owner@example.com", store.RoleUser)
	_, otherTok := env.user(t, "other@example.com", store.RoleUser)
	_, adminTok := env.user(t, "admin@example.com", store.RoleAdmin)
	th := decodeJSON[store.Thread](t, env.do(t, http.MethodPost, "/api/threads", ownerTok, nil))
	base := "/api/chat/" + th.ID

	wantStatus(t, env.do(t, http.MethodPost, base+"/message", otherTok, sendMessageRequest{Content: "x"}), http.StatusForbidden)
	wantStatus(t, env.do(t, http.MethodGet, base+"/messages", otherTok, nil), http.StatusForbidden)
	wantStatus(t, env.do(t, http.MethodGet, base+"/messages/count", otherTok, nil), http.StatusForbidden)
	wantStatus(t, env.do(t, http.MethodPost, "/api/chat/nope/message", ownerTok, sendMessageRequest{Content: "x"}), http.StatusNotFound)

	wantStatus(t, env.do(t, http.MethodPost, base+"/message", adminTok, sendMessageRequest{Content: "admin asks"}), http.StatusOK)
	if len(env.answer.queries) != 1 {
		t.Errorf("forbidden requests must not reach the composer, got %v", env.answer.queries)
	}
}

func Test_Chat_PagingCountAndDelete(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, tok := env.user(t, "pager@example.com", store.RoleUser)
	_, otherTok := env.user(t, "snoop@example.com", store.RoleUser)
	th := decodeJSON[store.Thread](t, env.do(t, http.MethodPost, "/api/threads", tok, nil))
	base := "/api/chat/" + th.ID

	for range 3 {
		wantStatus(t, env.do(t, http.MethodPost, base+"/message", tok, sendMessageRequest{Content: "q"}), http.StatusOK)
	}

	count := decodeJSON[countResponse](t, env.do(t, http.MethodGet, base+"/messages/count", tok, nil))
	if count.Count != 6 {
		t.Errorf("count = %d, want 6", count.Count)
	}
	page := decodeJSON[[]store.Message](t, env.do(t, http.MethodGet, base+"/messages?skip=4&limit=10", tok, nil))
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}
	for _, q := range []string{"?skip=-1", "?limit=abc", "?limit=0", "?limit=100000"} {
		wantStatus(t, env.do(t, http.MethodGet, base+"/messages"+q, tok, nil), http.StatusBadRequest)
	}

	target := page[0].ID
	wantStatus(t, env.do(t, http.MethodDelete, "/api/chat/messages/"+target, otherTok, nil), http.StatusForbidden)
	wantStatus(t, env.do(t, http.MethodDelete, "/api/chat/messages/"+target, tok, nil), http.StatusOK)
	wantStatus(t, env.do(t, http.MethodDelete, "/api/chat/messages/"+target, tok, nil), http.StatusNotFound)

	count = decodeJSON[countResponse](t, env.do(t, http.MethodGet, base+"/messages/count", tok, nil))
	if count.Count != 5 {
		t.Errorf("count after delete = %d, want 5", count.Count)
	}
}

// ---------------------------------------------------------------------------
// Admin: users
// ---------------------------------------------------------------------------

func Test_Admin_RequiresAdminRole(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, tok := env.user(t, "plain@example.com", store.RoleUser)
	for _, path := range []string{"/api/admin/users", "/api/admin/documents"} {
		wantStatus(t, env.do(t, http.MethodGet, path, tok, nil), http.StatusForbidden)
	}
	wantStatus(t, env.do(t, http.MethodGet, "/api/admin/users", "", nil), http.StatusUnauthorized)
}

func Test_Admin_UserLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	admin, tok := env.user(t, "boss@example.com", store.RoleAdmin)

	w := env.do(t, http.MethodPost, "/api/admin/users", tok, createUserRequest{Email: "new@example.com", Password: "pw123456"})
	wantStatus(t, w, http.StatusCreated)
	created := decodeJSON[store.User](t, w)
	if created.Role != store.RoleUser || !created.IsActive {
		t.Errorf("unexpected user: %+v", created)
	}

	wantStatus(t, env.do(t, http.MethodPost, "/api/admin/users", tok, createUserRequest{Email: "NEW@example.com", Password: "x"}), http.StatusBadRequest)
	wantStatus(t, env.do(t, http.MethodPost, "/api/admin/users", tok, createUserRequest{Email: "bad", Password: "x"}), http.StatusUnprocessableEntity)
	wantStatus(t, env.do(t, http.MethodPost, "/api/admin/users", tok, createUserRequest{Email: "r@example.com", Password: "x", Role: "root"}), http.StatusUnprocessableEntity)

	// The created account can log in with the stored bcrypt hash.
	wantStatus(t, env.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "new@example.com", Password: "pw123456"}), http.StatusOK)

	users := decodeJSON[[]store.User](t, env.do(t, http.MethodGet, "/api/admin/users?search=NEW", tok, nil))
	if len(users) != 1 || users[0].ID != created.ID {
		t.Errorf("search: %+v", users)
	}

	path := "/api/admin/users/" + created.ID
	wantStatus(t, env.do(t, http.MethodPatch, path, tok, map[string]any{}), http.StatusBadRequest)
	w = env.do(t, http.MethodPatch, path, tok, map[string]any{"role": "admin", "is_active": false})
	wantStatus(t, w, http.StatusOK)
	if got := decodeJSON[store.User](t, w); got.Role != store.RoleAdmin || got.IsActive {
		t.Errorf("patch not applied: %+v", got)
	}
	wantStatus(t, env.do(t, http.MethodPatch, "/api/admin/users/missing", tok, map[string]any{"role": "user"}), http.StatusNotFound)

	wantStatus(t, env.do(t, http.MethodDelete, "/api/admin/users/"+admin.ID, tok, nil), http.StatusBadRequest)
	wantStatus(t, env.do(t, http.MethodDelete, path, tok, nil), http.StatusOK)
	wantStatus(t, env.do(t, http.MethodDelete, path, tok, nil), http.StatusNotFound)
}

func Test_Admin_DeactivatedTokenRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u, tok := env.user(t, "soon-off@example.com", store.RoleUser)
	inactive := false
	if _, err := env.store.UpdateUser(context.Background(), u.ID, store.UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatal(err)
	}
	wantStatus(t, env.do(t, http.MethodGet, "/api/auth/me", tok, nil), http.StatusForbidden)
}

func Test_Admin_Signup(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, adminTok := env.user(t, "a@example.com", store.RoleAdmin)
	_, userTok := env.user(t, "u@example.com", store.RoleUser)

	body := createUserRequest{Email: "s@example.com", Password: "pw", Role: "admin"}
	wantStatus(t, env.do(t, http.MethodPost, "/api/auth/signup", userTok, body), http.StatusForbidden)
	w := env.do(t, http.MethodPost, "/api/auth/signup", adminTok, body)
	wantStatus(t, w, http.StatusCreated)
	if got := decodeJSON[store.User](t, w); got.Role != store.RoleAdmin {
		t.Errorf("role = %s", got.Role)
	}
}

func Test_Admin_ChatHistory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, adminTok := env.user(t, "admin@example.com", store.RoleAdmin)
	u, tok := env.user(t, "talker@example.com", store.RoleUser)
	th := decodeJSON[store.Thread](t, env.do(t, http.MethodPost, "/api/threads", tok, nil))
	wantStatus(t, env.do(t, http.MethodPost, "/api/chat/"+th.ID+"/message", tok, sendMessageRequest{Content: "hi"}), http.StatusOK)

	w := env.do(t, http.MethodGet, "/api/admin/users/"+u.ID+"/chat-history", adminTok, nil)
	wantStatus(t, w, http.StatusOK)
	history := decodeJSON[[]historyThread](t, w)
	if len(history) != 1 || history[0].ID != th.ID || len(history[0].Messages) != 2 {
		t.Errorf("unexpected history: %+v", history)
	}
	wantStatus(t, env.do(t, http.MethodGet, "/api/admin/users/missing/chat-history", adminTok, nil), http.StatusNotFound)
}

// ---------------------------------------------------------------------------
// Admin: documents
// ---------------------------------------------------------------------------

// multipartUpload builds a multipart body with one "file" part.
func multipartUpload(t *testing.T, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartUpload(t, filename, data)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/documents/upload", body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func Test_Documents_UploadListDelete(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, tok := env.user(t, "docs@example.com", store.RoleAdmin)

	w := env.upload(t, tok, "manual.pdf", []byte("%PDF-fake"))
	wantStatus(t, w, http.StatusCreated)
	doc := decodeJSON[documentResponse](t, w)
	if doc.DocID != "doc-manual.pdf" || doc.SizeBytes != 9 || doc.Chunks != 3 || !doc.RAGProcessed {
		t.Errorf("unexpected document: %+v", doc)
	}

	docs := decodeJSON[[]store.Document](t, env.do(t, http.MethodGet, "/api/admin/documents", tok, nil))
	if len(docs) != 1 || docs[0].Filename != "manual.pdf" {
		t.Errorf("list: %+v", docs)
	}

	wantStatus(t, env.do(t, http.MethodDelete, "/api/admin/documents/None", tok, nil), http.StatusBadRequest)
	wantStatus(t, env.do(t, http.MethodDelete, "/api/admin/documents/unknown", tok, nil), http.StatusNotFound)
	wantStatus(t, env.do(t, http.MethodDelete, "/api/admin/documents/"+doc.DocID, tok, nil), http.StatusOK)
	if len(env.docs.deleted) != 1 || env.docs.deleted[0] != doc.DocID {
		t.Errorf("vectors not deleted: %v", env.docs.deleted)
	}
	if docs := decodeJSON[[]store.Document](t, env.do(t, http.MethodGet, "/api/admin/documents", tok, nil)); len(docs) != 0 {
		t.Errorf("record not deleted: %+v", docs)
	}
}

func Test_Documents_UnprocessedUploadIsRecorded(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.docs.indexed = false
	_, tok := env.user(t, "docs@example.com", store.RoleAdmin)

	w := env.upload(t, tok, "scan.docx", []byte("zip?"))
	wantStatus(t, w, http.StatusCreated)
	if doc := decodeJSON[documentResponse](t, w); doc.RAGProcessed || doc.PageCount != 2 {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func Test_Documents_ReuploadSameFilename(t *testing.T) {
	t.Parallel()
	for _, replace := range []bool{false, true} {
		env := newTestEnv(t)
		env.docs.replace = replace
		_, tok := env.user(t, "docs@example.com", store.RoleAdmin)

		first := decodeJSON[documentResponse](t, env.upload(t, tok, "manual.docx", []byte("v1")))
		w := env.upload(t, tok, "manual.docx", []byte("version two"))
		wantStatus(t, w, http.StatusCreated)
		second := decodeJSON[documentResponse](t, w)

		docs := decodeJSON[[]store.Document](t, env.do(t, http.MethodGet, "/api/admin/documents", tok, nil))
		if !replace {
			if second.DocID == first.DocID || len(docs) != 2 {
				t.Errorf("replace off: ids %q/%q, %d records", first.DocID, second.DocID, len(docs))
			}
			continue
		}
		if second.DocID != first.DocID || second.ID != first.ID {
			t.Errorf("replace on: re-upload got %q (record %s), want %q (record %s)", second.DocID, second.ID, first.DocID, first.ID)
		}
		if env.docs.processed[1].DocID != first.DocID {
			t.Errorf("second ingestion ran under doc id %q", env.docs.processed[1].DocID)
		}
		if len(docs) != 1 || docs[0].SizeBytes != int64(len("version two")) {
			t.Errorf("replace on: registry %+v", docs)
		}
		if len(env.docs.deleted) != 0 {
			t.Errorf("replacement must not roll back vectors: %v", env.docs.deleted)
		}
	}
}

func Test_Documents_UploadRejections(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, tok := env.user(t, "docs@example.com", store.RoleAdmin)

	wantStatus(t, env.upload(t, tok, "notes.txt", []byte("plain")), http.StatusBadRequest)
	wantStatus(t, env.upload(t, tok, "huge.pdf", bytes.Repeat([]byte("x"), 2<<20)), http.StatusRequestEntityTooLarge)
	wantStatus(t, env.do(t, http.MethodPost, "/api/admin/documents/upload", tok, map[string]string{"file": "x"}), http.StatusBadRequest)

	env.docs.processErr = extract.ErrUnsupportedFormat
	wantStatus(t, env.upload(t, tok, "odd.pdf", []byte("x")), http.StatusBadRequest)
	env.docs.processErr = errors.New("disk full")
	wantStatus(t, env.upload(t, tok, "odd.pdf", []byte("x")), http.StatusInternalServerError)
	if len(env.docs.processed) != 0 {
		t.Errorf("rejected uploads must not be processed: %+v", env.docs.processed)
	}
}

func Test_Documents_DeleteIndexFailureKeepsRecord(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, tok := env.user(t, "docs@example.com", store.RoleAdmin)
	doc := decodeJSON[documentResponse](t, env.upload(t, tok, "keep.pdf", []byte("%PDF")))

	env.docs.deleteErr = errors.New("qdrant down")
	wantStatus(t, env.do(t, http.MethodDelete, "/api/admin/documents/"+doc.DocID, tok, nil), http.StatusInternalServerError)
	if _, err := env.store.DocumentByDocID(context.Background(), doc.DocID); err != nil {
		t.Errorf("record should survive a failed index delete: %v", err)
	}
}
