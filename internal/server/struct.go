package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docchat-go/internal/auth"
	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full answer composition round trip.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// TrustProxy keys rate limiting by X-Forwarded-For. Enable only behind a
	// proxy that overwrites the header.
	TrustProxy bool
	// UploadMaxBytes caps document uploads (default: 50 MiB).
	UploadMaxBytes int64
	// MetricsRegistry receives the server's HTTP metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// Metrics, when set, is used instead of registering a new set against
	// MetricsRegistry. Callers that also feed component observers share one.
	Metrics *Metrics
}

// Answerer produces the reply for one chat turn. *chat.Composer implements it.
type Answerer interface {
	Answer(ctx context.Context, query string) chat.Result
}

// DocumentProcessor indexes and removes uploaded documents.
// *ingestion.Ingestor implements it.
type DocumentProcessor interface {
	Process(ctx context.Context, req ingestion.Request) (ingestion.Document, error)
	Delete(ctx context.Context, docID string) error
	// ReplaceExisting reports whether re-uploading a filename replaces the
	// document registered under it.
	ReplaceExisting() bool
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Store     *store.SQLiteStore
	Answerer  Answerer
	Documents DocumentProcessor
	Issuer    *auth.Issuer
}

// Server is the HTTP API of docchat.
type Server struct {
	// store holds users, threads, messages and the document registry.
	store *store.SQLiteStore
	// answerer runs the answer composer for chat turns.
	answerer Answerer
	// docs ingests and deletes documents in the vector index.
	docs DocumentProcessor
	// issuer signs and verifies access tokens.
	issuer *auth.Issuer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *Metrics
	// validate checks decoded request bodies.
	validate *validator.Validate
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// loginRequest is the JSON body for POST /api/auth/login.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// tokenResponse is the JSON response for a successful login.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
}

// createUserRequest is the JSON body for POST /api/admin/users and
// POST /api/auth/signup.
type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user"`
}

// updateUserRequest is the JSON body for PATCH /api/admin/users/{id}.
type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin user"`
	IsActive *bool   `json:"is_active"`
}

// createThreadRequest is the JSON body for POST /api/threads.
type createThreadRequest struct {
	Title string `json:"title" validate:"max=200"`
}

// updateThreadRequest is the JSON body for PATCH /api/threads/{id}.
type updateThreadRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// sendMessageRequest is the JSON body for POST /api/chat/{threadID}/message.
// Message is accepted as an alias of Content.
type sendMessageRequest struct {
	Content string `json:"content" validate:"required_without=Message"`
	Message string `json:"message" validate:"required_without=Content"`
}

// text returns whichever of Content or Message was supplied.
func (r sendMessageRequest) text() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Message
}

// sendMessageResponse is the JSON response for POST /api/chat/{threadID}/message.
type sendMessageResponse struct {
	// Message is the assistant reply text.
	Message string `json:"message"`
	// RetrievalRefs are the citations backing the reply; empty when the
	// reply is not grounded.
	RetrievalRefs []rag.Reference `json:"retrieval_refs"`
	// Branch names the composer path that produced the reply.
	Branch chat.Branch `json:"branch"`
	// UserMessage is the stored copy of the question.
	UserMessage store.Message `json:"user_message"`
	// AssistantMessage is the stored copy of the reply.
	AssistantMessage store.Message `json:"assistant_message"`
}

// countResponse is the JSON response for GET /api/chat/{threadID}/messages/count.
type countResponse struct {
	Count int `json:"count"`
}

// historyThread is one thread in GET /api/admin/users/{id}/chat-history.
type historyThread struct {
	store.Thread
	Messages []store.Message `json:"messages"`
}

// documentResponse is the JSON response for an uploaded document.
type documentResponse struct {
	store.Document
	// Chunks is the number of chunks indexed for the upload.
	Chunks int `json:"chunks"`
}

// messageResponse is the generic acknowledgement body.
type messageResponse struct {
	Message string `json:"message"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
	// Fields maps request fields to validation failures.
	Fields map[string]string `json:"fields,omitempty"`
}
