// Package chat composes answers to user questions from retrieved document
// context. The [Composer] never returns an error: degraded retrieval falls
// through to general context or a fixed message, and provider failures become
// a fixed apology, so a broken knowledge base never breaks a conversation.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/docchat-go/internal/budget"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// Fixed replies returned without calling the model.
const (
	FallbackMessage = "I have access to technical documentation about signage and mounting methods. " +
		"Please ask me specific questions about these topics, and I'll do my best to help you " +
		"with the information available in my knowledge base."
	ApologyMessage = "I apologize, but I encountered an error while processing your request. Please try again."
)

const (
	groundedSystemPrompt = "You are a helpful RAG assistant that only answers based on provided context."
	generalSystemPrompt  = "You are a helpful RAG assistant."

	// DefaultMaxTokens caps the model reply.
	DefaultMaxTokens = 1000
	// DefaultTemperature keeps replies close to the context.
	DefaultTemperature float32 = 0.1
	// DefaultGeneralSample is the number of points scrolled for general context.
	DefaultGeneralSample = 3
)

// Branch names the path a turn took through the composer.
type Branch string

const (
	// BranchGrounded answered from retrieved chunks and carries citations.
	BranchGrounded Branch = "grounded"
	// BranchGeneral answered from an arbitrary sample of the index.
	BranchGeneral Branch = "general"
	// BranchFallback returned FallbackMessage.
	BranchFallback Branch = "fallback"
	// BranchError returned ApologyMessage.
	BranchError Branch = "error"
)

// Completer produces one model reply for a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error)
}

// Searcher returns citation references for a query. *rag.Retriever
// implements it.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) []rag.Reference
}

// Result is the outcome of one turn.
type Result struct {
	Text       string
	References []rag.Reference
	Branch     Branch
}

// Config tunes a Composer. Zero values select the defaults.
type Config struct {
	TopK          int
	MaxTokens     int
	// Temperature is the sampling temperature; nil selects
	// DefaultTemperature so that zero can be asked for.
	Temperature   *float32
	GeneralSample int
	// ContextTokens caps the retrieved context in the grounded prompt.
	// Zero disables the cap.
	ContextTokens int
	// Counter measures ContextTokens (default: budget.Heuristic).
	Counter budget.Counter
	// Observe, when set, is called once per turn with the branch taken.
	Observe func(Branch)
}

// Composer answers questions from indexed documents.
type Composer struct {
	retriever Searcher
	embedder  rag.Embedder
	index     rag.VectorIndex
	llm       Completer
	cfg       Config

	temperature float32
}

// NewComposer wires a Composer. All dependencies are required.
func NewComposer(retriever Searcher, embedder rag.Embedder, index rag.VectorIndex, llm Completer, cfg Config) (*Composer, error) {
	if retriever == nil || embedder == nil || index == nil || llm == nil {
		return nil, fmt.Errorf("chat: retriever, embedder, index and completer are required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	if cfg.GeneralSample <= 0 {
		cfg.GeneralSample = DefaultGeneralSample
	}
	if cfg.Counter == nil {
		cfg.Counter = budget.Heuristic{}
	}
	if cfg.Observe == nil {
		cfg.Observe = func(Branch) {}
	}
	return &Composer{retriever: retriever, embedder: embedder, index: index, llm: llm, cfg: cfg, temperature: temperature}, nil
}

// Answer runs one turn. It never fails; see the package doc.
func (c *Composer) Answer(ctx context.Context, query string) Result {
	log := logging.FromContext(ctx)

	res, err := c.answer(ctx, query)
	if err != nil {
		log.Error("chat: answer failed", slog.Any("error", err))
		res = Result{Text: ApologyMessage, Branch: BranchError}
	}
	if res.References == nil {
		res.References = []rag.Reference{}
	}
	log.Info("chat: answered",
		slog.String("branch", string(res.Branch)),
		slog.Int("references", len(res.References)),
	)
	c.cfg.Observe(res.Branch)
	return res
}

func (c *Composer) answer(ctx context.Context, query string) (Result, error) {
	refs := c.retriever.Search(ctx, query, c.cfg.TopK)
	if len(refs) > 0 {
		return c.grounded(ctx, query, refs)
	}
	return c.general(ctx, query)
}

// grounded re-runs a plain search for the chunk text behind refs and asks
// the model to answer from it with citations.
func (c *Composer) grounded(ctx context.Context, query string, refs []rag.Reference) (Result, error) {
	vec, err := rag.EmbedOne(ctx, c.embedder, query)
	if err != nil {
		return Result{}, fmt.Errorf("chat: embed query: %w", err)
	}
	hits, err := c.index.Search(ctx, vec, len(refs), nil)
	if err != nil {
		return Result{}, fmt.Errorf("chat: context search: %w", err)
	}

	items := make([]string, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Payload.Text) == "" {
			continue
		}
		items = append(items, contextItem(h.Payload))
	}
	if len(items) == 0 {
		return Result{Text: FallbackMessage, Branch: BranchFallback}, nil
	}
	items = budget.Fit(c.cfg.Counter, items, c.cfg.ContextTokens)

	reply, err := c.llm.Complete(ctx, groundedSystemPrompt, groundedPrompt(strings.Join(items, "\n\n"), query),
		c.cfg.MaxTokens, c.temperature)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: strings.TrimSpace(reply), References: refs, Branch: BranchGrounded}, nil
}

// general samples a few points from the index as loose context. An empty
// index yields the fixed fallback.
func (c *Composer) general(ctx context.Context, query string) (Result, error) {
	n, err := c.index.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("chat: count index: %w", err)
	}
	if n == 0 {
		return Result{Text: FallbackMessage, Branch: BranchFallback}, nil
	}

	hits, err := c.index.Scroll(ctx, nil, c.cfg.GeneralSample)
	if err != nil {
		return Result{}, fmt.Errorf("chat: sample index: %w", err)
	}

	var texts []string
	for _, h := range hits {
		if t := strings.TrimSpace(h.Payload.Text); t != "" {
			texts = append(texts, h.Payload.Text)
		}
	}
	if len(texts) == 0 {
		return Result{Text: FallbackMessage, Branch: BranchFallback}, nil
	}
	texts = budget.Fit(c.cfg.Counter, texts, c.cfg.ContextTokens)

	reply, err := c.llm.Complete(ctx, generalSystemPrompt, generalPrompt(strings.Join(texts, "\n\n"), query),
		c.cfg.MaxTokens, c.temperature)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: strings.TrimSpace(reply), Branch: BranchGeneral}, nil
}

// contextItem labels chunk text with its citation source.
func contextItem(p rag.Payload) string {
	name := p.Filename
	if name == "" {
		name = p.DocID
	}
	page := p.Page
	if page <= 0 {
		page = rag.DefaultPage
	}
	return fmt.Sprintf("Document: %s (Page %d)\nContent: %s", name, page, p.Text)
}

func groundedPrompt(docs, query string) string {
	return "You are a helpful assistant. Use the following context to answer the user's question. " +
		"If the context contains relevant information, provide a helpful answer. " +
		"Only say you don't have enough information if the context is completely unrelated to the question. " +
		"Cite the source of each piece of information in the format (filename p.X).\n\n" +
		"Context:\n" + docs + "\n\n" +
		"Question: " + query + "\n\n" +
		"Answer the question based on the context above:"
}

func generalPrompt(docs, query string) string {
	return "You are a helpful assistant. I have some general information available, but it may not be " +
		"directly related to the user's question. Please provide a helpful response if possible, or " +
		"politely explain what kind of information you have access to.\n\n" +
		"Available context:\n" + docs + "\n\n" +
		"User question: " + query + "\n\n" +
		"Please respond helpfully, but if the context doesn't contain relevant information, " +
		"explain what kind of documents you have access to."
}
