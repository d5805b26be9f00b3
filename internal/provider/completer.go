package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Completer adapts an eino chat model to a single system+user prompt call.
// It is safe for concurrent use when the wrapped model is.
type Completer struct {
	model model.BaseChatModel
	name  string
}

// NewCompleter wraps m. name identifies the backend in error messages.
func NewCompleter(m model.BaseChatModel, name string) *Completer {
	return &Completer{model: m, name: name}
}

// Name returns the backend name given to NewCompleter.
func (c *Completer) Name() string { return c.name }

// Complete sends one system and one user message and returns the reply text.
// maxTokens <= 0 leaves the model default in place. Every failure, including
// an empty reply, is wrapped with ErrProvider.
func (c *Completer) Complete(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	opts := []model.Option{model.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	resp, err := c.model.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("provider: %s generate: %v: %w", c.name, err, ErrProvider)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("provider: %s returned an empty reply: %w", c.name, ErrProvider)
	}
	return resp.Content, nil
}

// Ping issues a minimal generation to confirm the backend is reachable and
// the credentials are accepted. An empty reply is not an error here.
func (c *Completer) Ping(ctx context.Context) error {
	_, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("provider: %s ping: %v: %w", c.name, err, ErrProvider)
	}
	return nil
}
