// Package ai asks a language model for plausible test values when a form
// uses field names the classifier table does not know. It is consulted only
// while a template is being built, never during a run.
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/form"
)

const (
	maxTokens      = 1024
	defaultTimeout = 60 * time.Second
)

var errEmptyReply = errors.New("empty reply")

// Options selects and configures a backend.
type Options struct {
	Provider string // claude, anthropic or openai
	Model    string // provider default when empty
	APIKey   string // falls back to the provider's usual environment variable
	Timeout  time.Duration
}

// completer sends one system/user exchange and returns the reply text.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// Suggester implements classifier.Suggester on top of an LLM backend.
type Suggester struct {
	name    string
	backend completer
	timeout time.Duration
	log     *zap.Logger
}

// New returns a Suggester for opts.Provider.
func New(opts Options, log *zap.Logger) (*Suggester, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	var (
		name    = strings.ToLower(opts.Provider)
		backend completer
		err     error
	)
	switch name {
	case "claude", "anthropic":
		name = "claude"
		backend, err = newClaude(opts.Model, apiKey(opts.APIKey, "ANTHROPIC_API_KEY"))
	case "openai":
		backend, err = newOpenAI(opts.Model, apiKey(opts.APIKey, "OPENAI_API_KEY"))
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: claude, openai)", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &Suggester{name: name, backend: backend, timeout: opts.Timeout, log: log.Named("ai")}, nil
}

func apiKey(configured, env string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(env)
}

// SuggestValues asks the model for one value per field. Only non-empty
// answers for names that were asked about are returned.
func (s *Suggester) SuggestValues(ctx context.Context, fields []form.Field) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	if len(fields) == 0 {
		return out, nil
	}

	prompt, err := buildUserPrompt(fields)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	reply, err := s.backend.complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	values, err := parseValuesJSON(reply)
	if err != nil {
		s.log.Debug("Unusable reply", zap.String("reply", reply))
		return nil, fmt.Errorf("%s returned unusable values: %w", s.name, err)
	}
	for _, f := range fields {
		if v := strings.TrimSpace(values[f.Name]); v != "" {
			out[f.Name] = v
		}
	}
	s.log.Debug("Values suggested",
		zap.Int("asked", len(fields)),
		zap.Int("answered", len(out)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}
