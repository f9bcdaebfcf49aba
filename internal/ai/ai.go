// Package ai drafts human-readable release notes from a commit log
// using the Anthropic API. It is strictly optional: callers fall back
// to template rendering when no API key is configured.
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// ErrNoAPIKey indicates ANTHROPIC_API_KEY is not set.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY is not set")

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1500
	requestTimeout   = 60 * time.Second
)

// Writer drafts release notes via the Anthropic messages API.
type Writer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// Option configures a Writer.
type Option func(*Writer)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(w *Writer) {
		if model != "" {
			w.model = model
		}
	}
}

// NewWriter creates a Writer. It fails fast when no API key is
// available so callers can fall back before composing a prompt.
func NewWriter(opts ...Option) (*Writer, error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil, ErrNoAPIKey
	}
	w := &Writer{
		client:    anthropic.NewClient(),
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NotesInput describes the release being summarized.
type NotesInput struct {
	Package    string
	Version    string
	Previous   string
	CommitLog  []string // conventional commit subjects, one per line
	Highlights []string // optional manual notes to weave in
}

// Draft produces Markdown release notes for the given input.
func (w *Writer) Draft(ctx context.Context, in NotesInput) (string, error) {
	if len(in.CommitLog) == 0 {
		return "", fmt.Errorf("no commits to summarize")
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	msg, err := w.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(w.model),
		MaxTokens: w.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: "You are a release engineer writing concise, accurate release notes for an npm package. Output Markdown only. Group changes under Added, Changed, Fixed, and Removed headings; omit empty headings. Never invent changes that are not in the commit log."},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(in))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("draft release notes: %w", err)
	}

	var b strings.Builder
	for _, blk := range msg.Content {
		switch block := blk.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

func buildPrompt(in NotesInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write release notes for %s %s", in.Package, in.Version)
	if in.Previous != "" {
		fmt.Fprintf(&b, " (previous release: %s)", in.Previous)
	}
	b.WriteString(".\n\nCommit log:\n")
	for _, line := range in.CommitLog {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	if len(in.Highlights) > 0 {
		b.WriteString("\nManual highlights to include:\n")
		for _, h := range in.Highlights {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	return b.String()
}
