// Package report generates meeting minutes from a finished transcript with
// a chat model.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-minutes/internal/lang"
	"github.com/alnah/go-minutes/internal/llm"
	"github.com/alnah/go-minutes/internal/logging"
	"github.com/alnah/go-minutes/internal/metrics"
)

// Temperature is the sampling temperature recommended for reports.
const Temperature = 0.1

// Meeting holds optional metadata placed above the transcript.
type Meeting struct {
	Time         string
	Place        string
	Participants []string
}

// Header renders the non-empty fields, one per line.
func (m Meeting) Header() string {
	var b strings.Builder
	if m.Time != "" {
		fmt.Fprintf(&b, "Meeting time: %s\n", m.Time)
	}
	if m.Place != "" {
		fmt.Fprintf(&b, "Meeting place: %s\n", m.Place)
	}
	if len(m.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(m.Participants, ", "))
	}
	return b.String()
}

// Generator produces reports through an llm.Completer.
type Generator struct {
	completer llm.Completer
	language  lang.Code
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithOutputLanguage sets the report language. The zero Code and English
// leave the prompt untouched.
func WithOutputLanguage(c lang.Code) Option {
	return func(g *Generator) { g.language = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a Generator.
func NewGenerator(completer llm.Completer, opts ...Option) *Generator {
	g := &Generator{completer: completer}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrDiscard(g.logger)
	return g
}

// Generate writes a report of the given kind for transcript.
func (g *Generator) Generate(ctx context.Context, kind Kind, meeting Meeting, transcript string) (string, error) {
	if kind.IsZero() {
		return "", fmt.Errorf("report kind not set: %w", ErrUnknownKind)
	}
	if strings.TrimSpace(transcript) == "" {
		return "", ErrEmptyTranscript
	}

	start := time.Now()
	defer func() { g.metrics.ObserveStage(metrics.StageReport, time.Since(start)) }()

	g.logger.Info("generating report", "kind", kind, "lang", g.language)
	out, err := g.completer.Complete(ctx, g.systemPrompt(kind), UserPrompt(meeting, transcript))
	if err != nil {
		return "", fmt.Errorf("%s report: %w", kind, err)
	}
	return out, nil
}

func (g *Generator) systemPrompt(kind Kind) string {
	prompt := kind.Prompt()
	if !g.language.IsZero() && g.language.Base() != "en" {
		prompt = fmt.Sprintf("Respond in %s.\n\n%s", g.language.Name(), prompt)
	}
	return prompt
}

// UserPrompt joins the meeting header and the transcript.
func UserPrompt(meeting Meeting, transcript string) string {
	header := meeting.Header()
	if header == "" {
		return transcript
	}
	return header + "\n" + transcript
}
