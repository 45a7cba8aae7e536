// Package textnorm restores punctuation in raw transcription output and
// splits it into one sentence per line.
package textnorm

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/alnah/go-minutes/internal/lang"
	"github.com/alnah/go-minutes/internal/llm"
)

// Punctuator restores punctuation and casing in unpunctuated text.
type Punctuator interface {
	Restore(ctx context.Context, text string) (string, error)
}

// Segmenter normalizes text into sentences, one per line.
type Segmenter interface {
	Segment(ctx context.Context, text string) (string, error)
}

var (
	_ Punctuator = (*ChatPunctuator)(nil)
	_ Punctuator = Passthrough{}
	_ Segmenter  = (*RuleSegmenter)(nil)
	_ Segmenter  = Passthrough{}
)

// Passthrough returns its input trimmed. It stands in for either stage
// when the transcription model already punctuates.
type Passthrough struct{}

// Restore implements Punctuator.
func (Passthrough) Restore(_ context.Context, text string) (string, error) {
	return strings.TrimSpace(text), nil
}

// Segment implements Segmenter.
func (Passthrough) Segment(_ context.Context, text string) (string, error) {
	return strings.TrimSpace(text), nil
}

// ---------------------------------------------------------------------------
// ChatPunctuator
// ---------------------------------------------------------------------------

const punctuatePrompt = `You restore punctuation in speech transcripts.

Rules:
- Add punctuation marks and sentence casing only
- Do not add, remove, translate or reorder words
- Do not fix grammar or wording
- Keep the original language
- Output only the punctuated text, with no commentary`

// ChatPunctuator restores punctuation with a chat model.
type ChatPunctuator struct {
	completer llm.Completer
	language  lang.Code
}

// PunctuatorOption configures a ChatPunctuator.
type PunctuatorOption func(*ChatPunctuator)

// WithLanguage tells the model which language the text is in.
func WithLanguage(c lang.Code) PunctuatorOption {
	return func(p *ChatPunctuator) { p.language = c }
}

// NewChatPunctuator creates a ChatPunctuator backed by completer.
func NewChatPunctuator(completer llm.Completer, opts ...PunctuatorOption) *ChatPunctuator {
	p := &ChatPunctuator{completer: completer}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Restore implements Punctuator. Empty input is returned without a call.
// The result must contain the same letters and digits as the input, so a
// model that rewrites the text yields ErrAltered.
func (p *ChatPunctuator) Restore(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	prompt := punctuatePrompt
	if !p.language.IsZero() {
		prompt = fmt.Sprintf("The text is in %s.\n\n%s", p.language.Name(), prompt)
	}

	out, err := p.completer.Complete(ctx, prompt, text)
	if err != nil {
		return "", fmt.Errorf("punctuation: %w", err)
	}
	if skeleton(out) != skeleton(text) {
		return "", fmt.Errorf("%w: %q", ErrAltered, truncate(out, 80))
	}
	return out, nil
}

// skeleton keeps lowercased letters and digits only.
func skeleton(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// ---------------------------------------------------------------------------
// RuleSegmenter
// ---------------------------------------------------------------------------

// RuleSegmenter splits text after sentence terminators. Latin terminators
// (. ! ?) end a sentence only when followed by whitespace or end of text,
// so decimals such as "3.5" stay intact. Full-width
// terminators (。！？) always end a sentence. Closing quotes and brackets
// stay with the sentence they close.
type RuleSegmenter struct{}

// NewRuleSegmenter creates a RuleSegmenter.
func NewRuleSegmenter() *RuleSegmenter {
	return &RuleSegmenter{}
}

// Segment implements Segmenter.
func (s *RuleSegmenter) Segment(_ context.Context, text string) (string, error) {
	return strings.Join(Sentences(text), "\n"), nil
}

// Sentences splits text into trimmed, non-empty sentences.
func Sentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var out []string
	start := 0

	flush := func(end int) {
		if sentence := strings.TrimSpace(string(runes[start:end])); sentence != "" {
			out = append(out, strings.Join(strings.Fields(sentence), " "))
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case isWideTerminator(r):
		case isLatinTerminator(r):
		default:
			continue
		}

		// Absorb runs like "?!" or "……" and trailing closers.
		j := i + 1
		for j < len(runes) && (isWideTerminator(runes[j]) || isLatinTerminator(runes[j]) || isCloser(runes[j])) {
			j++
		}
		if isLatinTerminator(r) && j < len(runes) && !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		flush(j)
		i = j - 1
	}
	flush(len(runes))
	return out
}

func isLatinTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isWideTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '…', '．':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '」', '』', '）', '】', '»':
		return true
	}
	return false
}
