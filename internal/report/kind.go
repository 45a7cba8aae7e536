package report

import (
	"fmt"
	"slices"
)

// Report kind names.
const (
	General = "general"
	Concise = "concise"
)

// Kind is a validated report kind. The zero value means "no report".
type Kind struct {
	name string
}

// Pre-parsed kinds.
var (
	GeneralKind = Kind{name: General}
	ConciseKind = Kind{name: Concise}
)

// kindOrder is the order used in help text and error messages.
var kindOrder = []string{General, Concise}

var prompts = map[string]string{
	General: generalPrompt,
	Concise: concisePrompt,
}

// ParseKind validates a report kind name.
func ParseKind(s string) (Kind, error) {
	if _, ok := prompts[s]; !ok {
		return Kind{}, fmt.Errorf("%w %q (valid: %v)", ErrUnknownKind, s, kindOrder)
	}
	return Kind{name: s}, nil
}

// Kinds returns the available kind names.
func Kinds() []string {
	return slices.Clone(kindOrder)
}

// String returns the kind name, or "" for the zero value.
func (k Kind) String() string {
	return k.name
}

// IsZero reports whether no kind is set.
func (k Kind) IsZero() bool {
	return k.name == ""
}

// Prompt returns the system prompt for k.
// Panics if called on zero value.
func (k Kind) Prompt() string {
	if k.name == "" {
		panic("report.Kind.Prompt called on zero value")
	}
	return prompts[k.name]
}

// Prompts are written in English. For other output languages a
// "Respond in <language>" instruction is prepended.

const generalPrompt = `You write meeting minutes in markdown from a speaker-labeled transcript.
Each transcript line reads "HH:MM:SS-HH:MM:SS, speaker: text".

Rules:
- H1 title: meeting subject
- "Meeting Information" section: time, place and participants from the header, if given
- "Summary" section: one short paragraph
- "Discussion" section: H2 per topic, attributing positions to speakers
- "Decisions" section: decisions made (omit if none)
- "Action Items" section: format "- [ ] Action (Owner, Deadline)" if mentioned
- Refer to speakers by the names used in the transcript
- Ignore lines marked [ERROR: ...]
- Correct obvious transcription errors
- Do not alter meaning, do not invent anything
- No table of contents`

const concisePrompt = `You write a concise outline of a meeting in markdown from a speaker-labeled transcript.
Each transcript line reads "HH:MM:SS-HH:MM:SS, speaker: text".

Rules:
- H1 title: meeting subject
- One line with time and place from the header, if given
- "Key Points" section: at most 10 bullets, one fact per bullet
- "Decisions" section: bullets (omit if none)
- "Next Steps" section: bullets with owners if mentioned (omit if none)
- Ignore lines marked [ERROR: ...]
- No prose paragraphs, no quotes
- Do not alter meaning, do not invent anything`
