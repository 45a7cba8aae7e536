package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alnah/go-minutes/internal/format"
)

// Names maps global speaker ids to display names. Unknown ids render as-is.
type Names map[string]string

// Display returns the name for id.
func (n Names) Display(id string) string {
	if name, ok := n[id]; ok && name != "" {
		return name
	}
	return id
}

// Line renders the record header and text:
//
//	00:01:05-00:01:42, speaker0: First sentence.
//	Second sentence.
//
// Sentences after the first continue on their own lines.
func (r Record) Line(names Names) string {
	return fmt.Sprintf("%s-%s, %s: %s", format.Clock(r.Start), format.Clock(r.End), names.Display(r.Speaker), r.Text)
}

// Format renders records one per line in order.
func Format(records Records, names Names) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.Line(names))
		b.WriteByte('\n')
	}
	return b.String()
}

type jsonRecord struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
	Name    string  `json:"name,omitempty"`
	Text    string  `json:"text"`
	Error   string  `json:"error,omitempty"`
}

// WriteJSON writes records as an indented JSON array with times in seconds.
func WriteJSON(w io.Writer, records Records, names Names) error {
	out := make([]jsonRecord, len(records))
	for i, r := range records {
		out[i] = jsonRecord{
			Start:   r.Start.Seconds(),
			End:     r.End.Seconds(),
			Speaker: r.Speaker,
			Text:    r.Text,
		}
		if name := names.Display(r.Speaker); name != r.Speaker {
			out[i].Name = name
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Preview shows up to n records per speaker, speakers in order of first
// appearance, so a reader can check who is who before naming speakers.
func Preview(records Records, names Names, n int) string {
	var order []string
	bySpeaker := make(map[string][]Record)
	for _, r := range records {
		shown, seen := bySpeaker[r.Speaker]
		if !seen {
			order = append(order, r.Speaker)
		}
		if len(shown) < n {
			shown = append(shown, r)
		}
		bySpeaker[r.Speaker] = shown
	}

	var b strings.Builder
	for _, id := range order {
		fmt.Fprintf(&b, "=== %s ===\n", names.Display(id))
		for _, r := range bySpeaker[id] {
			text, _, _ := strings.Cut(r.Text, "\n")
			fmt.Fprintf(&b, "[%s-%s] %s\n", format.Clock(r.Start), format.Clock(r.End), text)
		}
	}
	return b.String()
}
