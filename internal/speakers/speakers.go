// Package speakers loads the optional TOML file that names global speaker
// ids and describes the meeting:
//
//	[meeting]
//	time = "2025-03-01 10:00"
//	place = "Room 4"
//
//	[names]
//	speaker0 = "Alice"
//	speaker1 = "Bob"
package speakers

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/alnah/go-minutes/internal/report"
	"github.com/alnah/go-minutes/internal/transcript"
)

var (
	// ErrNotFound indicates the speakers file does not exist.
	ErrNotFound = errors.New("speakers file not found")

	// ErrUnknownKey indicates a key the file format does not define.
	ErrUnknownKey = errors.New("unknown key in speakers file")
)

// File is the decoded speakers file.
type File struct {
	Meeting struct {
		Time         string   `toml:"time"`
		Place        string   `toml:"place"`
		Participants []string `toml:"participants"`
	} `toml:"meeting"`
	Names map[string]string `toml:"names"`
}

// Load decodes the file at path.
func Load(path string) (*File, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat speakers file %s: %w", path, err)
	}

	var f File
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse speakers file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(keys, ", "))
	}
	return &f, nil
}

// TranscriptNames returns the id to name mapping. A nil File yields nil.
func (f *File) TranscriptNames() transcript.Names {
	if f == nil {
		return nil
	}
	return transcript.Names(f.Names)
}

// ReportMeeting returns the meeting metadata. When no participants are
// listed, the distinct names are used, sorted.
func (f *File) ReportMeeting() report.Meeting {
	if f == nil {
		return report.Meeting{}
	}
	m := report.Meeting{
		Time:         f.Meeting.Time,
		Place:        f.Meeting.Place,
		Participants: slices.Clone(f.Meeting.Participants),
	}
	if len(m.Participants) == 0 {
		for _, name := range f.Names {
			if name != "" && !slices.Contains(m.Participants, name) {
				m.Participants = append(m.Participants, name)
			}
		}
		slices.Sort(m.Participants)
	}
	return m
}
