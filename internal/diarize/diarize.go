// Package diarize answers "who spoke when" inside a single chunk.
//
// A Service is the external collaborator (a speaker diarization model
// behind HTTP). The Adapter normalizes whatever the service returns into a
// Result keyed by the chunk-local speaker label, each list sorted by start.
// Labels are only meaningful within one chunk.
package diarize

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-minutes/internal/audio"
	"github.com/alnah/go-minutes/internal/logging"
)

// LocalInterval is one speaking turn, relative to the start of its chunk.
type LocalInterval struct {
	Start   time.Duration
	End     time.Duration
	Speaker string
}

// Service diarizes an audio file. Intervals are chunk-relative and come in
// no particular order.
type Service interface {
	Diarize(ctx context.Context, audioPath string) ([]LocalInterval, error)
}

// Result maps a chunk-local speaker label to its intervals sorted by start.
// An empty Result means no speech.
type Result map[string][]LocalInterval

// Speakers returns the local labels ordered by their first interval start,
// label as tie-break. This is the iteration order used for identity
// resolution, so it must not depend on map order.
func (r Result) Speakers() []string {
	ids := make([]string, 0, len(r))
	for id, ivs := range r {
		if len(ivs) > 0 {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(r[a][0].Start, r[b][0].Start); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

// Intervals returns the total number of intervals.
func (r Result) Intervals() int {
	n := 0
	for _, ivs := range r {
		n += len(ivs)
	}
	return n
}

// group builds a Result from raw intervals, dropping empty ones.
func group(raw []LocalInterval) Result {
	res := make(Result)
	for _, iv := range raw {
		if iv.End <= iv.Start {
			continue
		}
		res[iv.Speaker] = append(res[iv.Speaker], iv)
	}
	for _, ivs := range res {
		slices.SortStableFunc(ivs, func(a, b LocalInterval) int {
			return cmp.Compare(a.Start, b.Start)
		})
	}
	return res
}

// ---------------------------------------------------------------------------
// Adapter
// ---------------------------------------------------------------------------

// Adapter wraps a Service and produces normalized per-chunk results.
type Adapter struct {
	svc    Service
	slicer audio.ClipSlicer
	logger *log.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates an Adapter. slicer materializes chunk files for
// DiarizeChunk and may be nil when only Diarize is used.
func NewAdapter(svc Service, slicer audio.ClipSlicer, opts ...AdapterOption) *Adapter {
	a := &Adapter{svc: svc, slicer: slicer}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDiscard(a.logger)
	return a
}

// Diarize runs the service on audioPath and groups the intervals by speaker.
// No speech yields an empty Result and no error.
func (a *Adapter) Diarize(ctx context.Context, audioPath string) (Result, error) {
	raw, err := a.svc.Diarize(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	return group(raw), nil
}

// DiarizeChunk cuts chunk out of its source recording, diarizes it and
// removes the temporary chunk file before returning.
func (a *Adapter) DiarizeChunk(ctx context.Context, chunk audio.Chunk) (Result, error) {
	if a.slicer == nil {
		return nil, fmt.Errorf("diarize %s: no slicer configured", chunk)
	}

	clip, err := a.slicer.Slice(ctx, chunk.Source, chunk.Offset, chunk.End())
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", chunk, err)
	}
	defer func() {
		if err := clip.Remove(); err != nil {
			a.logger.Warn("chunk file not removed", "chunk", chunk.Index, "err", err)
		}
	}()

	res, err := a.Diarize(ctx, clip.Path)
	if err != nil {
		return nil, fmt.Errorf("diarize %s: %w", chunk, err)
	}
	a.logger.Debug("chunk diarized", "chunk", chunk.Index, "speakers", len(res), "intervals", res.Intervals())
	return res, nil
}
