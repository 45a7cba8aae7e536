// Package identity links chunk-local speaker labels to global speaker ids.
//
// Every global id has an anchor: a short clip of that speaker taken from
// the first interval where the id was created. Each new chunk's speakers
// are compared against the anchors that existed before the chunk, in
// creation order, and take the first match; unmatched speakers become new
// ids. One short clip per speaker per chunk can split a real speaker into
// several global ids; that trade-off is accepted.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-minutes/internal/audio"
	"github.com/alnah/go-minutes/internal/diarize"
	"github.com/alnah/go-minutes/internal/logging"
	"github.com/alnah/go-minutes/internal/metrics"
	"github.com/alnah/go-minutes/internal/timeline"
	"github.com/alnah/go-minutes/internal/voice"
)

// IDPrefix prefixes every global speaker id.
const IDPrefix = "speaker"

// Anchor is the reference voice for one global id. Clip is zero when the
// representative clip could not be cut; such an anchor never matches.
type Anchor struct {
	ID    string
	Clip  audio.Clip
	Chunk int
}

// Assignment maps a chunk's local labels to global ids.
type Assignment map[string]string

// Resolver owns the anchors and the timeline for one job. It is driven by
// a single goroutine and is not safe for concurrent use.
type Resolver struct {
	slicer    audio.ClipSlicer
	comparer  voice.Comparer
	threshold float64
	logger    *log.Logger
	metrics   *metrics.Metrics

	anchors  []Anchor
	timeline *timeline.Timeline
	next     int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold sets the similarity threshold passed to the comparer.
func WithThreshold(thr float64) Option {
	return func(r *Resolver) { r.threshold = thr }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver with no anchors.
func NewResolver(slicer audio.ClipSlicer, comparer voice.Comparer, opts ...Option) *Resolver {
	r := &Resolver{
		slicer:    slicer,
		comparer:  comparer,
		threshold: voice.DefaultThreshold,
		timeline:  timeline.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

// candidate is a local speaker of the chunk being resolved.
type candidate struct {
	local  string
	clip   audio.Clip
	global string
	anchor bool // clip was promoted to an anchor
}

// Resolve assigns global ids to the local speakers of chunk and appends
// their intervals, shifted by the chunk offset, to the timeline.
//
// Comparison errors and clip failures count as "no match". The only error
// returned is ctx's, in which case nothing from this chunk is recorded.
func (r *Resolver) Resolve(ctx context.Context, chunk audio.Chunk, res diarize.Result) (Assignment, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveStage(metrics.StageResolve, time.Since(start)) }()

	// Only anchors from earlier chunks are eligible; speakers of this chunk
	// never match each other. Anchors for this chunk are created after all
	// of its speakers have been matched.
	known := len(r.anchors)

	var cands []*candidate
	defer func() {
		for _, c := range cands {
			if !c.anchor {
				r.removeClip(c.clip)
			}
		}
	}()

	for _, local := range res.Speakers() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := &candidate{local: local}
		cands = append(cands, c)
		c.clip = r.representative(ctx, chunk, local, res[local][0])

		id, err := r.match(ctx, chunk.Index, c, known)
		if err != nil {
			return nil, err
		}
		c.global = id
	}

	assign := make(Assignment, len(cands))
	for _, c := range cands {
		if c.global == "" {
			c.global = r.newAnchor(chunk.Index, c)
		}
		assign[c.local] = c.global

		ivs := make([]timeline.Interval, 0, len(res[c.local]))
		for _, iv := range res[c.local] {
			ivs = append(ivs, timeline.Interval{Start: chunk.Offset + iv.Start, End: chunk.Offset + iv.End})
		}
		r.timeline.Append(c.global, ivs...)
	}
	return assign, nil
}

// representative cuts the clip for a speaker's first interval. A failure is
// logged and yields a zero clip.
func (r *Resolver) representative(ctx context.Context, chunk audio.Chunk, local string, first diarize.LocalInterval) audio.Clip {
	clip, err := r.slicer.Slice(ctx, chunk.Source, chunk.Offset+first.Start, chunk.Offset+first.End)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("representative clip failed", "chunk", chunk.Index, "local", local, "err", err)
		}
		return audio.Clip{}
	}
	return clip
}

// match scans the first known anchors in creation order and returns the
// first matching id, or "" when none matches.
func (r *Resolver) match(ctx context.Context, chunkIdx int, c *candidate, known int) (string, error) {
	if c.clip.IsZero() {
		if known > 0 {
			r.metrics.RecordComparison(metrics.OutcomeNoClip)
		}
		return "", nil
	}

	for _, a := range r.anchors[:known] {
		if a.Clip.IsZero() {
			continue
		}
		same, err := r.comparer.Compare(ctx, a.Clip.Path, c.clip.Path, r.threshold)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			r.metrics.RecordComparison(metrics.OutcomeError)
			r.logger.Warn("voice comparison failed, treating as no match",
				"chunk", chunkIdx, "local", c.local, "anchor", a.ID, "err", err)
			continue
		}
		if same {
			r.metrics.RecordComparison(metrics.OutcomeMatch)
			r.logger.Debug("speaker matched", "chunk", chunkIdx, "local", c.local, "global", a.ID)
			return a.ID, nil
		}
		r.metrics.RecordComparison(metrics.OutcomeNoMatch)
	}
	return "", nil
}

func (r *Resolver) newAnchor(chunkIdx int, c *candidate) string {
	id := fmt.Sprintf("%s%d", IDPrefix, r.next)
	r.next++
	r.anchors = append(r.anchors, Anchor{ID: id, Clip: c.clip, Chunk: chunkIdx})
	c.anchor = true
	r.metrics.RecordAnchor()
	r.logger.Info("new speaker", "chunk", chunkIdx, "local", c.local, "global", id, "anchor", !c.clip.IsZero())
	return id
}

func (r *Resolver) removeClip(c audio.Clip) {
	if err := c.Remove(); err != nil {
		r.logger.Warn("temporary clip not removed", "path", c.Path, "err", err)
	}
}

// Anchors returns global ids in creation order.
func (r *Resolver) Anchors() []string {
	ids := make([]string, len(r.anchors))
	for i, a := range r.anchors {
		ids[i] = a.ID
	}
	return ids
}

// Timeline returns the accumulated timeline. Ownership passes to the
// caller once resolution is over.
func (r *Resolver) Timeline() *timeline.Timeline {
	return r.timeline
}

// Close removes every anchor clip. The timeline stays usable.
func (r *Resolver) Close() error {
	for i := range r.anchors {
		r.removeClip(r.anchors[i].Clip)
		r.anchors[i].Clip = audio.Clip{}
	}
	return nil
}
