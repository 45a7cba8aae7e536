// Package transcript transcribes the flattened speaker timeline segment by
// segment and renders the resulting records.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-minutes/internal/audio"
	"github.com/alnah/go-minutes/internal/logging"
	"github.com/alnah/go-minutes/internal/metrics"
	"github.com/alnah/go-minutes/internal/textnorm"
	"github.com/alnah/go-minutes/internal/timeline"
	"github.com/alnah/go-minutes/internal/transcribe"
)

// DefaultParallel is the default number of segments transcribed at once.
const DefaultParallel = 4

// Record is one transcribed segment. When Err is set, Text holds the
// "[ERROR: <cause>]" marker instead of speech.
type Record struct {
	Start   time.Duration
	End     time.Duration
	Speaker string
	Text    string
	Err     error
}

// Records is an ordered transcript.
type Records []Record

// Failed returns the number of records carrying an error marker.
func (rs Records) Failed() int {
	n := 0
	for _, r := range rs {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// ErrorMarker renders err as it appears in place of a segment's text.
func ErrorMarker(err error) string {
	return fmt.Sprintf("[ERROR: %v]", err)
}

// Orchestrator slices, transcribes and normalizes timeline segments.
type Orchestrator struct {
	slicer      audio.ClipSlicer
	transcriber transcribe.Transcriber
	punctuator  textnorm.Punctuator
	segmenter   textnorm.Segmenter
	opts        transcribe.Options
	parallel    int
	logger      *log.Logger
	metrics     *metrics.Metrics
	onProgress  func(done, total int)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParallel bounds concurrent segments, clamped to
// 1..transcribe.MaxRecommendedParallel.
func WithParallel(n int) Option {
	return func(o *Orchestrator) {
		o.parallel = max(1, min(n, transcribe.MaxRecommendedParallel))
	}
}

// WithPunctuator sets the punctuation stage. Default: textnorm.Passthrough.
func WithPunctuator(p textnorm.Punctuator) Option {
	return func(o *Orchestrator) { o.punctuator = p }
}

// WithSegmenter sets the sentence segmentation stage. Default: RuleSegmenter.
func WithSegmenter(s textnorm.Segmenter) Option {
	return func(o *Orchestrator) { o.segmenter = s }
}

// WithTranscribeOptions sets the options passed to every Transcribe call.
func WithTranscribeOptions(opts transcribe.Options) Option {
	return func(o *Orchestrator) { o.opts = opts }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProgress registers a callback invoked after each finished segment.
// Calls are serialized.
func WithProgress(fn func(done, total int)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(slicer audio.ClipSlicer, t transcribe.Transcriber, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		slicer:      slicer,
		transcriber: t,
		punctuator:  textnorm.Passthrough{},
		segmenter:   textnorm.NewRuleSegmenter(),
		parallel:    DefaultParallel,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrDiscard(o.logger)
	return o
}

// Run transcribes segs of src. It never fails: a segment whose slicing,
// transcription or normalization fails yields a marker record, and on
// cancellation every unfinished segment does. The result has one record
// per segment, in segment order.
func (o *Orchestrator) Run(ctx context.Context, src audio.Handle, segs []timeline.Segment) Records {
	records := make(Records, len(segs))
	if len(segs) == 0 {
		return records
	}

	sem := make(chan struct{}, o.parallel)
	progress := make(chan struct{}, len(segs))
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		done := 0
		for range progress {
			done++
			if o.onProgress != nil {
				o.onProgress(done, len(segs))
			}
		}
	}()

	// Workers report failures in their record, never through the group.
	var g errgroup.Group
	for i, seg := range segs {
		g.Go(func() error {
			defer func() { progress <- struct{}{} }()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				records[i] = o.record(seg, "", ctx.Err())
				return nil
			}
			defer func() { <-sem }()

			text, err := o.process(ctx, src, seg)
			if err != nil && ctx.Err() != nil {
				err = ctx.Err()
			}
			records[i] = o.record(seg, text, err)
			return nil
		})
	}
	_ = g.Wait()
	close(progress)
	<-progressDone

	return records
}

func (o *Orchestrator) record(seg timeline.Segment, text string, err error) Record {
	r := Record{Start: seg.Start, End: seg.End, Speaker: seg.Speaker, Text: text}
	if err != nil {
		r.Err = err
		r.Text = ErrorMarker(err)
		o.logger.Warn("segment failed", "segment", seg, "err", err)
	}
	o.metrics.RecordSegment(err == nil)
	return r
}

func (o *Orchestrator) process(ctx context.Context, src audio.Handle, seg timeline.Segment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()
	defer func() { o.metrics.ObserveStage(metrics.StageTranscribe, time.Since(start)) }()

	clip, err := o.slicer.Slice(ctx, src, seg.Start, seg.End)
	if err != nil {
		return "", fmt.Errorf("slice: %w", err)
	}
	defer func() {
		if err := clip.Remove(); err != nil {
			o.logger.Warn("failed to remove segment clip", "err", err)
		}
	}()

	raw, err := o.transcriber.Transcribe(ctx, clip.Path, o.opts)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	punctuated, err := o.punctuator.Restore(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("punctuate: %w", err)
	}
	text, err := o.segmenter.Segment(ctx, punctuated)
	if err != nil {
		return "", fmt.Errorf("segment: %w", err)
	}
	o.logger.Debug("segment transcribed", "segment", seg, "chars", len(text))
	return text, nil
}
