// Package pipeline runs one transcription job: probe the recording,
// diarize its chunks concurrently, resolve speaker identities in chunk
// order, flatten the timeline and transcribe every segment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-minutes/internal/audio"
	"github.com/alnah/go-minutes/internal/diarize"
	"github.com/alnah/go-minutes/internal/identity"
	"github.com/alnah/go-minutes/internal/logging"
	"github.com/alnah/go-minutes/internal/metrics"
	"github.com/alnah/go-minutes/internal/textnorm"
	"github.com/alnah/go-minutes/internal/timeline"
	"github.com/alnah/go-minutes/internal/transcribe"
	"github.com/alnah/go-minutes/internal/transcript"
	"github.com/alnah/go-minutes/internal/voice"
)

// DefaultParallel bounds concurrent chunk diarizations. It matches the
// segment worker default so one setting drives both stages.
const DefaultParallel = transcript.DefaultParallel

// Prober reads the duration of a recording.
type Prober interface {
	Probe(ctx context.Context, path string) (audio.Handle, error)
}

// Slicer cuts clips into a job work directory that Close removes.
type Slicer interface {
	audio.ClipSlicer
	Close() error
}

// Services are the external collaborators of a job.
type Services struct {
	Diarizer    diarize.Service
	Comparer    voice.Comparer
	Transcriber transcribe.Transcriber
	Punctuator  textnorm.Punctuator // optional, default textnorm.Passthrough
	Segmenter   textnorm.Segmenter  // optional, default textnorm.RuleSegmenter
}

// Progress is told how many units of a stage are done.
// stage is metrics.StageDiarize or metrics.StageTranscribe.
type Progress func(stage string, done, total int)

// Result is the outcome of a job.
type Result struct {
	JobID        string
	Source       audio.Handle
	Chunks       int
	FailedChunks []int
	Speakers     []string
	Segments     []timeline.Segment
	Records      transcript.Records
}

// Job is the context of one run. It owns the work directory and the
// resolver state; Close releases both.
type Job struct {
	id string

	ffmpegPath     string
	slicer         Slicer
	prober         Prober
	svc            Services
	chunkDuration  time.Duration
	parallel       int
	threshold      float64
	segParallel    int
	transcribeOpts transcribe.Options
	progress       Progress
	logger         *log.Logger
	metrics        *metrics.Metrics

	resolver *identity.Resolver
}

// Option configures a Job.
type Option func(*Job)

// WithFFmpeg sets the FFmpeg binary used for probing and slicing.
func WithFFmpeg(path string) Option {
	return func(j *Job) { j.ffmpegPath = path }
}

// WithSlicer replaces the FFmpeg slicer.
func WithSlicer(s Slicer) Option {
	return func(j *Job) { j.slicer = s }
}

// WithProber replaces the FFmpeg prober.
func WithProber(p Prober) Option {
	return func(j *Job) { j.prober = p }
}

// WithChunkDuration sets the diarization chunk length.
func WithChunkDuration(d time.Duration) Option {
	return func(j *Job) { j.chunkDuration = d }
}

// WithParallel bounds concurrent chunk diarizations (minimum 1).
func WithParallel(n int) Option {
	return func(j *Job) { j.parallel = max(1, n) }
}

// WithSegmentParallel bounds concurrent segment transcriptions.
func WithSegmentParallel(n int) Option {
	return func(j *Job) { j.segParallel = n }
}

// WithThreshold sets the voice similarity threshold.
func WithThreshold(thr float64) Option {
	return func(j *Job) { j.threshold = thr }
}

// WithTranscribeOptions sets the prompt and language for transcription.
func WithTranscribeOptions(opts transcribe.Options) Option {
	return func(j *Job) { j.transcribeOpts = opts }
}

// WithProgress registers a progress callback.
func WithProgress(p Progress) Option {
	return func(j *Job) { j.progress = p }
}

// WithLogger sets the logger. The job adds a job=<id> key.
func WithLogger(l *log.Logger) Option {
	return func(j *Job) { j.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Job) { j.metrics = m }
}

// NewJob creates a job with a fresh id.
func NewJob(svc Services, opts ...Option) (*Job, error) {
	j := &Job{
		id:            uuid.NewString(),
		svc:           svc,
		chunkDuration: audio.DefaultChunkDuration,
		parallel:      DefaultParallel,
		threshold:     voice.DefaultThreshold,
		segParallel:   transcript.DefaultParallel,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = logging.OrDiscard(j.logger).With("job", j.id)

	if svc.Diarizer == nil || svc.Comparer == nil || svc.Transcriber == nil {
		return nil, ErrMissingService
	}
	if j.slicer == nil {
		if j.ffmpegPath == "" {
			return nil, ErrNoSlicer
		}
		j.slicer = audio.NewSlicer(j.ffmpegPath, audio.WithWorkDirPrefix("go-minutes-"+j.id[:8]))
	}
	if j.prober == nil {
		if j.ffmpegPath == "" {
			return nil, ErrNoSlicer
		}
		j.prober = audio.NewProber(j.ffmpegPath)
	}
	j.resolver = identity.NewResolver(j.slicer, svc.Comparer,
		identity.WithThreshold(j.threshold),
		identity.WithLogger(j.logger),
		identity.WithMetrics(j.metrics),
	)
	return j, nil
}

// ID returns the job id.
func (j *Job) ID() string {
	return j.id
}

// Close removes anchor clips and the work directory.
func (j *Job) Close() error {
	return errors.Join(j.resolver.Close(), j.slicer.Close())
}

// chunkOutcome is one chunk's diarization, delivered on its own slot.
type chunkOutcome struct {
	res diarize.Result
	err error
}

// Run processes the recording at path. Probe failures and cancellation
// before transcription are returned as errors. Once transcription starts,
// Run always returns a Result; cancellation shows up as marker records.
func (j *Job) Run(ctx context.Context, path string) (*Result, error) {
	src, err := j.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	partitioner, err := audio.NewPartitioner(j.chunkDuration)
	if err != nil {
		return nil, err
	}
	chunks := slices.Collect(partitioner.Partition(src))
	j.logger.Info("job started", "file", path, "duration", src.Duration, "chunks", len(chunks))

	failed, err := j.resolveChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	tl := j.resolver.Timeline()
	tl.Finalize()
	segs := timeline.Flatten(tl)
	j.logger.Info("timeline merged", "speakers", len(tl.Speakers()), "segments", len(segs))

	orch := transcript.NewOrchestrator(j.slicer, j.svc.Transcriber, j.orchestratorOptions(len(segs))...)
	records := orch.Run(ctx, src, segs)
	j.logger.Info("job finished", "records", len(records), "failed", records.Failed())

	return &Result{
		JobID:        j.id,
		Source:       src,
		Chunks:       len(chunks),
		FailedChunks: failed,
		Speakers:     j.resolver.Anchors(),
		Segments:     segs,
		Records:      records,
	}, nil
}

// resolveChunks diarizes chunks concurrently and feeds the results to the
// resolver strictly in chunk order. It returns the indexes of chunks whose
// diarization failed; those count as silent.
func (j *Job) resolveChunks(ctx context.Context, chunks []audio.Chunk) ([]int, error) {
	adapter := diarize.NewAdapter(j.svc.Diarizer, j.slicer, diarize.WithLogger(j.logger))

	slots := make([]chan chunkOutcome, len(chunks))
	for i := range slots {
		slots[i] = make(chan chunkOutcome, 1)
	}

	var g errgroup.Group
	g.SetLimit(j.parallel)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, chunk := range chunks {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					slots[i] <- chunkOutcome{err: err}
					return nil
				}
				start := time.Now()
				res, err := adapter.DiarizeChunk(ctx, chunk)
				j.metrics.ObserveStage(metrics.StageDiarize, time.Since(start))
				slots[i] <- chunkOutcome{res: res, err: err}
				return nil
			})
		}
	}()
	defer func() {
		<-launched
		_ = g.Wait()
	}()

	var failed []int
	for i, chunk := range chunks {
		out := <-slots[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if out.err != nil {
			j.logger.Warn("chunk diarization failed, treating as silent", "chunk", chunk.Index, "err", out.err)
			j.metrics.RecordChunk(false)
			failed = append(failed, chunk.Index)
			out.res = nil
		} else {
			j.metrics.RecordChunk(true)
		}

		assign, err := j.resolver.Resolve(ctx, chunk, out.res)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", chunk, err)
		}
		j.logger.Debug("chunk resolved", "chunk", chunk.Index, "assignment", assign)
		if j.progress != nil {
			j.progress(metrics.StageDiarize, i+1, len(chunks))
		}
	}
	return failed, nil
}

func (j *Job) orchestratorOptions(total int) []transcript.Option {
	opts := []transcript.Option{
		transcript.WithParallel(j.segParallel),
		transcript.WithTranscribeOptions(j.transcribeOpts),
		transcript.WithLogger(j.logger),
		transcript.WithMetrics(j.metrics),
	}
	if j.svc.Punctuator != nil {
		opts = append(opts, transcript.WithPunctuator(j.svc.Punctuator))
	}
	if j.svc.Segmenter != nil {
		opts = append(opts, transcript.WithSegmenter(j.svc.Segmenter))
	}
	if j.progress != nil {
		opts = append(opts, transcript.WithProgress(func(done, _ int) {
			j.progress(metrics.StageTranscribe, done, total)
		}))
	}
	return opts
}
