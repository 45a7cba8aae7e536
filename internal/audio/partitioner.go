package audio

import (
	"fmt"
	"iter"
	"time"
)

// DefaultChunkDuration is the chunk length used when none is configured.
const DefaultChunkDuration = 20 * time.Minute

// Partitioner splits a recording into consecutive fixed-duration chunks.
type Partitioner struct {
	chunkDuration time.Duration
}

// NewPartitioner creates a Partitioner for the given chunk duration.
func NewPartitioner(chunkDuration time.Duration) (*Partitioner, error) {
	if chunkDuration <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidChunkDuration, chunkDuration)
	}
	return &Partitioner{chunkDuration: chunkDuration}, nil
}

// ChunkDuration returns the configured chunk length.
func (p *Partitioner) ChunkDuration() time.Duration {
	return p.chunkDuration
}

// Count returns the number of chunks Partition yields for h.
func (p *Partitioner) Count(h Handle) int {
	if h.Duration <= 0 {
		return 0
	}
	n := h.Duration / p.chunkDuration
	if h.Duration%p.chunkDuration != 0 {
		n++
	}
	return int(n)
}

// Partition lazily yields the chunks covering h in order. Chunk i starts at
// i*d and lasts min(d, remaining). The sequence is empty for a zero-length
// recording and can be ranged over any number of times with the same result.
func (p *Partitioner) Partition(h Handle) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for i := 0; ; i++ {
			offset := time.Duration(i) * p.chunkDuration
			if offset >= h.Duration {
				return
			}
			c := Chunk{
				Index:    i,
				Source:   h,
				Offset:   offset,
				Duration: min(p.chunkDuration, h.Duration-offset),
			}
			if !yield(c) {
				return
			}
		}
	}
}
