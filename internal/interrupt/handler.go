// Package interrupt turns SIGINT and SIGTERM into a two-step stop. The
// first signal cancels the job context so the records finished so far can
// still be written; a second signal inside the window exits at once.
package interrupt

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-minutes/internal/logging"
)

// Decision is what the caller should do after the job context was canceled.
type Decision int

const (
	// WritePartial keeps the records produced before the interrupt.
	WritePartial Decision = iota
	// Abort discards everything.
	Abort
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case WritePartial:
		return "WritePartial"
	case Abort:
		return "Abort"
	default:
		return fmt.Sprintf("Decision(%d)", d)
	}
}

// ExitCode is the process exit status after an interrupt (128 + SIGINT).
const ExitCode = 130

// DefaultWindow is how long a second signal still counts as an abort.
const DefaultWindow = 2 * time.Second

const abortMessage = "\nAborted."

// Handler watches for interrupt signals.
type Handler struct {
	mu          sync.Mutex
	first       time.Time
	interrupted bool
	stopped     bool

	cancel  context.CancelFunc
	aborted chan struct{}
	done    chan struct{}
	stopSig func()

	window time.Duration
	exit   func(int)
	now    func() time.Time
	stderr io.Writer
	logger *log.Logger
}

// Options holds the handler's dependencies. Zero fields get production
// defaults; Signals nil means no listener is started.
type Options struct {
	Signals <-chan os.Signal
	Window  time.Duration
	Exit    func(int)
	Now     func() time.Time
	// Stderr must be safe for concurrent writes.
	Stderr io.Writer
	Logger *log.Logger
}

// New listens for SIGINT and SIGTERM. The returned context is canceled on
// the first signal.
func New(parent context.Context, logger *log.Logger) (*Handler, context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	h, ctx := NewWithOptions(parent, Options{Signals: sigCh, Logger: logger})
	h.stopSig = func() { signal.Stop(sigCh) }
	return h, ctx
}

// NewWithOptions creates a handler with injected dependencies.
func NewWithOptions(parent context.Context, opts Options) (*Handler, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		cancel:  cancel,
		aborted: make(chan struct{}),
		done:    make(chan struct{}),
		stopSig: func() {},
		window:  opts.Window,
		exit:    opts.Exit,
		now:     opts.Now,
		stderr:  opts.Stderr,
		logger:  logging.OrDiscard(opts.Logger),
	}
	if h.window <= 0 {
		h.window = DefaultWindow
	}
	if h.exit == nil {
		h.exit = os.Exit
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.stderr == nil {
		h.stderr = os.Stderr
	}

	if opts.Signals != nil {
		go h.listen(opts.Signals)
	}
	return h, ctx
}

func (h *Handler) listen(sigCh <-chan os.Signal) {
	for {
		select {
		case <-h.done:
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			if h.handle(sig) {
				fmt.Fprintln(h.stderr, abortMessage)
				h.exit(ExitCode)
				return
			}
		}
	}
}

// handle records one signal and reports whether it is an abort.
func (h *Handler) handle(sig os.Signal) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	now := h.now()
	if !h.interrupted {
		h.interrupted = true
		h.first = now
		h.logger.Warn("interrupt received, finishing with partial transcript", "signal", sig)
		h.cancel()
		return false
	}
	if now.Sub(h.first) > h.window {
		h.logger.Debug("late interrupt ignored", "signal", sig)
		return false
	}
	select {
	case <-h.aborted:
	default:
		close(h.aborted)
	}
	return true
}

// Interrupted reports whether at least one signal arrived.
func (h *Handler) Interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// Decide blocks for what is left of the window after the first signal and
// returns Abort if a second one arrives meanwhile. Without an interrupt it
// returns WritePartial immediately. message is printed while waiting.
func (h *Handler) Decide(message string) Decision {
	h.mu.Lock()
	interrupted, first := h.interrupted, h.first
	h.mu.Unlock()

	if !interrupted {
		return WritePartial
	}
	select {
	case <-h.aborted:
		return Abort
	default:
	}

	remaining := h.window - h.now().Sub(first)
	if remaining <= 0 {
		return WritePartial
	}
	if message != "" {
		fmt.Fprintln(h.stderr, message)
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-h.aborted:
		return Abort
	case <-timer.C:
		return WritePartial
	}
}

// Stop releases the signal subscription. It is safe to call twice.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	h.stopSig()
	close(h.done)
	h.cancel()
}
