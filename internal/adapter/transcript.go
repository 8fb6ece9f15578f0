// Package adapter implements the output consumers a session fans out
// to: a chat transcript tail, a live screen snapshot, a raw byte
// stream for connected terminals, and an asciicast recording.
package adapter

import (
	"bytes"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/acolita/termgate/internal/adapters/realclock"
	"github.com/acolita/termgate/internal/ports"
)

// TranscriptSink receives transcript chunks, typically a chat message
// send. Chunks arrive in order; their concatenation is the exact byte
// stream the session produced.
type TranscriptSink interface {
	SendChunk(text string) error
}

// Transcript buffers raw session output and flushes it to a sink on a
// cadence, split into chunks no larger than the sink's limit. Cuts
// prefer to land just after a newline so chunks read as whole lines.
type Transcript struct {
	sink          TranscriptSink
	maxChunk      int
	flushInterval time.Duration
	clock         ports.Clock
	logger        *slog.Logger

	mu  sync.Mutex
	buf bytes.Buffer

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// TranscriptOptions configures a transcript adapter.
type TranscriptOptions struct {
	MaxChunkBytes int
	FlushInterval time.Duration
	Clock         ports.Clock
	Logger        *slog.Logger
}

// NewTranscript starts the flush loop.
func NewTranscript(sink TranscriptSink, opts TranscriptOptions) *Transcript {
	if opts.MaxChunkBytes == 0 {
		opts.MaxChunkBytes = 4000
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = 200 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	t := &Transcript{
		sink:          sink,
		maxChunk:      opts.MaxChunkBytes,
		flushInterval: opts.FlushInterval,
		clock:         opts.Clock,
		logger:        opts.Logger,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go t.flushLoop()
	return t
}

// DeliverBytes buffers output for the next flush.
func (t *Transcript) DeliverBytes(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(data)
}

// NotifyChanged is not used; the transcript follows raw bytes.
func (t *Transcript) NotifyChanged() {}

// NotifyResize is not used; geometry does not affect the byte stream.
func (t *Transcript) NotifyResize(rows, cols int) {}

// Shutdown flushes the remaining buffer and stops the flush loop.
func (t *Transcript) Shutdown() {
	t.stopOnce.Do(func() {
		close(t.stop)
		<-t.done
		t.Flush()
	})
}

func (t *Transcript) flushLoop() {
	defer close(t.done)
	ticker := t.clock.NewTicker(t.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C():
			t.Flush()
		}
	}
}

// Flush sends everything buffered so far. On a sink error, the unsent
// remainder is kept, in order, for the next flush.
func (t *Transcript) Flush() {
	t.mu.Lock()
	if t.buf.Len() == 0 {
		t.mu.Unlock()
		return
	}
	pending := make([]byte, t.buf.Len())
	copy(pending, t.buf.Bytes())
	t.buf.Reset()
	t.mu.Unlock()

	for len(pending) > 0 {
		chunk := cutChunk(pending, t.maxChunk)
		if err := t.sink.SendChunk(string(chunk)); err != nil {
			t.logger.Warn("transcript send failed, buffering", "error", err)
			t.mu.Lock()
			// Output delivered while we were sending comes after the
			// failed remainder.
			trailing := make([]byte, t.buf.Len())
			copy(trailing, t.buf.Bytes())
			t.buf.Reset()
			t.buf.Write(pending)
			t.buf.Write(trailing)
			t.mu.Unlock()
			return
		}
		pending = pending[len(chunk):]
	}
}

// cutChunk returns the next chunk of at most max bytes. When the data
// does not fit, the cut lands just after the last newline inside the
// window; without one it backs off to a rune boundary. The newline, if
// any, stays in the chunk so concatenating all chunks reproduces the
// stream exactly.
func cutChunk(data []byte, max int) []byte {
	if len(data) <= max {
		return data
	}
	window := data[:max]
	if idx := bytes.LastIndexByte(window, '\n'); idx >= 0 {
		return data[:idx+1]
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	if cut == 0 {
		cut = max
	}
	return data[:cut]
}
