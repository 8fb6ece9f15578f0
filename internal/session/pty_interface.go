package session

import "time"

// PTY abstracts the process side of a session. Both local PTYs and
// remote SSH PTYs satisfy it.
type PTY interface {
	// Write sends input bytes to the process.
	Write(b []byte) (int, error)

	// ReadAvailable reads whatever output is ready, waiting at most
	// wait for the first byte. No data within the wait is n == 0,
	// err == nil; io.EOF means the output stream has ended.
	ReadAvailable(buf []byte, wait time.Duration) (int, error)

	// Resize changes the PTY window size.
	Resize(rows, cols uint16) error

	// Alive reports whether the process has not yet exited.
	Alive() bool

	// Done is closed when the process has exited.
	Done() <-chan struct{}

	// ExitErr returns the exit error once Done is closed. nil means
	// a zero exit status.
	ExitErr() error

	// SignalTerm asks the process to exit.
	SignalTerm() error

	// Kill force-kills the process.
	Kill() error

	// Close releases the PTY without waiting for the process.
	Close() error
}

// Adapter consumes session output. A session fans every feed-loop
// delivery out to all attached adapters in attach order, on the feed
// loop goroutine with the session lock held. DeliverBytes,
// NotifyChanged, and NotifyResize must return quickly and must not
// call back into the session; queue or flag, do real work elsewhere.
type Adapter interface {
	// DeliverBytes receives the raw output bytes exactly as read from
	// the PTY. The slice is shared between adapters and must not be
	// modified; retaining it is fine.
	DeliverBytes(data []byte)

	// NotifyChanged signals that the screen buffer may have changed.
	NotifyChanged()

	// NotifyResize signals a geometry change.
	NotifyResize(rows, cols int)

	// Shutdown tells the adapter the session has ended. Called once,
	// after the final delivery.
	Shutdown()
}
