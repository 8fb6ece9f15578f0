package adapter

import (
	"log/slog"

	"github.com/acolita/termgate/internal/recording"
)

// Recording persists session output to an asciicast v2 file.
type Recording struct {
	rec    *recording.Recorder
	logger *slog.Logger
}

// NewRecording wraps an open recorder.
func NewRecording(rec *recording.Recorder, logger *slog.Logger) *Recording {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recording{rec: rec, logger: logger}
}

// DeliverBytes appends an output event.
func (r *Recording) DeliverBytes(data []byte) {
	if err := r.rec.RecordOutput(string(data)); err != nil {
		r.logger.Warn("recording write failed", "error", err)
	}
}

// NotifyChanged is not used; the recording follows raw bytes.
func (r *Recording) NotifyChanged() {}

// NotifyResize appends a resize event.
func (r *Recording) NotifyResize(rows, cols int) {
	if err := r.rec.RecordResize(rows, cols); err != nil {
		r.logger.Warn("recording resize failed", "error", err)
	}
}

// Shutdown closes the recording file.
func (r *Recording) Shutdown() {
	if err := r.rec.Close(); err != nil {
		r.logger.Warn("recording close failed", "error", err)
	}
}
