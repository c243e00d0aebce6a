// Package transcription submits media to a speech-to-text vendor and
// correlates asynchronous results back to videos.
package transcription

import (
	"context"
	"fmt"
)

// Mode selects how completion is observed.
type Mode string

const (
	// ModePoll blocks the background task until the vendor reports a terminal state.
	ModePoll Mode = "poll"
	// ModeWebhook returns after submission; the vendor calls back later.
	ModeWebhook Mode = "webhook"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModePoll || m == ModeWebhook }

// Outcome is the result of a submission. When Async is set a callback
// carrying the result will follow and Text is empty.
type Outcome struct {
	Text  string
	JobID string
	Async bool
}

// Client is a speech-to-text vendor.
type Client interface {
	// Submit sends mediaURL for transcription. correlationID is echoed back
	// by the vendor callback in webhook mode.
	Submit(ctx context.Context, mediaURL, correlationID string) (Outcome, error)
	// Fetch returns the transcript text of a finished vendor job.
	Fetch(ctx context.Context, jobID string) (string, error)
}

// Status values carried by inbound callbacks.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Callback is a normalized inbound completion notification.
type Callback struct {
	CorrelationID string
	JobID         string
	Status        string
	Text          string
	Error         string
}

// TranscriptionError is a vendor-side failure. Detail carries the vendor's
// own error text when there is one.
type TranscriptionError struct {
	JobID      string
	StatusCode int
	Detail     string
	Err        error
}

func (e *TranscriptionError) Error() string {
	msg := "transcription failed"
	if e.JobID != "" {
		msg += " (job " + e.JobID + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
