package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptionStatus represents the transcription lifecycle of a video.
type TranscriptionStatus string

const (
	TranscriptionNotStarted TranscriptionStatus = "not_started"
	TranscriptionPending    TranscriptionStatus = "pending"
	TranscriptionInProgress TranscriptionStatus = "in_progress"
	TranscriptionCompleted  TranscriptionStatus = "completed"
	TranscriptionFailed     TranscriptionStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s TranscriptionStatus) Valid() bool {
	switch s {
	case TranscriptionNotStarted, TranscriptionPending, TranscriptionInProgress, TranscriptionCompleted, TranscriptionFailed:
		return true
	}
	return false
}

// Requestable reports whether a new transcription may be requested from status s.
func (s TranscriptionStatus) Requestable() bool {
	return s == TranscriptionNotStarted || s == TranscriptionFailed
}

// ProcessingState tracks how far the transcoding pipeline got for a video.
// There is no failed state: a video whose pipeline failed stays at the stage
// that failed and never gains a stream URL.
type ProcessingState string

const (
	ProcessingUploaded      ProcessingState = "uploaded"
	ProcessingStandardizing ProcessingState = "standardizing"
	ProcessingPackaging     ProcessingState = "packaging"
	ProcessingReady         ProcessingState = "ready"
)

// CanTranscriptionTransition enforces the transcription state machine edges.
// completed is terminal; failed only leaves through an explicit new request.
func CanTranscriptionTransition(from, to TranscriptionStatus) bool {
	switch from {
	case TranscriptionNotStarted:
		return to == TranscriptionPending
	case TranscriptionPending:
		return to == TranscriptionInProgress || to == TranscriptionCompleted || to == TranscriptionFailed
	case TranscriptionInProgress:
		return to == TranscriptionCompleted || to == TranscriptionFailed
	case TranscriptionFailed:
		return to == TranscriptionPending
	default:
		return false
	}
}

// CanProcessingTransition enforces uploaded -> standardizing -> packaging -> ready.
// Re-entering a working stage is allowed so it can be re-run. Uploaded is
// only ever a starting state and ready is terminal.
func CanProcessingTransition(from, to ProcessingState) bool {
	if from == to {
		return from == ProcessingStandardizing || from == ProcessingPackaging
	}
	switch from {
	case ProcessingUploaded:
		return to == ProcessingStandardizing
	case ProcessingStandardizing:
		return to == ProcessingPackaging
	case ProcessingPackaging:
		return to == ProcessingReady
	default:
		return false
	}
}

// Video is an uploaded video and the state of its background processing.
type Video struct {
	ID                  uuid.UUID           `json:"id"`
	StorageKey          string              `json:"storage_key"`
	OriginalFilename    string              `json:"original_filename"`
	FileSize            int64               `json:"file_size"`
	MimeType            string              `json:"mime_type"`
	StreamURL           *string             `json:"stream_url"`
	Transcript          *string             `json:"transcript"`
	TranscriptionStatus TranscriptionStatus `json:"transcription_status"`
	TranscriptJobID     string              `json:"transcript_job_id,omitempty"`
	ProcessingState     ProcessingState     `json:"processing_state"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// StreamReady reports whether HLS packaging has completed.
func (v *Video) StreamReady() bool {
	return v.StreamURL != nil && *v.StreamURL != ""
}

// IsProcessing reports whether the stream is ready but the transcript is not.
func (v *Video) IsProcessing() bool {
	return v.StreamReady() && v.Transcript == nil
}

// ProcessingStates lists every pipeline state in order.
var ProcessingStates = []ProcessingState{ProcessingUploaded, ProcessingStandardizing, ProcessingPackaging, ProcessingReady}

// ProcessingSources returns the states from which to may be entered.
func ProcessingSources(to ProcessingState) []ProcessingState {
	var from []ProcessingState
	for _, s := range ProcessingStates {
		if CanProcessingTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}
