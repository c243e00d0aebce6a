// Package transcriptiontest provides an in-memory transcription client.
package transcriptiontest

import (
	"context"
	"sync"

	"github.com/clipreview/backend/internal/transcription"
)

// Submission is one recorded Submit call.
type Submission struct {
	MediaURL      string
	CorrelationID string
}

// Client answers Submit with canned outcomes.
type Client struct {
	mu sync.Mutex

	Text  string
	Err   error
	Async bool
	JobID string

	FetchText string
	FetchErr  error

	// Gate, when set, blocks Submit until it is closed or ctx ends.
	Gate chan struct{}

	submissions []Submission
}

// New returns a client that completes synchronously with text.
func New(text string) *Client {
	return &Client{Text: text, JobID: "job-1"}
}

func (c *Client) Submit(ctx context.Context, mediaURL, correlationID string) (transcription.Outcome, error) {
	c.mu.Lock()
	c.submissions = append(c.submissions, Submission{MediaURL: mediaURL, CorrelationID: correlationID})
	gate := c.Gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return transcription.Outcome{}, &transcription.TranscriptionError{Detail: "timed out", Err: ctx.Err()}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return transcription.Outcome{JobID: c.JobID}, c.Err
	}
	if c.Async {
		return transcription.Outcome{JobID: c.JobID, Async: true}, nil
	}
	return transcription.Outcome{Text: c.Text, JobID: c.JobID}, nil
}

func (c *Client) Fetch(_ context.Context, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.FetchText, c.FetchErr
}

// Submissions returns a copy of the recorded Submit calls.
func (c *Client) Submissions() []Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Submission(nil), c.submissions...)
}
