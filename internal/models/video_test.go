package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTranscriptionTransition(t *testing.T) {
	cases := []struct {
		from, to TranscriptionStatus
		want     bool
	}{
		{TranscriptionNotStarted, TranscriptionPending, true},
		{TranscriptionNotStarted, TranscriptionInProgress, false},
		{TranscriptionPending, TranscriptionInProgress, true},
		{TranscriptionPending, TranscriptionCompleted, true},
		{TranscriptionPending, TranscriptionFailed, true},
		{TranscriptionInProgress, TranscriptionCompleted, true},
		{TranscriptionInProgress, TranscriptionFailed, true},
		{TranscriptionInProgress, TranscriptionPending, false},
		{TranscriptionFailed, TranscriptionPending, true},
		{TranscriptionFailed, TranscriptionCompleted, false},
		{TranscriptionCompleted, TranscriptionPending, false},
		{TranscriptionCompleted, TranscriptionFailed, false},
		{TranscriptionCompleted, TranscriptionNotStarted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTranscriptionTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCanProcessingTransition(t *testing.T) {
	assert.True(t, CanProcessingTransition(ProcessingUploaded, ProcessingStandardizing))
	assert.True(t, CanProcessingTransition(ProcessingStandardizing, ProcessingStandardizing))
	assert.True(t, CanProcessingTransition(ProcessingStandardizing, ProcessingPackaging))
	assert.True(t, CanProcessingTransition(ProcessingPackaging, ProcessingReady))
	assert.False(t, CanProcessingTransition(ProcessingUploaded, ProcessingReady))
	assert.False(t, CanProcessingTransition(ProcessingReady, ProcessingReady))
	assert.False(t, CanProcessingTransition(ProcessingUploaded, ProcessingUploaded))
	assert.True(t, CanProcessingTransition(ProcessingPackaging, ProcessingPackaging))
	assert.False(t, CanProcessingTransition(ProcessingReady, ProcessingStandardizing))
}

func TestVideoIsProcessing(t *testing.T) {
	url := "/videos/x/stream/playlist.m3u8"
	text := "hello"

	v := &Video{}
	assert.False(t, v.StreamReady())
	assert.False(t, v.IsProcessing())

	v.StreamURL = &url
	assert.True(t, v.StreamReady())
	assert.True(t, v.IsProcessing())

	v.Transcript = &text
	assert.False(t, v.IsProcessing())
}

func TestRequestable(t *testing.T) {
	assert.True(t, TranscriptionNotStarted.Requestable())
	assert.True(t, TranscriptionFailed.Requestable())
	assert.False(t, TranscriptionPending.Requestable())
	assert.False(t, TranscriptionInProgress.Requestable())
	assert.False(t, TranscriptionCompleted.Requestable())
	assert.False(t, TranscriptionStatus("bogus").Valid())
}

func TestProcessingSources(t *testing.T) {
	assert.Equal(t, []ProcessingState{ProcessingUploaded, ProcessingStandardizing}, ProcessingSources(ProcessingStandardizing))
	assert.Equal(t, []ProcessingState{ProcessingPackaging}, ProcessingSources(ProcessingReady))
	assert.Empty(t, ProcessingSources(ProcessingUploaded))
}
