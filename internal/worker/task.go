// Package worker runs pipeline tasks in the background, either in-process on
// a bounded pool or through a Redis queue drained by cmd/worker.
package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Kind identifies the continuation a task runs.
type Kind string

const (
	KindProcess    Kind = "process"
	KindTranscribe Kind = "transcribe"
)

// Task is one unit of background work for a single video.
type Task struct {
	Kind       Kind      `json:"kind"`
	VideoID    uuid.UUID `json:"video_id"`
	StorageKey string    `json:"storage_key,omitempty"`
}

// Handler runs a task to completion.
type Handler func(ctx context.Context, t Task) error

// Scheduler hands tasks off without blocking the caller on their execution.
type Scheduler interface {
	Schedule(ctx context.Context, t Task) error
}

var (
	// ErrQueueFull is returned when the pool buffer has no room.
	ErrQueueFull = errors.New("worker queue full")
	// ErrStopped is returned after Shutdown.
	ErrStopped = errors.New("worker pool stopped")
	// ErrNoHandler is returned when a pool is started without a handler.
	ErrNoHandler = errors.New("worker handler not set")
)
