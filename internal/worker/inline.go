package worker

import (
	"context"

	"go.uber.org/zap"
)

// Inline runs each task synchronously inside Schedule. It is meant for tests
// and single-shot tools.
type Inline struct {
	Handler Handler
	Logger  *zap.Logger
}

// Schedule runs t and logs, rather than returns, its error.
func (s *Inline) Schedule(ctx context.Context, t Task) error {
	if s.Handler == nil {
		return ErrNoHandler
	}
	if err := s.Handler(context.WithoutCancel(ctx), t); err != nil && s.Logger != nil {
		s.Logger.Error("task failed", zap.String("kind", string(t.Kind)), zap.String("video_id", t.VideoID.String()), zap.Error(err))
	}
	return nil
}
