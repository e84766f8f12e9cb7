package approval

import (
	"context"

	"go.uber.org/zap"
)

// Notifier tells humans that a request is waiting for them.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, req Request) error
}

// LogNotifier writes pending requests to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier logging at warn level.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, req Request) error {
	n.logger.Warn("approval required",
		zap.String("request_id", req.ID),
		zap.String("run_id", req.RunID),
		zap.String("action", req.Action),
		zap.Int("limit", req.Limit),
		zap.Bool("has_time_filter", req.HasTimeFilter),
		zap.Time("expires_at", req.ExpiresAt),
	)
	return nil
}
