package decision

import (
	"context"
	"log/slog"

	"intrabot/internal/strategy"
)

const (
	logLevelWarn  = slog.LevelWarn
	logLevelError = slog.LevelError
)

// Approver is consulted before the consumer acts on a signal.
type Approver interface {
	Approve(ctx context.Context, sig strategy.Signal) (bool, error)
}

type ApproverFunc func(ctx context.Context, sig strategy.Signal) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, sig strategy.Signal) (bool, error) {
	return f(ctx, sig)
}

// AutoApprove accepts every signal.
var AutoApprove Approver = ApproverFunc(func(context.Context, strategy.Signal) (bool, error) {
	return true, nil
})
