package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/rbacadmin/internal/auth"
	jobmetrics "github.com/odyssey-erp/rbacadmin/internal/jobs"
)

// TokenPurger removes expired verification tokens.
type TokenPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (map[auth.Purpose]int64, error)
}

// PurgeTokensJob deletes expired reset and verification tokens.
type PurgeTokensJob struct {
	Tokens  TokenPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPurgeTokensJob constructs the purge handler.
func NewPurgeTokensJob(tokens TokenPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeTokensJob {
	return &PurgeTokensJob{
		Tokens:  tokens,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs one sweep.
func (j *PurgeTokensJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Tokens == nil {
		return errors.New("purge tokens: handler not configured")
	}
	run := j.Metrics.Track(TaskTypePurgeTokens)
	purged, err := j.Tokens.PurgeExpired(ctx, j.clock())
	if err = run.End(err); err != nil {
		j.logger().Error("purge tokens", slog.Any("error", err))
		return err
	}
	var total int64
	for purpose, n := range purged {
		j.Metrics.AddPurged(string(purpose), n)
		total += n
	}
	j.logger().Info("expired tokens purged", slog.Int64("count", total))
	return nil
}

func (j *PurgeTokensJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
