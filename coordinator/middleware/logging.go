package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/parallaxml/parallax/coordinator"
	"github.com/parallaxml/parallax/model"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Publish(ctx context.Context) (snap model.Snapshot) {
	defer func(begin time.Time) {
		lm.logger.Debug("Publish snapshot completed successfully",
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("version", snap.Version),
		)
	}(time.Now())

	return lm.svc.Publish(ctx)
}

func (lm *loggingMiddleware) Submit(ctx context.Context, update model.Update) (resp model.ApplyResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("update",
				slog.String("worker_id", update.WorkerID),
				slog.Uint64("base_version", update.BaseVersion),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit update failed", args...)

			return
		}
		args = append(args,
			slog.Uint64("version", resp.Version),
			slog.Uint64("staleness", resp.Staleness),
			slog.String("status", resp.Status.String()),
		)
		lm.logger.Info("Submit update completed successfully", args...)
	}(time.Now())

	return lm.svc.Submit(ctx, update)
}

func (lm *loggingMiddleware) Join(ctx context.Context, workerID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("worker",
				slog.String("id", workerID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Join cohort failed", args...)

			return
		}
		lm.logger.Info("Join cohort completed successfully", args...)
	}(time.Now())

	return lm.svc.Join(ctx, workerID)
}

func (lm *loggingMiddleware) Leave(ctx context.Context, workerID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("worker",
				slog.String("id", workerID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Leave cohort failed", args...)

			return
		}
		lm.logger.Info("Leave cohort completed successfully", args...)
	}(time.Now())

	return lm.svc.Leave(ctx, workerID)
}

func (lm *loggingMiddleware) Status(ctx context.Context) (resp coordinator.Status, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get status failed", args...)

			return
		}
		lm.logger.Info("Get status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx)
}
