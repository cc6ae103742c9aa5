// Package worker implements the strategy-specific local update loop run
// against one data shard. Workers never talk to each other; all coordination
// is mediated by the coordinator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/parallaxml/parallax/coordinator"
	"github.com/parallaxml/parallax/grad"
	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/data"
)

type Config struct {
	ID                  string
	Strategy            model.Strategy
	BatchSize           int
	LearningRate        float64
	Rho                 float64
	CommunicationPeriod int
	LocalEpochs         int
}

type Worker struct {
	cfg      Config
	coord    coordinator.Service
	computer grad.Computer
	shard    data.Shard
	logger   *slog.Logger
}

func New(cfg Config, coord coordinator.Service, computer grad.Computer, shard data.Shard, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		coord:    coord,
		computer: computer,
		shard:    shard,
		logger:   logger,
	}
}

// Run loops over the shard for the configured number of local epochs. The
// worker must already be part of the cohort; it leaves the cohort on exit so
// a finished or failed worker can never stall a synchronous round.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		if err := w.coord.Leave(context.WithoutCancel(ctx), w.cfg.ID); err != nil {
			w.logger.Warn("failed to leave cohort",
				slog.String("worker_id", w.cfg.ID),
				slog.Any("error", err),
			)
		}
	}()

	switch w.cfg.Strategy {
	case model.EASGD, model.AsyncEASGD:
		return w.runElastic(ctx)
	default:
		return w.runGradientPush(ctx)
	}
}

// runElastic keeps a persistent local copy, steps SGD on it and every
// communication period exchanges a position delta with the center, then
// pulls the local copy elastically toward it.
func (w *Worker) runElastic(ctx context.Context) error {
	local := w.coord.Publish(ctx).Parameters.Clone()
	pull := w.cfg.Rho * w.cfg.LearningRate

	steps := 0
	it := w.shard.Batches(w.cfg.BatchSize)
	for epoch := 0; epoch < w.cfg.LocalEpochs; epoch++ {
		it.Reset()
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, ok := it.Next()
			if !ok {
				break
			}

			gradient, loss, err := w.computer.Compute(ctx, local, batch)
			if err != nil {
				return fmt.Errorf("worker %s: gradient computation failed: %w", w.cfg.ID, err)
			}
			if err := local.AXPY(-w.cfg.LearningRate, gradient); err != nil {
				return fmt.Errorf("worker %s: %w", w.cfg.ID, err)
			}

			steps++
			if steps%w.cfg.CommunicationPeriod != 0 {
				continue
			}

			center := w.coord.Publish(ctx)
			delta, err := model.Sub(local, center.Parameters)
			if err != nil {
				return fmt.Errorf("worker %s: %w", w.cfg.ID, err)
			}
			if _, err := w.coord.Submit(ctx, model.Update{
				WorkerID:    w.cfg.ID,
				BaseVersion: center.Version,
				Delta:       delta,
			}); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}

				return fmt.Errorf("worker %s: submit failed: %w", w.cfg.ID, err)
			}
			if err := local.AXPY(-pull, delta); err != nil {
				return fmt.Errorf("worker %s: %w", w.cfg.ID, err)
			}

			w.logger.Debug("exchanged with center",
				slog.String("worker_id", w.cfg.ID),
				slog.Int("step", steps),
				slog.Float64("loss", loss),
			)
		}
	}

	return nil
}

// runGradientPush serves downpour and the single-worker baseline: pull the
// latest snapshot, compute the gradient at it, push the raw gradient.
func (w *Worker) runGradientPush(ctx context.Context) error {
	it := w.shard.Batches(w.cfg.BatchSize)
	for epoch := 0; epoch < w.cfg.LocalEpochs; epoch++ {
		it.Reset()
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, ok := it.Next()
			if !ok {
				break
			}

			snap := w.coord.Publish(ctx)
			gradient, loss, err := w.computer.Compute(ctx, snap.Parameters, batch)
			if err != nil {
				return fmt.Errorf("worker %s: gradient computation failed: %w", w.cfg.ID, err)
			}

			if _, err := w.coord.Submit(ctx, model.Update{
				WorkerID:    w.cfg.ID,
				BaseVersion: snap.Version,
				Delta:       gradient,
			}); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}

				return fmt.Errorf("worker %s: submit failed: %w", w.cfg.ID, err)
			}

			w.logger.Debug("pushed gradient",
				slog.String("worker_id", w.cfg.ID),
				slog.Uint64("base_version", snap.Version),
				slog.Float64("loss", loss),
			)
		}
	}

	return nil
}
