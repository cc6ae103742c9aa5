package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/errors"
	"github.com/parallaxml/parallax/pkg/storage"
)

type round struct {
	deltas map[string]model.Vector
	done   chan struct{}
	result model.ApplyResult
	err    error
}

type service struct {
	cfg         Config
	checkpoints storage.Storage
	logger      *slog.Logger

	// current holds the committed snapshot; readers load it without taking
	// the mutex so Publish never blocks behind a Submit.
	current atomic.Pointer[model.Snapshot]

	mu      sync.Mutex
	cohort  map[string]struct{}
	round   *round
	applied uint64
}

// NewService seeds a coordinator with the initial parameters at version 0.
// The checkpoint store is optional; when present every committed snapshot is
// written to it.
func NewService(cfg Config, initial model.Vector, checkpoints storage.Storage, logger *slog.Logger) (Service, error) {
	if _, err := model.ParseStrategy(string(cfg.Strategy)); err != nil {
		return nil, err
	}
	if initial.Dim() == 0 {
		return nil, fmt.Errorf("%w: empty initial parameters", errors.ErrInvalidConfig)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("%w: learning rate must be positive", errors.ErrInvalidConfig)
	}
	if (cfg.Strategy == model.EASGD || cfg.Strategy == model.AsyncEASGD) && cfg.Rho <= 0 {
		return nil, fmt.Errorf("%w: elasticity coefficient must be positive", errors.ErrInvalidConfig)
	}

	svc := &service{
		cfg:         cfg,
		checkpoints: checkpoints,
		logger:      logger,
		cohort:      make(map[string]struct{}),
	}
	svc.commit(context.Background(), model.Snapshot{Parameters: initial.Clone(), Version: 0})

	return svc, nil
}

func (svc *service) Publish(_ context.Context) model.Snapshot {
	return *svc.current.Load()
}

func (svc *service) Submit(ctx context.Context, update model.Update) (model.ApplyResult, error) {
	snap := svc.current.Load()
	if update.Delta.Dim() != snap.Parameters.Dim() {
		return model.ApplyResult{Status: model.Rejected}, fmt.Errorf(
			"%w: update carries %d weights, model has %d",
			errors.ErrDimensionMismatch, update.Delta.Dim(), snap.Parameters.Dim(),
		)
	}

	if svc.cfg.Strategy == model.EASGD {
		return svc.submitRound(ctx, update)
	}

	return svc.submitImmediate(ctx, update)
}

// submitImmediate merges one contribution into a fresh snapshot under the
// critical section. Stale updates are absorbed by the step scaling, never
// rejected.
func (svc *service) submitImmediate(ctx context.Context, update model.Update) (model.ApplyResult, error) {
	var step float64
	switch svc.cfg.Strategy {
	case model.Single, model.Downpour:
		step = -svc.cfg.LearningRate
	case model.AsyncEASGD:
		step = svc.cfg.Rho * svc.cfg.LearningRate
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	snap := svc.current.Load()
	next := snap.Parameters.Clone()
	if err := next.AXPY(step, update.Delta); err != nil {
		return model.ApplyResult{Status: model.Rejected}, err
	}

	svc.commit(ctx, model.Snapshot{Parameters: next, Version: snap.Version + 1})
	svc.applied++

	result := model.ApplyResult{
		Version:   snap.Version + 1,
		Staleness: staleness(snap.Version, update.BaseVersion),
		Status:    model.Applied,
	}
	svc.logger.Debug("applied update",
		slog.String("worker_id", update.WorkerID),
		slog.Uint64("version", result.Version),
		slog.Uint64("staleness", result.Staleness),
	)

	return result, nil
}

// submitRound registers the contribution for the current synchronous round
// and blocks until every active cohort member has reported.
func (svc *service) submitRound(ctx context.Context, update model.Update) (model.ApplyResult, error) {
	svc.mu.Lock()
	if _, ok := svc.cohort[update.WorkerID]; !ok {
		svc.mu.Unlock()

		return model.ApplyResult{Status: model.Rejected}, errors.ErrUnknownWorker
	}

	r := svc.round
	if r == nil {
		r = &round{deltas: make(map[string]model.Vector), done: make(chan struct{})}
		svc.round = r
	}
	if _, ok := r.deltas[update.WorkerID]; ok {
		svc.mu.Unlock()

		return model.ApplyResult{Status: model.Rejected}, errors.ErrAlreadyReported
	}
	r.deltas[update.WorkerID] = update.Delta
	svc.maybeCommitRound(ctx)
	svc.mu.Unlock()

	select {
	case <-r.done:
		result := r.result
		if r.err == nil {
			result.Staleness = staleness(result.Version-1, update.BaseVersion)
		}

		return result, r.err
	case <-ctx.Done():
		// Withdraw the contribution so an abandoned submission cannot leak
		// into a later commit.
		svc.mu.Lock()
		if svc.round == r {
			delete(r.deltas, update.WorkerID)
		}
		svc.mu.Unlock()

		return model.ApplyResult{Status: model.Rejected}, ctx.Err()
	}
}

// maybeCommitRound commits the pending round once every cohort member has
// reported. Callers must hold svc.mu.
func (svc *service) maybeCommitRound(ctx context.Context) {
	r := svc.round
	if r == nil || len(r.deltas) == 0 || len(r.deltas) < len(svc.cohort) {
		return
	}

	deltas := make([]model.Vector, 0, len(r.deltas))
	for _, d := range r.deltas {
		deltas = append(deltas, d)
	}
	mean, err := model.Mean(deltas)
	if err != nil {
		r.err = err
		r.result = model.ApplyResult{Status: model.Rejected}
		svc.round = nil
		close(r.done)

		return
	}

	snap := svc.current.Load()
	next := snap.Parameters.Clone()
	if err := next.AXPY(svc.cfg.Rho*svc.cfg.LearningRate, mean); err != nil {
		r.err = err
		r.result = model.ApplyResult{Status: model.Rejected}
		svc.round = nil
		close(r.done)

		return
	}

	svc.commit(ctx, model.Snapshot{Parameters: next, Version: snap.Version + 1})
	svc.applied += uint64(len(deltas))

	r.result = model.ApplyResult{Version: snap.Version + 1, Status: model.Averaged}
	svc.round = nil
	svc.logger.Debug("committed round",
		slog.Uint64("version", snap.Version+1),
		slog.Int("reporters", len(deltas)),
	)
	close(r.done)
}

func (svc *service) Join(_ context.Context, workerID string) error {
	if workerID == "" {
		return errors.ErrEmptyKey
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, ok := svc.cohort[workerID]; ok {
		return errors.ErrEntityExists
	}
	svc.cohort[workerID] = struct{}{}

	return nil
}

func (svc *service) Leave(ctx context.Context, workerID string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, ok := svc.cohort[workerID]; !ok {
		return errors.ErrUnknownWorker
	}
	delete(svc.cohort, workerID)

	// A pending round may now be fully reported by the remaining cohort.
	svc.maybeCommitRound(ctx)

	return nil
}

func (svc *service) Status(_ context.Context) (Status, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	cohort := make([]string, 0, len(svc.cohort))
	for id := range svc.cohort {
		cohort = append(cohort, id)
	}
	slices.Sort(cohort)

	reporters := 0
	if svc.round != nil {
		reporters = len(svc.round.deltas)
	}

	return Status{
		Strategy:       svc.cfg.Strategy,
		Version:        svc.current.Load().Version,
		Cohort:         cohort,
		UpdatesApplied: svc.applied,
		RoundReporters: reporters,
	}, nil
}

func (svc *service) commit(ctx context.Context, snap model.Snapshot) {
	svc.current.Store(&snap)
	if svc.checkpoints == nil {
		return
	}
	if err := svc.checkpoints.Put(ctx, snap); err != nil {
		svc.logger.Warn("failed to checkpoint snapshot",
			slog.Uint64("version", snap.Version),
			slog.Any("error", err),
		)
	}
}

func staleness(version, base uint64) uint64 {
	if base > version {
		return 0
	}

	return version - base
}
