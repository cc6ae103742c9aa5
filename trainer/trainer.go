// Package trainer wires a coordinator and a fleet of workers into one
// training run per strategy and drives it to completion.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/0x6flab/namegenerator"
	"github.com/google/uuid"

	"github.com/parallaxml/parallax/coordinator"
	"github.com/parallaxml/parallax/grad"
	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/data"
	pkgerrors "github.com/parallaxml/parallax/pkg/errors"
	"github.com/parallaxml/parallax/pkg/mqtt"
	"github.com/parallaxml/parallax/pkg/storage"
	"github.com/parallaxml/parallax/worker"
)

type Config struct {
	Strategy            model.Strategy `toml:"strategy"             json:"strategy"`
	Workers             int            `toml:"workers"              json:"workers"`
	BatchSize           int            `toml:"batch_size"           json:"batch_size"`
	LearningRate        float64        `toml:"learning_rate"        json:"learning_rate"`
	Rho                 float64        `toml:"rho"                  json:"rho"`
	CommunicationPeriod int            `toml:"communication_period" json:"communication_period"`
	LocalEpochs         int            `toml:"local_epochs"         json:"local_epochs"`
}

func (c Config) Validate() error {
	if _, err := model.ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: need at least one worker, got %d", pkgerrors.ErrInvalidConfig, c.Workers)
	}
	if c.Strategy == model.Single && c.Workers != 1 {
		return fmt.Errorf("%w: the single-worker baseline admits exactly one worker", pkgerrors.ErrInvalidConfig)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be positive", pkgerrors.ErrInvalidConfig)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("%w: learning rate must be positive", pkgerrors.ErrInvalidConfig)
	}
	if c.LocalEpochs < 1 {
		return fmt.Errorf("%w: local epochs must be positive", pkgerrors.ErrInvalidConfig)
	}
	if c.Strategy == model.EASGD || c.Strategy == model.AsyncEASGD {
		if c.Rho <= 0 {
			return fmt.Errorf("%w: elasticity coefficient must be positive", pkgerrors.ErrInvalidConfig)
		}
		if c.CommunicationPeriod < 1 {
			return fmt.Errorf("%w: communication period must be positive", pkgerrors.ErrInvalidConfig)
		}
	}

	return nil
}

// Event is the progress message published to the broker when a notifier is
// configured.
type Event struct {
	RunID    string         `json:"run_id"`
	Strategy model.Strategy `json:"strategy"`
	Phase    string         `json:"phase"`
	Version  uint64         `json:"version"`
	Workers  int            `json:"workers"`
}

type Option func(*Trainer)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Trainer) { t.logger = logger }
}

// WithCheckpoints stores every committed snapshot in the given store.
func WithCheckpoints(s storage.Storage) Option {
	return func(t *Trainer) { t.checkpoints = s }
}

// WithNotifier publishes run progress events to the given topic.
func WithNotifier(ps mqtt.PubSub, topic string) Option {
	return func(t *Trainer) {
		t.notifier = ps
		t.topic = topic
	}
}

// WithDecorator wraps the coordinator with middleware (logging, metrics,
// tracing) before workers are bound to it. Decorate also receives remote
// submissions when the coordinator is exposed over HTTP.
func WithDecorator(decorate func(coordinator.Service) coordinator.Service) Option {
	return func(t *Trainer) { t.decorate = decorate }
}

type Trainer struct {
	cfg         Config
	computer    grad.Computer
	logger      *slog.Logger
	checkpoints storage.Storage
	notifier    mqtt.PubSub
	topic       string
	decorate    func(coordinator.Service) coordinator.Service

	mu    sync.Mutex
	coord coordinator.Service
}

// New validates the configuration before anything is spawned and returns a
// trainer for the configured strategy.
func New(cfg Config, computer grad.Computer, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if computer == nil {
		return nil, fmt.Errorf("%w: gradient computer is required", pkgerrors.ErrInvalidConfig)
	}

	t := &Trainer{
		cfg:      cfg,
		computer: computer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

func NewSingle(cfg Config, computer grad.Computer, opts ...Option) (*Trainer, error) {
	cfg.Strategy = model.Single

	return New(cfg, computer, opts...)
}

func NewEASGD(cfg Config, computer grad.Computer, opts ...Option) (*Trainer, error) {
	cfg.Strategy = model.EASGD

	return New(cfg, computer, opts...)
}

func NewAsyncEASGD(cfg Config, computer grad.Computer, opts ...Option) (*Trainer, error) {
	cfg.Strategy = model.AsyncEASGD

	return New(cfg, computer, opts...)
}

func NewDownpour(cfg Config, computer grad.Computer, opts ...Option) (*Trainer, error) {
	cfg.Strategy = model.Downpour

	return New(cfg, computer, opts...)
}

// Coordinator returns the coordinator of the active run, or nil when no run
// is in flight. The API server uses it to expose the run over HTTP.
func (t *Trainer) Coordinator() coordinator.Service {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.coord
}

// Train partitions the set into disjoint shards, spawns one worker per
// shard and blocks until every worker has exhausted its epoch budget. A
// failed worker is dropped from the cohort and training continues; the
// returned error joins all worker failures so the caller gets the best
// snapshot obtained so far together with an explicit failure indication.
func (t *Trainer) Train(ctx context.Context, set data.Set, initial model.Vector) (model.Snapshot, error) {
	shards, err := data.Partition(set, t.cfg.Workers)
	if err != nil {
		return model.Snapshot{}, err
	}

	coord, err := coordinator.NewService(coordinator.Config{
		Strategy:     t.cfg.Strategy,
		LearningRate: t.cfg.LearningRate,
		Rho:          t.cfg.Rho,
	}, initial, t.checkpoints, t.logger)
	if err != nil {
		return model.Snapshot{}, err
	}
	if t.decorate != nil {
		coord = t.decorate(coord)
	}
	t.mu.Lock()
	t.coord = coord
	t.mu.Unlock()

	runID := uuid.NewString()
	namegen := namegenerator.NewGenerator()
	workers := make([]*worker.Worker, len(shards))
	for i, shard := range shards {
		id := fmt.Sprintf("%s-%d", namegen.Generate(), i)
		if err := coord.Join(ctx, id); err != nil {
			return model.Snapshot{}, err
		}
		workers[i] = worker.New(worker.Config{
			ID:                  id,
			Strategy:            t.cfg.Strategy,
			BatchSize:           t.cfg.BatchSize,
			LearningRate:        t.cfg.LearningRate,
			Rho:                 t.cfg.Rho,
			CommunicationPeriod: t.cfg.CommunicationPeriod,
			LocalEpochs:         t.cfg.LocalEpochs,
		}, coord, t.computer, shard, t.logger)
	}

	t.notify(ctx, Event{RunID: runID, Strategy: t.cfg.Strategy, Phase: "started", Workers: len(workers)})
	t.logger.Info("training started",
		slog.String("run_id", runID),
		slog.String("strategy", string(t.cfg.Strategy)),
		slog.Int("workers", len(workers)),
		slog.Int("examples", len(set)),
	)

	var (
		wg         sync.WaitGroup
		errMu      sync.Mutex
		workerErrs []error
	)
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				errMu.Lock()
				workerErrs = append(workerErrs, err)
				errMu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	final := coord.Publish(ctx)
	t.notify(ctx, Event{
		RunID:    runID,
		Strategy: t.cfg.Strategy,
		Phase:    "finished",
		Version:  final.Version,
		Workers:  len(workers),
	})
	t.logger.Info("training finished",
		slog.String("run_id", runID),
		slog.Uint64("version", final.Version),
		slog.Int("failed_workers", len(workerErrs)),
	)

	return final, errors.Join(workerErrs...)
}

func (t *Trainer) notify(ctx context.Context, ev Event) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Publish(ctx, t.topic, ev); err != nil {
		t.logger.Warn("failed to publish progress event",
			slog.String("run_id", ev.RunID),
			slog.Any("error", err),
		)
	}
}
