// Package coordinator owns the authoritative model state and reconciles
// worker contributions under the configured synchronization strategy.
package coordinator

import (
	"context"

	"github.com/parallaxml/parallax/model"
)

// Service is the synchronization coordinator contract. All mutation happens
// through Submit, which is linearized: no two submissions interleave their
// writes. Publish is a non-blocking read of the latest committed snapshot
// and may run concurrently with Submit.
type Service interface {
	// Publish returns the current authoritative snapshot. It never blocks
	// and never observes a partially applied update.
	Publish(ctx context.Context) model.Snapshot

	// Submit applies one worker contribution according to the active
	// strategy. Under synchronous EASGD it blocks until the round barrier
	// releases or ctx is cancelled. A submission with mismatched
	// dimensionality is rejected and leaves the state untouched.
	Submit(ctx context.Context, update model.Update) (model.ApplyResult, error)

	// Join adds a worker to the active cohort.
	Join(ctx context.Context, workerID string) error

	// Leave removes a worker from the cohort. Under synchronous EASGD a
	// pending round re-evaluates its barrier against the shrunken cohort,
	// so a departed worker can never stall the remaining reporters.
	Leave(ctx context.Context, workerID string) error

	// Status reports the coordinator's progress counters.
	Status(ctx context.Context) (Status, error)
}

type Config struct {
	Strategy     model.Strategy
	LearningRate float64
	Rho          float64
}

type Status struct {
	Strategy       model.Strategy `json:"strategy"`
	Version        uint64         `json:"version"`
	Cohort         []string       `json:"cohort"`
	UpdatesApplied uint64         `json:"updates_applied"`
	RoundReporters int            `json:"round_reporters"`
}
