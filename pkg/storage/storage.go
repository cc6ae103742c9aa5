// Package storage persists snapshot checkpoints taken by the coordinator.
package storage

import (
	"context"

	"github.com/parallaxml/parallax/model"
)

type Storage interface {
	Put(ctx context.Context, snapshot model.Snapshot) error
	Get(ctx context.Context, version uint64) (model.Snapshot, error)
	Latest(ctx context.Context) (model.Snapshot, error)
	List(ctx context.Context, offset, limit uint64) ([]model.Snapshot, uint64, error)
	Delete(ctx context.Context, version uint64) error
}
