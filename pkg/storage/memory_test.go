package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/errors"
	"github.com/parallaxml/parallax/pkg/storage"
)

func snap(version uint64) model.Snapshot {
	return model.Snapshot{Parameters: model.Vector{float64(version)}, Version: version}
}

func TestPutGet(t *testing.T) {
	t.Parallel()

	s := storage.NewInMemoryStorage()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, snap(0)))
	require.NoError(t, s.Put(ctx, snap(1)))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, snap(1), got)

	_, err = s.Get(ctx, 7)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	err = s.Put(ctx, snap(1))
	assert.ErrorIs(t, err, errors.ErrEntityExists)
}

func TestLatest(t *testing.T) {
	t.Parallel()

	s := storage.NewInMemoryStorage()
	ctx := context.Background()

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// Insertion order must not matter.
	require.NoError(t, s.Put(ctx, snap(3)))
	require.NoError(t, s.Put(ctx, snap(1)))

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Version)
}

func TestList(t *testing.T) {
	t.Parallel()

	s := storage.NewInMemoryStorage()
	ctx := context.Background()
	for v := uint64(0); v < 5; v++ {
		require.NoError(t, s.Put(ctx, snap(v)))
	}

	result, total, err := s.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), total)
	require.Len(t, result, 2)
	assert.Equal(t, uint64(1), result[0].Version)
	assert.Equal(t, uint64(2), result[1].Version)

	result, total, err = s.List(ctx, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), total)
	assert.Empty(t, result)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	s := storage.NewInMemoryStorage()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, snap(2)))

	require.NoError(t, s.Delete(ctx, 2))
	_, err := s.Get(ctx, 2)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	err = s.Delete(ctx, 2)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
