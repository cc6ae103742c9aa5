package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/errors"
)

type inMemoryStorage struct {
	sync.Mutex

	snapshots map[uint64]model.Snapshot
	versions  []uint64
}

func NewInMemoryStorage() Storage {
	return &inMemoryStorage{
		snapshots: make(map[uint64]model.Snapshot),
	}
}

func (s *inMemoryStorage) Put(_ context.Context, snapshot model.Snapshot) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.snapshots[snapshot.Version]; ok {
		return errors.ErrEntityExists
	}

	s.snapshots[snapshot.Version] = snapshot
	idx, _ := slices.BinarySearch(s.versions, snapshot.Version)
	s.versions = slices.Insert(s.versions, idx, snapshot.Version)

	return nil
}

func (s *inMemoryStorage) Get(_ context.Context, version uint64) (model.Snapshot, error) {
	s.Lock()
	defer s.Unlock()

	if snap, ok := s.snapshots[version]; ok {
		return snap, nil
	}

	return model.Snapshot{}, errors.ErrNotFound
}

func (s *inMemoryStorage) Latest(_ context.Context) (model.Snapshot, error) {
	s.Lock()
	defer s.Unlock()

	if len(s.versions) == 0 {
		return model.Snapshot{}, errors.ErrNotFound
	}

	return s.snapshots[s.versions[len(s.versions)-1]], nil
}

func (s *inMemoryStorage) List(_ context.Context, offset, limit uint64) (result []model.Snapshot, total uint64, err error) {
	s.Lock()
	defer s.Unlock()

	total = uint64(len(s.versions))
	if offset >= total {
		return nil, total, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	result = make([]model.Snapshot, end-offset)
	for i := offset; i < end; i++ {
		result[i-offset] = s.snapshots[s.versions[i]]
	}

	return result, total, nil
}

func (s *inMemoryStorage) Delete(_ context.Context, version uint64) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.snapshots[version]; !ok {
		return errors.ErrNotFound
	}

	delete(s.snapshots, version)
	idx, _ := slices.BinarySearch(s.versions, version)
	s.versions = slices.Delete(s.versions, idx, idx+1)

	return nil
}
