// Package data supplies the training-set collaborators: stable disjoint
// partitioning into per-worker shards and restartable batch iteration.
package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/parallaxml/parallax/pkg/errors"
)

type Example struct {
	Features []float64 `json:"features"`
	Target   float64   `json:"target"`
}

type Set []Example

type Batch []Example

// Shard is one worker's read-only slice of the training set.
type Shard struct {
	ID       int
	Examples Set
}

// Partition splits set into n contiguous, disjoint, roughly equal shards.
// The split is stable: the same set and n always produce the same shards.
func Partition(set Set, n int) ([]Shard, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: need at least one partition, got %d", errors.ErrInvalidConfig, n)
	}
	if n > len(set) {
		return nil, fmt.Errorf("%w: %d partitions for %d examples", errors.ErrInvalidConfig, n, len(set))
	}

	shards := make([]Shard, n)
	base := len(set) / n
	rem := len(set) % n
	start := 0
	for i := range shards {
		size := base
		if i < rem {
			size++
		}
		shards[i] = Shard{ID: i, Examples: set[start : start+size]}
		start += size
	}

	return shards, nil
}

// Batches returns a restartable iterator over the shard in order. One full
// pass yields every example exactly once; the final batch may be short.
func (s Shard) Batches(size int) *BatchIter {
	return &BatchIter{examples: s.Examples, size: size}
}

type BatchIter struct {
	examples Set
	size     int
	pos      int
}

func (it *BatchIter) Next() (Batch, bool) {
	if it.pos >= len(it.examples) {
		return nil, false
	}
	end := it.pos + it.size
	if end > len(it.examples) {
		end = len(it.examples)
	}
	b := Batch(it.examples[it.pos:end])
	it.pos = end

	return b, true
}

func (it *BatchIter) Reset() {
	it.pos = 0
}

// LoadCSV reads a headerless CSV file where every column but the last is a
// feature and the last column is the regression target.
func LoadCSV(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	set := make(Set, 0, len(records))
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: row %d has %d columns", errors.ErrInvalidData, i, len(rec))
		}
		ex := Example{Features: make([]float64, len(rec)-1)}
		for j, cell := range rec {
			val, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			if j == len(rec)-1 {
				ex.Target = val
			} else {
				ex.Features[j] = val
			}
		}
		set = append(set, ex)
	}

	return set, nil
}
