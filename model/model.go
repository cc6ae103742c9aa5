// Package model holds the shared data types exchanged between workers and
// the synchronization coordinator: parameter vectors, published snapshots
// and worker contributions.
package model

import (
	"fmt"
	"slices"

	"github.com/parallaxml/parallax/pkg/errors"
)

type Strategy string

const (
	Single     Strategy = "single"
	EASGD      Strategy = "easgd"
	AsyncEASGD Strategy = "async-easgd"
	Downpour   Strategy = "downpour"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Single, EASGD, AsyncEASGD, Downpour:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", errors.ErrInvalidConfig, s)
	}
}

// Vector is an ordered sequence of weights with fixed dimensionality.
// A vector published inside a Snapshot is immutable; mutating helpers are
// only ever called on private copies.
type Vector []float64

func Zeros(dim int) Vector {
	return make(Vector, dim)
}

func (v Vector) Dim() int {
	return len(v)
}

func (v Vector) Clone() Vector {
	return slices.Clone(v)
}

// AXPY computes v += alpha * x in place.
func (v Vector) AXPY(alpha float64, x Vector) error {
	if len(v) != len(x) {
		return fmt.Errorf("%w: have %d, want %d", errors.ErrDimensionMismatch, len(x), len(v))
	}
	for i := range v {
		v[i] += alpha * x[i]
	}

	return nil
}

// Sub returns a - b as a fresh vector.
func Sub(a, b Vector) (Vector, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: have %d, want %d", errors.ErrDimensionMismatch, len(b), len(a))
	}
	out := make(Vector, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}

	return out, nil
}

// Mean returns the element-wise mean of the given vectors, which must all
// share one dimensionality.
func Mean(vs []Vector) (Vector, error) {
	if len(vs) == 0 {
		return nil, errors.ErrEmptyCohort
	}
	out := vs[0].Clone()
	for _, v := range vs[1:] {
		if err := out.AXPY(1, v); err != nil {
			return nil, err
		}
	}
	scale := 1 / float64(len(vs))
	for i := range out {
		out[i] *= scale
	}

	return out, nil
}

// Snapshot is the coordinator's published state. Version strictly increases
// with every committed update; two snapshots with equal versions carry
// identical parameters.
type Snapshot struct {
	Parameters Vector `json:"parameters"`
	Version    uint64 `json:"version"`
}

// Update is a single worker contribution. Delta carries a position delta for
// the EASGD family and a raw gradient for downpour and the single-worker
// baseline. BaseVersion records the snapshot version the contribution was
// computed against; it is informational and never grounds for rejection.
type Update struct {
	WorkerID    string `json:"worker_id"`
	BaseVersion uint64 `json:"base_version"`
	Delta       Vector `json:"delta"`
}

type Status uint8

const (
	Applied Status = iota
	Averaged
	Rejected
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "Applied"
	case Averaged:
		return "Averaged"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ApplyResult reports how a submission was merged. Staleness is the version
// distance between the committed snapshot and the update's base.
type ApplyResult struct {
	Version   uint64 `json:"version"`
	Staleness uint64 `json:"staleness"`
	Status    Status `json:"status"`
}
