// Package grad defines the gradient-computation capability consumed by
// workers. Implementations must be pure with respect to coordinator state:
// given the same parameters and batch they return the same gradient.
package grad

import (
	"context"
	"fmt"

	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/data"
	"github.com/parallaxml/parallax/pkg/errors"
)

type Computer interface {
	Compute(ctx context.Context, params model.Vector, batch data.Batch) (model.Vector, float64, error)
}

// LeastSquares is the reference computer: a linear model under mean squared
// error. Parameters are one weight per feature plus a trailing bias term.
type LeastSquares struct{}

func NewLeastSquares() Computer {
	return LeastSquares{}
}

func (LeastSquares) Compute(_ context.Context, params model.Vector, batch data.Batch) (model.Vector, float64, error) {
	if len(batch) == 0 {
		return nil, 0, fmt.Errorf("%w: empty batch", errors.ErrInvalidData)
	}

	dim := params.Dim()
	gradient := model.Zeros(dim)
	var loss float64
	for _, ex := range batch {
		if len(ex.Features) != dim-1 {
			return nil, 0, fmt.Errorf("%w: %d features for %d parameters", errors.ErrDimensionMismatch, len(ex.Features), dim)
		}

		pred := params[dim-1]
		for i, x := range ex.Features {
			pred += params[i] * x
		}
		residual := pred - ex.Target
		loss += residual * residual

		for i, x := range ex.Features {
			gradient[i] += 2 * residual * x
		}
		gradient[dim-1] += 2 * residual
	}

	scale := 1 / float64(len(batch))
	for i := range gradient {
		gradient[i] *= scale
	}

	return gradient, loss / float64(len(batch)), nil
}
