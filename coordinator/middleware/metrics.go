package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/parallaxml/parallax/coordinator"
	"github.com/parallaxml/parallax/model"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Publish(ctx context.Context) model.Snapshot {
	defer func(begin time.Time) {
		mm.counter.With("method", "publish").Add(1)
		mm.latency.With("method", "publish").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Publish(ctx)
}

func (mm *metricsMiddleware) Submit(ctx context.Context, update model.Update) (model.ApplyResult, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit").Add(1)
		mm.latency.With("method", "submit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Submit(ctx, update)
}

func (mm *metricsMiddleware) Join(ctx context.Context, workerID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "join").Add(1)
		mm.latency.With("method", "join").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Join(ctx, workerID)
}

func (mm *metricsMiddleware) Leave(ctx context.Context, workerID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "leave").Add(1)
		mm.latency.With("method", "leave").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Leave(ctx, workerID)
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.Status, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "status").Add(1)
		mm.latency.With("method", "status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}
