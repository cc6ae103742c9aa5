package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/parallaxml/parallax/coordinator"
	"github.com/parallaxml/parallax/model"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Publish(ctx context.Context) model.Snapshot {
	ctx, span := tm.tracer.Start(ctx, "publish")
	defer span.End()

	return tm.svc.Publish(ctx)
}

func (tm *tracing) Submit(ctx context.Context, update model.Update) (model.ApplyResult, error) {
	ctx, span := tm.tracer.Start(ctx, "submit", trace.WithAttributes(
		attribute.String("worker_id", update.WorkerID),
		attribute.Int64("base_version", int64(update.BaseVersion)),
	))
	defer span.End()

	return tm.svc.Submit(ctx, update)
}

func (tm *tracing) Join(ctx context.Context, workerID string) error {
	ctx, span := tm.tracer.Start(ctx, "join", trace.WithAttributes(
		attribute.String("worker_id", workerID),
	))
	defer span.End()

	return tm.svc.Join(ctx, workerID)
}

func (tm *tracing) Leave(ctx context.Context, workerID string) error {
	ctx, span := tm.tracer.Start(ctx, "leave", trace.WithAttributes(
		attribute.String("worker_id", workerID),
	))
	defer span.End()

	return tm.svc.Leave(ctx, workerID)
}

func (tm *tracing) Status(ctx context.Context) (coordinator.Status, error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}
