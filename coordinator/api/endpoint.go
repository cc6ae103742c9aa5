package api

import (
	"context"

	"github.com/go-kit/kit/endpoint"

	"github.com/parallaxml/parallax/coordinator"
	pkgerrors "github.com/parallaxml/parallax/pkg/errors"
	"github.com/parallaxml/parallax/pkg/storage"
)

func getSnapshotEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return snapshotResponse{Snapshot: svc.Publish(ctx)}, nil
	}
}

func getStatusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		status, err := svc.Status(ctx)
		if err != nil {
			return statusResponse{}, err
		}

		return statusResponse{Status: status}, nil
	}
}

func submitUpdateEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(submitReq)
		if !ok {
			return submitResponse{}, pkgerrors.ErrInvalidData
		}
		if err := req.validate(); err != nil {
			return submitResponse{}, err
		}

		result, err := svc.Submit(ctx, req.Update)
		if err != nil {
			return submitResponse{}, err
		}

		return submitResponse{ApplyResult: result}, nil
	}
}

func listCheckpointsEndpoint(checkpoints storage.Storage) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listCheckpointsReq)
		if !ok {
			return checkpointsPageResponse{}, pkgerrors.ErrInvalidData
		}
		if err := req.validate(); err != nil {
			return checkpointsPageResponse{}, err
		}

		snaps, total, err := checkpoints.List(ctx, req.offset, req.limit)
		if err != nil {
			return checkpointsPageResponse{}, err
		}

		return checkpointsPageResponse{
			Checkpoints: snaps,
			Total:       total,
			Offset:      req.offset,
			Limit:       req.limit,
		}, nil
	}
}

func getCheckpointEndpoint(checkpoints storage.Storage) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(getCheckpointReq)
		if !ok {
			return snapshotResponse{}, pkgerrors.ErrInvalidData
		}

		snap, err := checkpoints.Get(ctx, req.version)
		if err != nil {
			return snapshotResponse{}, err
		}

		return snapshotResponse{Snapshot: snap}, nil
	}
}

func joinCohortEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(cohortReq)
		if !ok {
			return cohortResponse{}, pkgerrors.ErrInvalidData
		}
		if err := req.validate(); err != nil {
			return cohortResponse{}, err
		}

		if err := svc.Join(ctx, req.workerID); err != nil {
			return cohortResponse{}, err
		}

		return cohortResponse{joined: true}, nil
	}
}

func leaveCohortEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(cohortReq)
		if !ok {
			return cohortResponse{}, pkgerrors.ErrInvalidData
		}
		if err := req.validate(); err != nil {
			return cohortResponse{}, err
		}

		if err := svc.Leave(ctx, req.workerID); err != nil {
			return cohortResponse{}, err
		}

		return cohortResponse{}, nil
	}
}
