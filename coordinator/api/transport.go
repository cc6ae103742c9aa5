// Package api exposes a training run over HTTP: the current snapshot, run
// status, cohort membership and an update intake for out-of-process
// contributors.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/parallaxml/parallax/coordinator"
	"github.com/parallaxml/parallax/pkg/api"
	pkgerrors "github.com/parallaxml/parallax/pkg/errors"
	"github.com/parallaxml/parallax/pkg/storage"
)

// MakeHandler mounts the coordinator API. The checkpoint routes are only
// mounted when a checkpoint store is configured.
func MakeHandler(svc coordinator.Service, checkpoints storage.Storage, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(loggingErrorEncoder(logger)),
	}

	mux.Route("/snapshot", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			getSnapshotEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "get-snapshot").ServeHTTP)
	})

	mux.Route("/status", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			getStatusEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "get-status").ServeHTTP)
	})

	mux.Route("/updates", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			submitUpdateEndpoint(svc),
			decodeSubmitReq,
			api.EncodeResponse,
			opts...,
		), "submit-update").ServeHTTP)
	})

	if checkpoints != nil {
		mux.Route("/checkpoints", func(r chi.Router) {
			r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
				listCheckpointsEndpoint(checkpoints),
				decodeListCheckpointsReq,
				api.EncodeResponse,
				opts...,
			), "list-checkpoints").ServeHTTP)
			r.Get("/{version}", otelhttp.NewHandler(kithttp.NewServer(
				getCheckpointEndpoint(checkpoints),
				decodeGetCheckpointReq,
				api.EncodeResponse,
				opts...,
			), "get-checkpoint").ServeHTTP)
		})
	}

	mux.Route("/cohort", func(r chi.Router) {
		r.Route("/{workerID}", func(r chi.Router) {
			r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
				joinCohortEndpoint(svc),
				decodeCohortReq("workerID"),
				api.EncodeResponse,
				opts...,
			), "join-cohort").ServeHTTP)
			r.Delete("/", otelhttp.NewHandler(kithttp.NewServer(
				leaveCohortEndpoint(svc),
				decodeCohortReq("workerID"),
				api.EncodeResponse,
				opts...,
			), "leave-cohort").ServeHTTP)
		})
	})

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", api.ContentType)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":      "ok",
			"instance_id": instanceID,
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeEmptyReq(_ context.Context, _ *http.Request) (any, error) {
	return nil, nil
}

func decodeSubmitReq(_ context.Context, r *http.Request) (any, error) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, pkgerrors.ErrInvalidData
	}

	return req, nil
}

func decodeListCheckpointsReq(_ context.Context, r *http.Request) (any, error) {
	offset, err := api.ReadNumQuery(r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, err
	}
	limit, err := api.ReadNumQuery(r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, err
	}

	return listCheckpointsReq{offset: offset, limit: limit}, nil
}

func decodeGetCheckpointReq(_ context.Context, r *http.Request) (any, error) {
	version, err := strconv.ParseUint(chi.URLParam(r, "version"), 10, 64)
	if err != nil {
		return nil, pkgerrors.ErrInvalidData
	}

	return getCheckpointReq{version: version}, nil
}

func decodeCohortReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return cohortReq{workerID: chi.URLParam(r, key)}, nil
	}
}

func loggingErrorEncoder(logger *slog.Logger) kithttp.ErrorEncoder {
	return func(ctx context.Context, err error, w http.ResponseWriter) {
		logger.Warn("failed to serve request", slog.Any("error", err))
		api.EncodeError(ctx, err, w)
	}
}
