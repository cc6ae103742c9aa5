package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallaxml/parallax/coordinator"
	"github.com/parallaxml/parallax/coordinator/api"
	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/storage"
)

func newServer(t *testing.T) (*httptest.Server, coordinator.Service) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	checkpoints := storage.NewInMemoryStorage()
	svc, err := coordinator.NewService(coordinator.Config{
		Strategy:     model.Downpour,
		LearningRate: 0.5,
	}, model.Vector{1, 1}, checkpoints, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(api.MakeHandler(svc, checkpoints, logger, "test-instance"))
	t.Cleanup(ts.Close)

	return ts, svc
}

func TestGetSnapshot(t *testing.T) {
	t.Parallel()

	ts, _ := newServer(t)

	resp, err := http.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap model.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, uint64(0), snap.Version)
	assert.Equal(t, model.Vector{1, 1}, snap.Parameters)
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	ts, svc := newServer(t)
	require.NoError(t, svc.Join(context.Background(), "w0"))

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status coordinator.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, model.Downpour, status.Strategy)
	assert.Equal(t, []string{"w0"}, status.Cohort)
}

func TestSubmitUpdate(t *testing.T) {
	t.Parallel()

	ts, svc := newServer(t)

	body, err := json.Marshal(model.Update{WorkerID: "w0", BaseVersion: 0, Delta: model.Vector{2, 2}})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/updates", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Version   uint64 `json:"version"`
		Staleness uint64 `json:"staleness"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, uint64(1), result.Version)
	assert.Equal(t, "Applied", result.Status)

	snap := svc.Publish(context.Background())
	assert.Equal(t, model.Vector{0, 0}, snap.Parameters)
}

func TestSubmitUpdateErrors(t *testing.T) {
	t.Parallel()

	ts, _ := newServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "malformed body", body: "{", code: http.StatusBadRequest},
		{name: "missing worker id", body: `{"base_version":0,"delta":[1,1]}`, code: http.StatusBadRequest},
		{name: "empty delta", body: `{"worker_id":"w0","base_version":0}`, code: http.StatusBadRequest},
		{name: "dimension mismatch", body: `{"worker_id":"w0","base_version":0,"delta":[1,2,3]}`, code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := http.Post(ts.URL+"/updates", "application/json", bytes.NewReader([]byte(tt.body)))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestCohortRoutes(t *testing.T) {
	t.Parallel()

	ts, _ := newServer(t)
	client := ts.Client()

	resp, err := client.Post(ts.URL+"/cohort/w0", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = client.Post(ts.URL+"/cohort/w0", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/cohort/w0", nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, err = http.NewRequest(http.MethodDelete, ts.URL+"/cohort/w0", nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListCheckpoints(t *testing.T) {
	t.Parallel()

	ts, svc := newServer(t)
	ctx := context.Background()

	// Version 0 is checkpointed at construction; two submissions add two more.
	for i := 0; i < 2; i++ {
		_, err := svc.Submit(ctx, model.Update{WorkerID: "w0", Delta: model.Vector{1, 1}})
		require.NoError(t, err)
	}

	resp, err := http.Get(ts.URL + "/checkpoints?offset=1&limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Checkpoints []model.Snapshot `json:"checkpoints"`
		Total       uint64           `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, uint64(3), page.Total)
	require.Len(t, page.Checkpoints, 2)
	assert.Equal(t, uint64(1), page.Checkpoints[0].Version)
	assert.Equal(t, uint64(2), page.Checkpoints[1].Version)

	resp, err = http.Get(ts.URL + "/checkpoints?limit=0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/checkpoints?offset=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetCheckpoint(t *testing.T) {
	t.Parallel()

	ts, _ := newServer(t)

	resp, err := http.Get(ts.URL + "/checkpoints/0")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap model.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, uint64(0), snap.Version)
	assert.Equal(t, model.Vector{1, 1}, snap.Parameters)

	resp, err = http.Get(ts.URL + "/checkpoints/42")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/checkpoints/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts, _ := newServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test-instance", health["instance_id"])
}
