package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/app/cancel"
	"github.com/ptmflow/ptmflow/internal/app/create"
	"github.com/ptmflow/ptmflow/internal/app/history"
	"github.com/ptmflow/ptmflow/internal/app/list"
	"github.com/ptmflow/ptmflow/internal/app/remove"
	"github.com/ptmflow/ptmflow/internal/app/start"
	"github.com/ptmflow/ptmflow/internal/app/status"
	"github.com/ptmflow/ptmflow/internal/app/stream"
	"github.com/ptmflow/ptmflow/internal/eventbus"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/pipeline"
	"github.com/ptmflow/ptmflow/internal/server"
	"github.com/ptmflow/ptmflow/internal/storage/memory"
)

// newTestServer wires a full server over memory storage and the given stage
// implementations.
func newTestServer(t *testing.T, stages map[model.Stage]pipeline.Stage) *server.Server {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	broker, err := eventbus.NewBroker(eventbus.BrokerConfig{BufferSize: 256})
	require.NoError(t, err)
	t.Cleanup(broker.Close)

	registry, err := pipeline.NewRegistry(stages)
	require.NoError(t, err)

	manager, err := pipeline.NewManager(pipeline.ManagerConfig{
		OrderRepository: repo,
		EventRepository: repo,
		Broker:          broker,
		Registry:        registry,
	})
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)

	createSvc, err := create.NewService(create.ServiceConfig{Repository: repo})
	require.NoError(t, err)
	listSvc, err := list.NewService(list.ServiceConfig{Repository: repo})
	require.NoError(t, err)
	statusSvc, err := status.NewService(status.ServiceConfig{Repository: repo})
	require.NoError(t, err)
	startSvc, err := start.NewService(start.ServiceConfig{Repository: repo, Starter: manager})
	require.NoError(t, err)
	cancelSvc, err := cancel.NewService(cancel.ServiceConfig{Repository: repo, Canceller: manager})
	require.NoError(t, err)
	removeSvc, err := remove.NewService(remove.ServiceConfig{Repository: repo, Canceller: manager})
	require.NoError(t, err)
	historySvc, err := history.NewService(history.ServiceConfig{OrderRepository: repo, EventRepository: repo})
	require.NoError(t, err)
	streamSvc, err := stream.NewService(stream.ServiceConfig{Repository: repo, Broker: broker})
	require.NoError(t, err)

	srv, err := server.New(server.Config{
		CreateService:  createSvc,
		ListService:    listSvc,
		StatusService:  statusSvc,
		StartService:   startSvc,
		CancelService:  cancelSvc,
		RemoveService:  removeSvc,
		HistoryService: historySvc,
		StreamService:  streamSvc,
		PingInterval:   50 * time.Millisecond,
	})
	require.NoError(t, err)

	return srv
}

func instantStages() map[model.Stage]pipeline.Stage {
	stages := map[model.Stage]pipeline.Stage{}
	for _, s := range model.Stages {
		s := s
		stages[s] = pipeline.StageFunc(func(ctx context.Context, req pipeline.Request) (pipeline.Outputs, error) {
			req.Emit("work", model.EventStatusRunning, 50, fmt.Sprintf("%s: 1/2", s))
			req.Emit("work", model.EventStatusCompleted, 100, string(s)+" complete")
			return pipeline.Outputs{string(s): "/data/" + string(s) + ".out"}, nil
		})
	}
	return stages
}

func blockedStages() map[model.Stage]pipeline.Stage {
	stages := map[model.Stage]pipeline.Stage{}
	for _, s := range model.Stages {
		stages[s] = pipeline.StageFunc(func(ctx context.Context, req pipeline.Request) (pipeline.Outputs, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	}
	return stages
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestServerOrderLifecycle(t *testing.T) {
	srv := newTestServer(t, instantStages())
	h := srv.Handler()

	// Create.
	rec, order := doJSON(t, h, http.MethodPost, "/api/v1/orders",
		map[string]string{"code": "ptm-001", "project_name": "Phospho"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, "ptm-001", order["code"])

	// List.
	rec, listRes := doJSON(t, h, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, listRes["orders"], 1)

	// Start.
	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/orders/ptm-001/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Poll status until the pipeline completes.
	require.Eventually(t, func() bool {
		_, got := doJSON(t, h, http.MethodGet, "/api/v1/orders/ptm-001", nil)
		return got["status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	_, got := doJSON(t, h, http.MethodGet, "/api/v1/orders/ptm-001", nil)
	assert.EqualValues(t, 100, got["progress_pct"])

	// Full event log, ordered by timestamp.
	rec, logRes := doJSON(t, h, http.MethodGet, "/api/v1/orders/ptm-001/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := logRes["events"].([]interface{})
	require.Len(t, events, 6)
	var lastTs float64
	for _, raw := range events {
		e := raw.(map[string]interface{})
		ts := e["created_at_ms"].(float64)
		assert.Greater(t, ts, lastTs)
		lastTs = ts
	}

	// Stage filter narrows the log.
	rec, logRes = doJSON(t, h, http.MethodGet, "/api/v1/orders/ptm-001/events?stage=preprocessing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, logRes["events"], 2)

	// Delete terminal order and confirm it is gone.
	rec, _ = doJSON(t, h, http.MethodDelete, "/api/v1/orders/ptm-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/orders/ptm-001", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerCreateValidation(t *testing.T) {
	srv := newTestServer(t, instantStages())
	h := srv.Handler()

	tests := map[string]struct {
		body    interface{}
		expCode int
	}{
		"Invalid code characters": {
			body:    map[string]string{"code": "not ok!", "project_name": "x"},
			expCode: http.StatusBadRequest,
		},
		"Missing project name": {
			body:    map[string]string{"code": "ptm-002"},
			expCode: http.StatusBadRequest,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/orders", tt.body)
			assert.Equal(t, tt.expCode, rec.Code)
		})
	}

	// Duplicate code conflicts.
	rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/orders", map[string]string{"code": "dup", "project_name": "x"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/orders", map[string]string{"code": "dup", "project_name": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServerDeleteActiveOrder(t *testing.T) {
	srv := newTestServer(t, blockedStages())
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/orders", map[string]string{"code": "ptm-001", "project_name": "x"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/orders/ptm-001/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Active order cannot be deleted.
	rec, _ = doJSON(t, h, http.MethodDelete, "/api/v1/orders/ptm-001", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unless forced, which cancels it first.
	rec, _ = doJSON(t, h, http.MethodDelete, "/api/v1/orders/ptm-001?force=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerCancelPendingRejected(t *testing.T) {
	srv := newTestServer(t, instantStages())
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/orders", map[string]string{"code": "ptm-001", "project_name": "x"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/orders/ptm-001/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerBadQueries(t *testing.T) {
	srv := newTestServer(t, instantStages())
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodGet, "/api/v1/orders?status=exploded", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/orders?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/orders/nope/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerStream(t *testing.T) {
	srv := newTestServer(t, instantStages())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/orders", map[string]string{"code": "ptm-001", "project_name": "x"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Open the stream before starting so no live event is missed.
	resp, err := http.Get(ts.URL + "/api/v1/stream/orders/ptm-001")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/orders/ptm-001/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Read frames until all 6 progress events arrived. Pings may interleave.
	scanner := bufio.NewScanner(resp.Body)
	progress := 0
	pings := 0
	var current string
	deadline := time.After(5 * time.Second)

	for progress < 6 {
		select {
		case <-deadline:
			t.Fatalf("timed out, got %d progress events", progress)
		default:
		}

		if !scanner.Scan() {
			t.Fatalf("stream ended early, got %d progress events", progress)
		}
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if current == "ping" {
				pings++
				continue
			}
			var e map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
			assert.NotEmpty(t, e["id"])
			assert.NotEmpty(t, e["stage"])
			assert.Positive(t, e["created_at_ms"].(float64))
			progress++
		}
	}

	// Streaming an unknown order is a 404 before any SSE headers.
	resp2, err := http.Get(ts.URL + "/api/v1/stream/orders/nope")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
