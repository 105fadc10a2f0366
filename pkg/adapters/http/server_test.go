package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/strata"
	shttp "github.com/aretw0/strata/pkg/adapters/http"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ages(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(false)
	require.NoError(t, g.AddNode("n1", graph.Attributes{"age": 10}))
	require.NoError(t, g.AddNode("n2", graph.Attributes{"age": 20}))
	require.NoError(t, g.AddNode("n3", graph.Attributes{"age": 30}))
	return g
}

func newServer(t *testing.T) (*strata.Workspace, http.Handler) {
	t.Helper()
	ws := strata.New(strata.WithGraph(ages(t)))
	srv := shttp.NewServer(ws, shttp.WithMetrics(observability.NewMetrics()))
	t.Cleanup(func() {
		srv.Close()
		ws.Close()
	})
	return ws, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStack(t *testing.T, rec *httptest.ResponseRecorder) shttp.StackResponse {
	t.Helper()
	var resp shttp.StackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestServer_FilterLifecycle(t *testing.T) {
	_, h := newServer(t)

	rec := do(t, h, http.MethodPost, "/filters", `{"type":"range","item_type":"nodes","field":"age","min":15}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeStack(t, rec).Nodes)

	rec = do(t, h, http.MethodPost, "/filters", `{"type":"terms","item_type":"nodes","field":"age","terms":["30"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeStack(t, rec).Nodes)

	rec = do(t, h, http.MethodPost, "/filters/past/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeStack(t, rec)
	assert.Len(t, resp.Stack.Past, 1)
	assert.Len(t, resp.Stack.Future, 1)

	rec = do(t, h, http.MethodPost, "/filters/future/0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeStack(t, rec).Nodes)

	rec = do(t, h, http.MethodPut, "/filters/current", `{"type":"terms","item_type":"nodes","field":"age","terms":["20"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var g graph.Graph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Equal(t, []string{"n2"}, g.NodeKeys())

	rec = do(t, h, http.MethodDelete, "/filters/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeStack(t, rec).Nodes)

	rec = do(t, h, http.MethodDelete, "/filters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeStack(t, rec).Stack.IsEmpty())
}

func TestServer_ErrorMapping(t *testing.T) {
	_, h := newServer(t)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"empty stack", http.MethodDelete, "/filters/current", "", http.StatusConflict},
		{"index out of bounds", http.MethodPost, "/filters/past/4", "", http.StatusConflict},
		{"bad index", http.MethodPost, "/filters/future/x", "", http.StatusBadRequest},
		{"bad json", http.MethodPost, "/filters", "{", http.StatusBadRequest},
		{"unknown kind", http.MethodPost, "/filters", `{"type":"fuzzy"}`, http.StatusUnprocessableEntity},
		{"invalid filter", http.MethodPost, "/filters", `{"type":"range","item_type":"nodes"}`, http.StatusUnprocessableEntity},
		{"broken script", http.MethodPost, "/filters", `{"type":"script","item_type":"nodes","script":"attributes.nope"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, shttp.StatusFor(fmt.Errorf("x: %w", filter.ErrEmptyStack)))
	assert.Equal(t, http.StatusUnprocessableEntity, shttp.StatusFor(&filter.PredicateError{Reason: "r"}))
	assert.Equal(t, http.StatusInternalServerError, shttp.StatusFor(errors.New("boom")))
}

func TestServer_InfoHealthMetrics(t *testing.T) {
	_, h := newServer(t)

	assert.JSONEq(t, `{"status":"ok"}`, do(t, h, http.MethodGet, "/health", "").Body.String())

	rec := do(t, h, http.MethodGet, "/info", "")
	assert.Contains(t, rec.Body.String(), "largest_components")

	rec = do(t, h, http.MethodGet, "/graph/full", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	do(t, h, http.MethodPost, "/filters", `{"type":"range","item_type":"nodes","field":"age","min":15}`)
	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), "strata_pipeline_stages_total")
}

func TestServer_EventsStreamDeltas(t *testing.T) {
	ws, h := newServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	// The ping is written after subscribing, so the change below is seen.
	require.NoError(t, ws.AddFilter(filter.RangeFilter{ItemType: filter.Nodes, Field: "age", Min: filter.Float(15)}))

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: {") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	var delta graph.Delta
	require.NoError(t, json.Unmarshal([]byte(data), &delta))
	assert.Equal(t, []string{"n1"}, delta.RemovedNodes)
}
