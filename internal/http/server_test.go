package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devopsdash/internal/core"
	"devopsdash/internal/devops"
	"devopsdash/internal/devops/memory"
	"devopsdash/internal/export"
	"devopsdash/internal/middleware/ratelimit"
	"devopsdash/internal/services"
	"devopsdash/internal/storage"
)

const credsQuery = "organization=org&project=Demo&team=Demo+Team&personalAccessToken=pat"

type testEnv struct {
	srv    *Server
	store  *memory.Store
	repo   *storage.SQLiteRepository
	writer *export.MemoryWriter
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "moves.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	store := memory.New(memory.DefaultSeed())
	writer := export.NewMemoryWriter()
	dashboard := services.NewDashboard(nil, nil, nil)
	deps := Deps{
		Factory:   store.Factory(),
		Dashboard: dashboard,
		Mover:     services.NewMover(repo, nil),
		Exporter:  services.NewExporter(dashboard, writer),
		Store:     repo,
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, repo: repo, writer: writer}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

// failingClient answers every iteration lookup with a remote error.
type failingClient struct {
	devops.Client
	err error
}

func (f failingClient) ListIterations(context.Context) ([]core.Iteration, error) {
	return nil, f.err
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])

	rr = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, env.repo.Close())
	rr = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "not_ready", decode[map[string]any](t, rr)["status"])
}

func TestMiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = env.do(t, http.MethodGet, "/api/states?"+credsQuery, "")
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestMissingCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{
			name:   "none",
			target: "/api/iterations",
			want:   "Missing required query parameter(s): organization, project, personalAccessToken",
		},
		{
			name:   "token only",
			target: "/api/charts/overview?organization=org&project=Demo",
			want:   "Missing required query parameter(s): personalAccessToken",
		},
		{
			name:   "blank values count as missing",
			target: "/api/workitems?organization=%20&project=Demo&personalAccessToken=pat",
			want:   "Missing required query parameter(s): organization",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.want, decode[map[string]string](t, rr)["error"])
		})
	}
}

func TestListEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/iterations?"+credsQuery, "")
	require.Equal(t, http.StatusOK, rr.Code)
	its := decode[struct{ Iterations []core.Iteration }](t, rr).Iterations
	require.Len(t, its, 3)
	assert.Equal(t, core.BacklogName, its[0].Name)

	rr = env.do(t, http.MethodGet, "/api/states?"+credsQuery, "")
	require.Equal(t, http.StatusOK, rr.Code)
	states := decode[devops.ProjectStates](t, rr)
	assert.Equal(t, core.StateNew, states.States[0].Name)
	assert.Equal(t, core.StateClosed, states.States[len(states.States)-1].Name)

	rr = env.do(t, http.MethodGet, "/api/areas?"+credsQuery, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[struct{ Areas []core.AreaPath }](t, rr).Areas, 3)

	rr = env.do(t, http.MethodGet, "/api/fields?"+credsQuery, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, decode[struct{ Fields []core.FieldDefinition }](t, rr).Fields)
}

func TestWorkItems(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("current iteration by default", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/workitems?"+credsQuery, "")
		require.Equal(t, http.StatusOK, rr.Code)
		view := decode[services.GridView](t, rr)
		require.NotNil(t, view.Iteration)
		assert.Equal(t, "it-2", view.Iteration.ID)
		assert.Len(t, view.Items, 2)
	})

	t.Run("unknown iteration", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/workitems?iteration=it-9&"+credsQuery, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "could not find iteration: it-9", decode[map[string]string](t, rr)["error"])
	})

	t.Run("saved query", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/workitems?query=backlog&"+credsQuery, "")
		require.Equal(t, http.StatusOK, rr.Code)
		view := decode[services.GridView](t, rr)
		assert.Nil(t, view.Iteration)
		require.Len(t, view.Items, 2)
		assert.Equal(t, 102, view.Items[0].ID)
	})

	t.Run("area path", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, `/api/workitems?area=Demo%5CApi&excludeRemoved&`+credsQuery, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode[services.GridView](t, rr).Items, 2)
	})

	t.Run("sorted by state", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/workitems?sort=state&"+credsQuery, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		view := decode[services.GridView](t, rr)
		require.Len(t, view.Items, 2)
		assert.Equal(t, []int{102, 101}, []int{view.Items[0].ID, view.Items[1].ID})
	})

	t.Run("bad sort", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/workitems?sort=title&"+credsQuery, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("backlog has no sprint grid", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/workitems?iteration=backlog&"+credsQuery, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bad flag", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/workitems?area=Demo&excludeClosed=maybe&"+credsQuery, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCharts(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/charts/overview", "/api/charts/age", "/api/charts/lead-cycle-time"} {
		t.Run(path, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, path+"?"+credsQuery, "")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Contains(t, decode[map[string]json.RawMessage](t, rr), "states")
		})
	}

	rr := env.do(t, http.MethodGet, "/api/charts/overview?"+credsQuery, "")
	view := decode[struct {
		CurrentIteration []map[string]any `json:"currentIteration"`
	}](t, rr)
	require.NotEmpty(t, view.CurrentIteration)
	assert.Equal(t, "18th Mar 2024", view.CurrentIteration[0]["Date"])
}

func TestRemoteErrorIsBadGateway(t *testing.T) {
	store := memory.New(memory.DefaultSeed())
	remote := &core.APIError{Method: http.MethodGet, URL: "https://dev.azure.com/org/Demo/_apis/work", StatusCode: 401, Body: "unauthorized"}
	env := newTestEnv(t, func(d *Deps) {
		d.Factory = devops.FactoryFunc(func(core.Credentials) (devops.Client, error) {
			return failingClient{Client: store, err: remote}, nil
		})
	})

	rr := env.do(t, http.MethodGet, "/api/iterations?"+credsQuery, "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, 401.0, body["remoteStatus"])
	assert.Equal(t, "unauthorized", body["remoteBody"])
}

func TestRemoteTimeoutIsGatewayTimeout(t *testing.T) {
	store := memory.New(memory.DefaultSeed())
	remote := &core.APIError{Method: http.MethodGet, URL: "https://dev.azure.com/org/Demo/_apis/work", Err: context.DeadlineExceeded}
	env := newTestEnv(t, func(d *Deps) {
		d.Factory = devops.FactoryFunc(func(core.Credentials) (devops.Client, error) {
			return failingClient{Client: store, err: remote}, nil
		})
	})

	rr := env.do(t, http.MethodGet, "/api/iterations?"+credsQuery, "")
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}

func TestMoveToBacklog(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/workitems/move?"+credsQuery, `{"ids":[101],"iterationId":"backlog"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	reqs := decode[struct{ Requests []core.MoveRequest }](t, rr).Requests
	require.Len(t, reqs, 1)
	assert.Equal(t, core.MoveApplied, reqs[0].Status)
	assert.Equal(t, "Demo", reqs[0].IterationPath)

	items, err := env.store.GetWorkItems(context.Background(), []int{101})
	require.NoError(t, err)
	assert.Equal(t, "Demo", items[0].IterationPath)
	assert.Equal(t, core.BacklogName, items[0].Iteration)
}

func TestMoveInline(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/workitems/move?"+credsQuery, `{"ids":[103],"iterationId":"it-2"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	reqs := decode[struct{ Requests []core.MoveRequest }](t, rr).Requests
	require.Len(t, reqs, 1)
	assert.Equal(t, core.MoveApplied, reqs[0].Status)

	items, err := env.store.GetWorkItems(context.Background(), []int{103})
	require.NoError(t, err)
	assert.Equal(t, "Sprint 2", items[0].Iteration)

	rr = env.do(t, http.MethodGet, "/api/moves/"+reqs[0].ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, core.MoveApplied, decode[core.MoveRequest](t, rr).Status)

	rr = env.do(t, http.MethodGet, "/api/moves/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `move_requests{status="applied"} 1`)
}

func TestMoveRejects(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty body", body: "", want: http.StatusBadRequest},
		{name: "unknown field", body: `{"ids":[1],"iterationId":"it-1","extra":true}`, want: http.StatusBadRequest},
		{name: "no ids", body: `{"ids":[],"iterationId":"it-1"}`, want: http.StatusBadRequest},
		{name: "no iteration", body: `{"ids":[101]}`, want: http.StatusBadRequest},
		{name: "unknown iteration", body: `{"ids":[101],"iterationId":"it-9"}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/workitems/move?"+credsQuery, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}

	rr := env.do(t, http.MethodGet, "/api/workitems/move?"+credsQuery, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMoveRateLimited(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1, MutatingOnly: true})
	})

	body := `{"ids":[101],"iterationId":"it-1"}`
	rr := env.do(t, http.MethodPost, "/api/workitems/move?"+credsQuery, body)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/workitems/move?"+credsQuery, body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// reads are not limited
	rr = env.do(t, http.MethodGet, "/api/iterations?"+credsQuery, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReleaseChecklist(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/export/release-checklist?iteration=it-2&"+credsQuery, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	out := decode[services.ExportResult](t, rr)
	assert.Equal(t, "mem:1", out.Ref)
	assert.True(t, strings.HasPrefix(out.Checklist.Title, "Release Checklist - Sprint 2 - "))
	assert.Len(t, env.writer.Checklists(), 1)

	rr = env.do(t, http.MethodPost, "/api/export/release-checklist?iteration=it-9&"+credsQuery, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReleaseChecklistNotConfigured(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Exporter = nil })
	rr := env.do(t, http.MethodPost, "/api/export/release-checklist?"+credsQuery, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
