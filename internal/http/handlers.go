package http

import (
	"context"
	"net/http"

	"github.com/samber/lo"

	"devopsdash/internal/core"
	"devopsdash/internal/log"
	"devopsdash/internal/services"
)

// loader produces the payload of a read-only endpoint for one scope.
type loader func(ctx context.Context, sc services.Scope, r *http.Request) (any, error)

// view adapts a loader to a handler: credentials check before any remote
// call, per request timeout, JSON response.
func (s *Server) view(op string, load loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := s.scope(w, r, op)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.deps.RequestTimeout)
		defer cancel()

		out, err := load(ctx, sc, r)
		if err != nil {
			s.writeError(w, r, op, err)
			return
		}
		NewJSONResponse(out).Write(w)
	}
}

func (s *Server) scope(w http.ResponseWriter, r *http.Request, op string) (services.Scope, bool) {
	sc, err := services.NewScope(s.deps.Factory, CredentialsFromQuery(r.URL.Query()))
	if err != nil {
		s.writeError(w, r, op, err)
		return services.Scope{}, false
	}
	return sc, true
}

// writeError logs server side failures and renders err with ErrorFor.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorFor(err)
	logger := log.FromContext(r.Context())
	if resp.statusCode >= http.StatusInternalServerError {
		fields := log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "")
		fields[log.FieldStatusCode] = resp.statusCode
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, op, fields)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, resp.statusCode,
			log.FieldError, err)
	}
	resp.Write(w)
}

func (s *Server) iterations(ctx context.Context, sc services.Scope, _ *http.Request) (any, error) {
	its, err := s.deps.Dashboard.Iterations(ctx, sc)
	if err != nil {
		return nil, err
	}
	return map[string]any{"iterations": its}, nil
}

func (s *Server) states(ctx context.Context, sc services.Scope, _ *http.Request) (any, error) {
	return s.deps.Dashboard.States(ctx, sc)
}

func (s *Server) areas(ctx context.Context, sc services.Scope, _ *http.Request) (any, error) {
	areas, err := sc.Client.ListAreaPaths(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"areas": areas}, nil
}

func (s *Server) fields(ctx context.Context, sc services.Scope, _ *http.Request) (any, error) {
	defs, err := s.deps.Dashboard.Fields(ctx, sc)
	if err != nil {
		return nil, err
	}
	return map[string]any{"fields": defs}, nil
}

// workItems serves the iteration grid by default and the backlog grid when a
// saved query or an area path is given without an iteration. ?sort=state
// reorders either grid by state rank.
func (s *Server) workItems(ctx context.Context, sc services.Scope, r *http.Request) (any, error) {
	q := r.URL.Query()
	byState, err := ParseSortByState(q)
	if err != nil {
		return nil, badRequest{err}
	}

	var view services.GridView
	iteration := sanitizeInput(q.Get(paramIteration))
	if iteration == "" && (q.Get(paramQuery) != "" || q.Get(paramArea) != "") {
		bq, err := ParseBacklogQuery(q)
		if err != nil {
			return nil, badRequest{err}
		}
		view, err = s.deps.Dashboard.Backlog(ctx, sc, bq)
		if err != nil {
			return nil, err
		}
	} else {
		view, err = s.deps.Dashboard.Iteration(ctx, sc, iteration)
		if err != nil {
			return nil, err
		}
	}

	if byState {
		view = view.SortedByState()
	}
	return view, nil
}

func (s *Server) overview(ctx context.Context, sc services.Scope, _ *http.Request) (any, error) {
	return s.deps.Dashboard.Overview(ctx, sc)
}

func (s *Server) age(ctx context.Context, sc services.Scope, _ *http.Request) (any, error) {
	return s.deps.Dashboard.Age(ctx, sc)
}

func (s *Server) leadCycleTime(ctx context.Context, sc services.Scope, _ *http.Request) (any, error) {
	return s.deps.Dashboard.LeadCycleTime(ctx, sc)
}

// handleMove answers 202 when the moves were queued for the worker and 200
// when they were applied inline.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.scope(w, r, log.OpMove)
	if !ok {
		return
	}
	body, err := ParseMoveBody(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.RequestTimeout)
	defer cancel()

	reqs, err := s.deps.Mover.Move(ctx, sc, body.IDs, body.IterationID)
	if err != nil {
		s.writeError(w, r, log.OpMove, err)
		return
	}

	status := http.StatusOK
	if lo.SomeBy(reqs, func(m core.MoveRequest) bool { return m.Status == core.MovePending }) {
		status = http.StatusAccepted
	}
	log.FromContext(ctx).InfoContext(ctx, "Work items move requested",
		log.FieldOrganization, sc.Creds.Organization,
		log.FieldProject, sc.Creds.Project,
		log.FieldIterationID, body.IterationID,
		log.FieldCount, len(reqs))
	NewJSONResponse(map[string]any{"requests": reqs}).Status(status).Write(w)
}

func (s *Server) handleMoveStatus(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(r.PathValue("id"))
	req, err := s.deps.Mover.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, log.OpMove, err)
		return
	}
	NewJSONResponse(req).Write(w)
}

// handleReleaseChecklist builds the checklist of ?iteration= (the current
// sprint by default) and writes it to the configured spreadsheet.
func (s *Server) handleReleaseChecklist(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		ErrorResponse(http.StatusServiceUnavailable, "release checklist export is not configured").Write(w)
		return
	}
	sc, ok := s.scope(w, r, log.OpExport)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.RequestTimeout)
	defer cancel()

	out, err := s.deps.Exporter.ReleaseChecklist(ctx, sc, sanitizeInput(r.URL.Query().Get(paramIteration)))
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	status := http.StatusOK
	if out.Ref != "" {
		status = http.StatusCreated
	}
	NewJSONResponse(out).Status(status).Write(w)
}

// badRequest marks a malformed filter so ErrorFor renders it as a 400.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }
