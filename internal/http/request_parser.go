// Package http serves the dashboard JSON API.
//
// This file implements the helpers that read credentials, filters and JSON
// bodies off incoming requests.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"devopsdash/internal/core"
	"devopsdash/internal/services"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Query parameter names besides the credential ones.
const (
	paramIteration      = "iteration"
	paramQuery          = "query"
	paramArea           = "area"
	paramExcludeClosed  = "excludeClosed"
	paramExcludeRemoved = "excludeRemoved"
	paramExcludeDone    = "excludeDone"
	paramSort           = "sort"

	sortByState = "state"
)

// CredentialsFromQuery reads organization, project, team and the personal
// access token. Values are sanitized but not validated.
func CredentialsFromQuery(q url.Values) core.Credentials {
	return core.Credentials{
		Organization: sanitizeInput(q.Get(core.ParamOrganization)),
		Project:      sanitizeInput(q.Get(core.ParamProject)),
		Team:         sanitizeInput(q.Get(core.ParamTeam)),
		Token:        sanitizeInput(q.Get(core.ParamToken)),
	}
}

// ParseBacklogQuery returns the saved query or area filter of a work item
// listing. Flags accept anything strconv.ParseBool does; a bare flag
// ("?excludeClosed") counts as true.
func ParseBacklogQuery(q url.Values) (services.BacklogQuery, error) {
	out := services.BacklogQuery{
		QueryID: sanitizeInput(q.Get(paramQuery)),
		Area:    core.AreaFilter{AreaPath: sanitizeInput(q.Get(paramArea))},
	}

	var err error
	if out.Area.ExcludeClosed, err = parseFlag(q, paramExcludeClosed); err != nil {
		return services.BacklogQuery{}, err
	}
	if out.Area.ExcludeRemoved, err = parseFlag(q, paramExcludeRemoved); err != nil {
		return services.BacklogQuery{}, err
	}
	if out.Area.ExcludeDone, err = parseFlag(q, paramExcludeDone); err != nil {
		return services.BacklogQuery{}, err
	}
	return out, nil
}

// ParseSortByState reports whether a grid listing asked for ?sort=state.
// Without the parameter rows keep their fetch or stack rank order.
func ParseSortByState(q url.Values) (bool, error) {
	switch v := strings.ToLower(sanitizeInput(q.Get(paramSort))); v {
	case "":
		return false, nil
	case sortByState:
		return true, nil
	default:
		return false, fmt.Errorf("invalid %s %q: must be %q", paramSort, v, sortByState)
	}
}

func parseFlag(q url.Values, name string) (bool, error) {
	if !q.Has(name) {
		return false, nil
	}
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: must be a boolean", name, v)
	}
	return b, nil
}

// MoveBody is the payload of POST /api/workitems/move.
type MoveBody struct {
	IDs         []int  `json:"ids"`
	IterationID string `json:"iterationId"`
}

// DecodeJSONBody reads at most maxBodyBytes and rejects unknown fields and
// trailing data.
func DecodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes+1))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: unexpected data after the object")
	}
	return nil
}

// ParseMoveBody decodes and checks a move request.
func ParseMoveBody(r *http.Request) (MoveBody, error) {
	var body MoveBody
	if err := DecodeJSONBody(r, &body); err != nil {
		return MoveBody{}, err
	}
	body.IterationID = sanitizeInput(body.IterationID)
	if body.IterationID == "" {
		return MoveBody{}, errors.New("iterationId is required")
	}
	if len(body.IDs) == 0 {
		return MoveBody{}, errors.New("ids must list at least one work item")
	}
	for _, id := range body.IDs {
		if id <= 0 {
			return MoveBody{}, fmt.Errorf("invalid work item id %d", id)
		}
	}
	return body, nil
}

// sanitizeInput drops control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s))
}
