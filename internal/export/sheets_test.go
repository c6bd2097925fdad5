package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
)

type sheetsCall struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

func newFakeSheets(t *testing.T, status int) (*SheetsWriter, *[]sheetsCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []sheetsCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(b, &body)

		mu.Lock()
		calls = append(calls, sheetsCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"A sheet with the name already exists"}}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	sw, err := NewSheetsWriterWithOptions(context.Background(), "sheet-123",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return sw, &calls
}

func TestSheetsWriter_WriteChecklist(t *testing.T) {
	sw, calls := newFakeSheets(t, http.StatusOK)
	c := Checklist{
		Title:   "Release Checklist - Sprint 4 - 2024-02-09",
		Columns: []string{"ID", "Title"},
		Rows:    [][]string{{"7", "Billing export"}, {"8", "Fix totals"}},
	}

	ref, err := sw.WriteChecklist(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "'Release Checklist - Sprint 4 - 2024-02-09'!A1:B3", ref)

	require.Len(t, *calls, 2)
	add := (*calls)[0]
	assert.Equal(t, http.MethodPost, add.Method)
	assert.True(t, strings.HasSuffix(add.Path, "/spreadsheets/sheet-123:batchUpdate"), add.Path)
	reqs := add.Body["requests"].([]any)
	props := reqs[0].(map[string]any)["addSheet"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, c.Title, props["title"])

	update := (*calls)[1]
	assert.Equal(t, http.MethodPut, update.Method)
	assert.Contains(t, update.Path, "/spreadsheets/sheet-123/values/")
	assert.Contains(t, update.Query, "valueInputOption=USER_ENTERED")
	assert.Equal(t, []any{
		[]any{"ID", "Title"},
		[]any{"7", "Billing export"},
		[]any{"8", "Fix totals"},
	}, update.Body["values"])
}

func TestSheetsWriter_AddSheetFailure(t *testing.T) {
	sw, calls := newFakeSheets(t, http.StatusBadRequest)

	_, err := sw.WriteChecklist(context.Background(), Checklist{Title: "dup", Columns: []string{"ID"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `add sheet "dup"`)
	assert.Len(t, *calls, 1, "values are not written when the tab cannot be created")
}

func TestNewSheetsWriterRequiresSpreadsheet(t *testing.T) {
	_, err := NewSheetsWriter(context.Background(), "  ")
	require.EqualError(t, err, "missing GOOGLE_SPREADSHEET_ID")
}

func TestNewSheetsWriterRequiresCredentials(t *testing.T) {
	for _, key := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(key, "")
	}
	_, err := NewSheetsWriter(context.Background(), "sheet-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestMemoryWriter(t *testing.T) {
	m := NewMemoryWriter()
	ref, err := m.WriteChecklist(context.Background(), Checklist{Title: "a"})
	require.NoError(t, err)
	assert.Equal(t, "mem:1", ref)
	assert.Equal(t, "a", m.Checklists()[0].Title)
}
