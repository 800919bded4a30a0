package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/lineagekit/internal/connection"
	"github.com/leapstack-labs/lineagekit/internal/state"
	"github.com/leapstack-labs/lineagekit/internal/testutil"
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	cfg.Logger = testutil.NewTestLogger(t)
	return New(cfg).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func openStore(t *testing.T) *state.Store {
	t.Helper()
	store, err := state.Open(context.Background(), ":memory:", state.Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, Config{})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestExtract(t *testing.T) {
	h := newTestServer(t, Config{})

	rec := do(t, h, http.MethodPost, "/api/v1/extract", `{
		"workflow_id": "daily_etl",
		"task_id": "load_users",
		"dialect": "PostgreSQL",
		"connection_id": "analytics_db",
		"sql": "INSERT INTO users SELECT id, name FROM staging_users"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	md := decodeBody[core.Metadata](t, rec)
	assert.Equal(t, "daily_etl.load_users", md.Name)
	assert.Equal(t, core.SourcePostgreSQL, md.SourceType)
	assert.Equal(t, "analytics_db", md.SourceName)
	assert.Equal(t, []string{"staging_users"}, core.TableNames(md.Inputs))
	assert.Equal(t, []string{"users"}, core.TableNames(md.Outputs))
	assert.NotContains(t, rec.Body.String(), "record_id")
}

func TestExtract_Errors(t *testing.T) {
	h := newTestServer(t, Config{})

	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{"invalid json", `{`, "invalid request body"},
		{"unknown field", `{"workflow_id":"w","task_id":"t","query":"x"}`, "invalid request body"},
		{"unknown dialect", `{"workflow_id":"w","task_id":"t","dialect":"cobol"}`, "unknown dialect"},
		{"missing task id", `{"workflow_id":"w"}`, "missing task_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/extract", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody[errorResponse](t, rec).Error, tt.errMsg)
		})
	}
}

func TestExtract_StoresRecord(t *testing.T) {
	store := openStore(t)
	h := newTestServer(t, Config{Records: store})

	body := `{"workflow_id":"w","task_id":"t","dialect":"mysql","sql":"INSERT INTO b SELECT * FROM a"}`
	rec := do(t, h, http.MethodPost, "/api/v1/extract", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[struct {
		RecordID string `json:"record_id"`
	}](t, rec)
	require.NotEmpty(t, resp.RecordID)

	got, err := store.GetRecord(context.Background(), resp.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "w.t", got.Name)
	assert.Equal(t, []string{"b"}, core.TableNames(got.Outputs))

	rec = do(t, h, http.MethodGet, "/api/v1/tasks/w.t/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	history := decodeBody[[]state.Record](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, resp.RecordID, history[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/tasks/w.t/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractBatch(t *testing.T) {
	h := newTestServer(t, Config{Concurrency: 2})

	rec := do(t, h, http.MethodPost, "/api/v1/extract/batch", `[
		{"workflow_id":"w","task_id":"a","dialect":"ansi","sql":"SELECT * FROM s"},
		{"workflow_id":"w"},
		{"workflow_id":"w","task_id":"c"}
	]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	items := decodeBody[[]batchItem](t, rec)
	require.Len(t, items, 3)
	assert.Equal(t, "w.a", items[0].Metadata.Name)
	assert.Equal(t, []string{"s"}, core.TableNames(items[0].Metadata.Inputs))
	assert.Nil(t, items[1].Metadata)
	assert.Contains(t, items[1].Error, "missing task_id")
	assert.Equal(t, core.SourceNone, items[2].Metadata.SourceType)

	rec = do(t, h, http.MethodPost, "/api/v1/extract/batch", `[null]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParse(t *testing.T) {
	h := newTestServer(t, Config{})

	tests := []struct {
		name    string
		body    string
		dialect core.Dialect
		in      []string
		out     []string
	}{
		{"default ansi", `{"sql":"INSERT INTO t SELECT * FROM S"}`, core.DialectNone, []string{"s"}, []string{"t"}},
		{"snowflake", `{"sql":"INSERT INTO t SELECT * FROM s","dialect":"snowflake"}`, core.DialectSnowflake, []string{"S"}, []string{"T"}},
		{"mysql", "{\"sql\":\"DELETE FROM `Audit`\",\"dialect\":\"mariadb\"}", core.DialectMySQL, nil, []string{"Audit"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/parse", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decodeBody[parseResponse](t, rec)
			assert.Equal(t, tt.dialect, resp.Dialect)
			assert.Equal(t, tt.in, nilIfEmpty(core.TableNames(resp.InTables)))
			assert.Equal(t, tt.out, nilIfEmpty(core.TableNames(resp.OutTables)))
		})
	}

	rec := do(t, h, http.MethodPost, "/api/v1/parse", `{"sql":"SELECT 1","dialect":"cobol"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorResponse](t, rec).Error, "available: ansi, mysql, postgres, snowflake")
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestDialects(t *testing.T) {
	h := newTestServer(t, Config{})
	rec := do(t, h, http.MethodGet, "/api/v1/dialects", "")
	require.Equal(t, http.StatusOK, rec.Code)

	names := decodeBody[[]string](t, rec)
	assert.Contains(t, names, "postgres")
	assert.Contains(t, names, "mysql")
	assert.Contains(t, names, "snowflake")
}

func TestConnection(t *testing.T) {
	h := newTestServer(t, Config{})
	rec := do(t, h, http.MethodGet, "/api/v1/connections/analytics_db", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h = newTestServer(t, Config{
		Connections: connection.NewStatic(&core.Connection{ID: "analytics_db", Type: "postgres", Host: "db", Port: 5432}),
	})
	rec = do(t, h, http.MethodGet, "/api/v1/connections/analytics_db", "")
	require.Equal(t, http.StatusOK, rec.Code)
	conn := decodeBody[core.Connection](t, rec)
	assert.Equal(t, "db", conn.Host)

	rec = do(t, h, http.MethodGet, "/api/v1/connections/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t, Config{})
	do(t, h, http.MethodPost, "/api/v1/extract", `{"workflow_id":"w","task_id":"m"}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `lineagekit_http_requests_total{method="POST",path="/api/v1/extract",status="200"}`)
	assert.Contains(t, body, `lineagekit_extractions_total{source_type="NONE",status="success"}`)
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, Config{CORSOrigins: []string{"https://catalog.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/dialects", nil)
	req.Header.Set("Origin", "https://catalog.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://catalog.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeListener_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := New(Config{Logger: testutil.NewTestLogger(t)})

	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
