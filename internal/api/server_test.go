package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/config"
	"github.com/tablesmith/tablesmith/internal/engine"
	"github.com/tablesmith/tablesmith/internal/pgtest"
	"github.com/tablesmith/tablesmith/internal/schema"
	"github.com/tablesmith/tablesmith/internal/ws"
)

type fixture struct {
	handler http.Handler
	catalog *catalog.Mock
	db      *pgtest.FakeDB
	hub     *ws.Hub
}

func testServer(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	cfg := &config.Config{Version: 1}
	cfg.Drafts.Directory = t.TempDir()
	m := catalog.NewMock(
		schema.TableSnapshot{
			TableName: "users",
			Columns: []schema.Column{
				{Name: "id", DataType: schema.Integer, Constraints: []schema.Constraint{schema.PrimaryKey()}},
				{Name: "name", DataType: schema.Text},
			},
		},
		schema.TableSnapshot{
			TableName: "orgs",
			Columns: []schema.Column{
				{Name: "id", DataType: schema.Integer, Constraints: []schema.Constraint{schema.PrimaryKey()}},
			},
		},
	)
	db := &pgtest.FakeDB{}
	eng := engine.New(cfg, db, m, nil, slog.Default())
	s := New(eng, slog.Default(), 0, opts...)
	return &fixture{handler: s.Handler(), catalog: m, db: db, hub: s.hub}
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if out != nil {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}
	return w.Code
}

func (f *fixture) open(t *testing.T, table string) SessionResponse {
	t.Helper()
	var resp SessionResponse
	if code := f.do(t, "POST", "/api/sessions", OpenSessionRequest{Table: table}, &resp); code != http.StatusCreated {
		t.Fatalf("open session: status = %d", code)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	f := testServer(t)
	var resp map[string]any
	if code := f.do(t, "GET", "/api/health", nil, &resp); code != http.StatusOK {
		t.Errorf("status = %d, want %d", code, http.StatusOK)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want %q", resp["status"], "ok")
	}
	if resp["sessions"] != float64(0) {
		t.Errorf("sessions = %v, want 0", resp["sessions"])
	}
	if _, ok := resp["clients"]; ok {
		t.Error("clients reported without a hub")
	}
}

func TestListAndDescribeTables(t *testing.T) {
	f := testServer(t)
	var tables []schema.TableOverview
	if code := f.do(t, "GET", "/api/tables", nil, &tables); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(tables) != 2 || tables[0].TableName != "orgs" {
		t.Errorf("tables = %+v", tables)
	}

	var snap schema.TableSnapshot
	if code := f.do(t, "GET", "/api/tables/users", nil, &snap); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if snap.TableName != "users" || len(snap.Columns) != 2 || !snap.Columns[0].IsPrimaryKey() {
		t.Errorf("snapshot = %+v", snap)
	}

	var e map[string]string
	if code := f.do(t, "GET", "/api/tables/ghosts", nil, &e); code != http.StatusNotFound || e["error"] == "" {
		t.Errorf("missing table: status = %d, body = %v", code, e)
	}
}

func TestSessionFlow(t *testing.T) {
	f := testServer(t)
	opened := f.open(t, "users")
	if opened.ID == "" || opened.Table != "users" || len(opened.Tables) != 2 {
		t.Fatalf("opened = %+v", opened)
	}
	base := "/api/sessions/" + opened.ID

	var pending PendingResponse
	code := f.do(t, "POST", base+"/events", ApplyEventsRequest{Events: []schema.EventRecord{
		{Kind: schema.KindAddColumn, Column: "email", Type: "text"},
		{Kind: schema.KindRenameColumn, Column: "name", NewName: "username"},
		{Kind: schema.KindAddColumn, Column: "age", Type: "integer"},
		{Kind: schema.KindRemoveColumn, Column: "age"},
		{Kind: schema.KindRenameTable, NewName: "customers"},
	}}, &pending)
	if code != http.StatusOK || pending.Applied != 5 {
		t.Fatalf("apply: status = %d, resp = %+v", code, pending)
	}
	if len(pending.Pending) != 3 {
		t.Errorf("pending = %+v", pending.Pending)
	}

	var plan PlanResponse
	if code := f.do(t, "GET", base+"/plan", nil, &plan); code != http.StatusOK {
		t.Fatalf("plan: status = %d", code)
	}
	if len(plan.Statements) != 3 || plan.Statements[0] != `ALTER TABLE "users" RENAME TO "customers"` {
		t.Errorf("plan = %v", plan.Statements)
	}

	var got SessionResponse
	f.do(t, "GET", base, nil, &got)
	if _, ok := got.Preview.Column("username"); !ok || got.Preview.TableName != "customers" {
		t.Errorf("preview = %+v", got.Preview)
	}
	f.catalog.SetSnapshot(got.Preview)

	var commit CommitResponse
	if code := f.do(t, "POST", base+"/commit", nil, &commit); code != http.StatusOK {
		t.Fatalf("commit: status = %d", code)
	}
	if len(commit.Statements) != 3 || len(f.db.Committed) != 3 || commit.Snapshot.TableName != "customers" {
		t.Errorf("commit = %+v, committed = %v", commit, f.db.Committed)
	}

	var sessions []engine.SessionState
	f.do(t, "GET", "/api/sessions", nil, &sessions)
	if len(sessions) != 1 || sessions[0].Table != "customers" || len(sessions[0].Pending) != 0 {
		t.Errorf("sessions = %+v", sessions)
	}

	if code := f.do(t, "DELETE", base, nil, nil); code != http.StatusOK {
		t.Errorf("close: status = %d", code)
	}
	if code := f.do(t, "GET", base, nil, nil); code != http.StatusNotFound {
		t.Errorf("closed session: status = %d", code)
	}
}

func TestApplyEventsStopsAtInvalid(t *testing.T) {
	f := testServer(t)
	opened := f.open(t, "users")

	var pending PendingResponse
	code := f.do(t, "POST", "/api/sessions/"+opened.ID+"/events", ApplyEventsRequest{Events: []schema.EventRecord{
		{Kind: schema.KindAddColumn, Column: "email", Type: "text"},
		{Kind: schema.KindAddColumn, Column: `bad"name`, Type: "text"},
		{Kind: schema.KindAddColumn, Column: "phone", Type: "text"},
	}}, &pending)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if pending.Applied != 1 || len(pending.Pending) != 1 || pending.Error == "" {
		t.Errorf("resp = %+v", pending)
	}
}

func TestCommitFailureReturnsConflict(t *testing.T) {
	f := testServer(t)
	f.db.FailOn = "ADD COLUMN"
	opened := f.open(t, "users")
	base := "/api/sessions/" + opened.ID

	f.do(t, "POST", base+"/events", ApplyEventsRequest{Events: []schema.EventRecord{
		{Kind: schema.KindAddColumn, Column: "email", Type: "text"},
	}}, nil)

	var e map[string]string
	if code := f.do(t, "POST", base+"/commit", nil, &e); code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%v)", code, e)
	}
	var got SessionResponse
	f.do(t, "GET", base, nil, &got)
	if len(got.Pending) != 1 {
		t.Errorf("pending after failed commit = %+v", got.Pending)
	}

	var discarded PendingResponse
	f.do(t, "POST", base+"/discard", nil, &discarded)
	f.do(t, "GET", base, nil, &got)
	if len(got.Pending) != 0 {
		t.Errorf("pending after discard = %+v", got.Pending)
	}
}

func TestCreateDropAndRows(t *testing.T) {
	f := testServer(t)
	spec := schema.TableSpec{TableName: "tags", Columns: []schema.Column{{Name: "label", DataType: schema.Text}}}
	if code := f.do(t, "POST", "/api/tables", spec, nil); code != http.StatusCreated {
		t.Fatalf("create: status = %d", code)
	}
	if code := f.do(t, "DELETE", "/api/tables/tags", nil, nil); code != http.StatusOK {
		t.Fatalf("drop: status = %d", code)
	}

	req := ApplyRowsRequest{Rows: []schema.RowRecord{
		{Insert: &schema.InsertRecord{Columns: []string{"id", "name"}, Values: []string{"", "Ada"}, Types: []schema.DataType{schema.Integer, schema.Text}}},
		{Delete: &schema.DeleteRecord{Where: []schema.Condition{{ColumnName: "id", DataType: schema.Integer, Value: "2"}}}},
	}}
	if code := f.do(t, "POST", "/api/tables/users/rows", req, nil); code != http.StatusOK {
		t.Fatalf("rows: status = %d", code)
	}
	if len(f.db.Committed) != 4 {
		t.Errorf("committed = %v", f.db.Committed)
	}

	bad := ApplyRowsRequest{Rows: []schema.RowRecord{{Delete: &schema.DeleteRecord{}}}}
	if code := f.do(t, "POST", "/api/tables/users/rows", bad, nil); code != http.StatusBadRequest {
		t.Errorf("unfiltered delete: status = %d, want 400", code)
	}
}

func TestDevModeCORS(t *testing.T) {
	f := testServer(t, WithDevMode(true))
	req := httptest.NewRequest("OPTIONS", "/api/tables", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("status = %d headers = %v", w.Code, w.Header())
	}
}

func TestCommitReloadFailureStillSucceeds(t *testing.T) {
	f := testServer(t)
	opened := f.open(t, "users")
	base := "/api/sessions/" + opened.ID

	f.do(t, "POST", base+"/events", ApplyEventsRequest{Events: []schema.EventRecord{
		{Kind: schema.KindAddColumn, Column: "email", Type: "text"},
	}}, nil)

	f.catalog.Err = errors.New("connection reset")
	var commit CommitResponse
	if code := f.do(t, "POST", base+"/commit", nil, &commit); code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%+v)", code, commit)
	}
	if commit.Warning == "" || len(f.db.Committed) != 1 {
		t.Errorf("commit = %+v, committed = %v", commit, f.db.Committed)
	}
	if _, ok := commit.Snapshot.Column("email"); !ok {
		t.Errorf("snapshot should carry the committed column: %+v", commit.Snapshot)
	}

	var got SessionResponse
	f.do(t, "GET", base, nil, &got)
	if len(got.Pending) != 0 {
		t.Errorf("pending after commit = %+v", got.Pending)
	}
}

func TestHubReceivesPendingChanges(t *testing.T) {
	hub := ws.NewHub(slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go hub.Run(ctx)

	f := testServer(t, WithHub(hub))
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	for hub.ClientCount() == 0 {
		if ctx.Err() != nil {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	opened := f.open(t, "users")
	f.do(t, "POST", "/api/sessions/"+opened.ID+"/events", ApplyEventsRequest{Events: []schema.EventRecord{
		{Kind: schema.KindRemoveColumn, Column: "name"},
	}}, nil)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var p ws.PendingPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if msg.Type != ws.MsgPendingChanged || p.Session != opened.ID || len(p.Events) != 1 {
		t.Errorf("message = %s", data)
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	f := testServer(t)
	var e map[string]string
	code := f.do(t, "POST", "/api/sessions", map[string]string{"tabel": "users"}, &e)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if e["kind"] != "validation" || !strings.Contains(e["error"], "tabel") {
		t.Errorf("error body = %v", e)
	}

	if code := f.do(t, "GET", "/api/sessions/nope", nil, &e); code != http.StatusNotFound || e["kind"] != "not_found" {
		t.Errorf("unknown session = %d %v", code, e)
	}
}
