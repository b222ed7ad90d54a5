package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/changeset"
	"github.com/tablesmith/tablesmith/internal/ddl"
	"github.com/tablesmith/tablesmith/internal/engine"
	"github.com/tablesmith/tablesmith/internal/ident"
	"github.com/tablesmith/tablesmith/internal/schema"
	"github.com/tablesmith/tablesmith/internal/session"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		ve *ident.ValidationError
		de *ddl.DdlError
		ce *catalog.CatalogError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoSession), errors.Is(err, catalog.ErrTableNotFound):
		return http.StatusNotFound
	case errors.As(err, &de):
		return http.StatusConflict
	case errors.As(err, &ce):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	errorResponse(w, status, err.Error())
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.engine.Tables(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, tables)
}

func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Describe(r.Context(), r.PathValue("table"))
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, snap)
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var spec schema.TableSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	if err := s.engine.CreateTable(r.Context(), spec); err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, map[string]string{"status": "created", "table": spec.TableName})
}

func (s *Server) handleDropTable(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	if err := s.engine.DropTable(r.Context(), table); err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "dropped", "table": table})
}

func (s *Server) handleSelectRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.engine.SelectRows(r.Context(), r.PathValue("table"), splitList(q.Get("columns")), splitList(q.Get("order")))
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleApplyRows(w http.ResponseWriter, r *http.Request) {
	var req ApplyRowsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	events := make([]schema.RowEvent, 0, len(req.Rows))
	for _, rec := range req.Rows {
		ev, err := rec.RowEvent()
		if err != nil {
			s.fail(w, err)
			return
		}
		events = append(events, ev)
	}
	table := r.PathValue("table")
	if err := s.engine.ApplyRows(r.Context(), table, events); err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"status": "ok", "table": table, "rows": len(events)})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.engine.Sessions())
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var observe func(string) changeset.Observer
	if s.hub != nil {
		observe = s.hub.Observer
	}
	h, _, err := s.engine.OpenSession(r.Context(), req.Table, observe)
	if err != nil {
		s.fail(w, err)
		return
	}
	var resp SessionResponse
	h.Do(func(sess *session.Session) error {
		resp = sessionResponse(sess, true)
		return nil
	})
	jsonResponse(w, http.StatusCreated, resp)
}

// withSession resolves {id} and runs fn with exclusive access to it.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	h, err := s.engine.Session(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := h.Do(fn); err != nil {
		s.fail(w, err)
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		jsonResponse(w, http.StatusOK, sessionResponse(sess, true))
		return nil
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.CloseSession(id); err != nil {
		s.fail(w, err)
		return
	}
	if s.hub != nil {
		s.hub.BroadcastSessionClosed(id)
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleApplyEvents(w http.ResponseWriter, r *http.Request) {
	var req ApplyEventsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *session.Session) error {
		resp := PendingResponse{}
		status := http.StatusOK
		for _, rec := range req.Events {
			ev, err := rec.Event()
			if err == nil {
				err = sess.Apply(ev)
			}
			if err != nil {
				status = statusFor(err)
				resp.Error = err.Error()
				break
			}
			resp.Applied++
		}
		resp.Pending = schema.Records(sess.Pending())
		jsonResponse(w, status, resp)
		return nil
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		stmts, err := sess.Statements(r.Context())
		if err != nil {
			return err
		}
		jsonResponse(w, http.StatusOK, PlanResponse{Statements: nonNil(stmts)})
		return nil
	})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		stmts, err := sess.Statements(r.Context())
		if err != nil {
			return err
		}
		id := sess.ID()
		var warning string
		if err := sess.Commit(r.Context()); err != nil {
			if !errors.Is(err, session.ErrReload) {
				if s.hub != nil {
					s.hub.BroadcastError(err.Error())
				}
				return err
			}
			s.logger.Warn("commit applied but reload failed", "session", id, "error", err)
			warning = err.Error()
		}
		if s.hub != nil && len(stmts) > 0 {
			s.hub.BroadcastCommitted(id, sess.Table(), stmts)
		}
		jsonResponse(w, http.StatusOK, CommitResponse{
			Statements: nonNil(stmts),
			Snapshot:   sess.Snapshot(),
			Warning:    warning,
		})
		return nil
	})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		sess.Discard()
		jsonResponse(w, http.StatusOK, PendingResponse{Pending: []schema.EventRecord{}})
		return nil
	})
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nonNil(stmts []string) []string {
	if stmts == nil {
		return []string{}
	}
	return stmts
}
