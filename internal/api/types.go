package api

import (
	"github.com/tablesmith/tablesmith/internal/schema"
	"github.com/tablesmith/tablesmith/internal/session"
)

// OpenSessionRequest is the request body for POST /api/sessions.
type OpenSessionRequest struct {
	Table string `json:"table"`
}

// SessionResponse describes a hosted session.
type SessionResponse struct {
	ID         string                 `json:"id"`
	Table      string                 `json:"table"`
	Snapshot   schema.TableSnapshot   `json:"snapshot"`
	Preview    schema.TableSnapshot   `json:"preview"`
	PrimaryKey []string               `json:"primary_key"`
	Pending    []schema.EventRecord   `json:"pending"`
	Tables     []schema.TableOverview `json:"tables,omitempty"`
}

func sessionResponse(s *session.Session, withTables bool) SessionResponse {
	resp := SessionResponse{
		ID:         s.ID(),
		Table:      s.Table(),
		Snapshot:   s.Snapshot(),
		Preview:    s.Preview(),
		PrimaryKey: s.InitialPrimaryKey(),
		Pending:    schema.Records(s.Pending()),
	}
	if withTables {
		resp.Tables = s.Tables()
	}
	return resp
}

// ApplyEventsRequest is the request body for POST /api/sessions/{id}/events.
// Events are applied in order; the first invalid one stops the batch.
type ApplyEventsRequest struct {
	Events []schema.EventRecord `json:"events"`
}

// PendingResponse is the pending set after a batch of events.
type PendingResponse struct {
	Applied int                  `json:"applied"`
	Pending []schema.EventRecord `json:"pending"`
	Error   string               `json:"error,omitempty"`
}

// PlanResponse lists compiled statements.
type PlanResponse struct {
	Statements []string `json:"statements"`
}

// CommitResponse reports a commit and the refreshed table. Warning is set
// when the statements ran but the table could not be re-read; Snapshot is
// then the locally replayed result.
type CommitResponse struct {
	Statements []string             `json:"statements"`
	Snapshot   schema.TableSnapshot `json:"snapshot"`
	Warning    string               `json:"warning,omitempty"`
}

// ApplyRowsRequest is the request body for POST /api/tables/{table}/rows.
type ApplyRowsRequest struct {
	Rows []schema.RowRecord `json:"rows"`
}
