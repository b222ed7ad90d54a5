package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/tablesmith/tablesmith/internal/rows"
	"github.com/tablesmith/tablesmith/internal/schema"
)

func TestObserverPrintsPending(t *testing.T) {
	var buf bytes.Buffer
	o := NewObserver(&buf)
	o.PendingChanged("users", []schema.Event{
		schema.AddColumn{Column: "email", Type: schema.Text},
		schema.RemoveColumn{Column: "age"},
		schema.RenameColumn{From: "name", To: "username"},
	})
	out := buf.String()
	for _, want := range []string{
		"Pending changes for users",
		"+ AddColumn(email, TEXT)",
		"- RemoveColumn(age)",
		"~ RenameColumn(name, username)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	o.PendingChanged("users", nil)
	if !strings.Contains(buf.String(), "nothing pending") {
		t.Errorf("empty set output:\n%s", buf.String())
	}
}

func TestSnapshotAlignsColumns(t *testing.T) {
	out := Snapshot(schema.TableSnapshot{
		TableName: "members",
		Columns: []schema.Column{
			{Name: "id", DataType: schema.Integer, Constraints: []schema.Constraint{schema.PrimaryKey()}},
			{Name: "organisation", DataType: schema.BigInt, Constraints: []schema.Constraint{schema.ForeignKey("orgs", "id")}},
		},
	})
	lines := strings.Split(out, "\n")
	var idLine, orgLine string
	for _, l := range lines {
		switch {
		case strings.Contains(l, "INTEGER"):
			idLine = l
		case strings.Contains(l, "BIGINT"):
			orgLine = l
		}
	}
	if !strings.Contains(idLine, "PK") || !strings.Contains(orgLine, "orgs(id)") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	idCol := lipgloss.Width(idLine[:strings.Index(idLine, "INTEGER")])
	orgCol := lipgloss.Width(orgLine[:strings.Index(orgLine, "BIGINT")])
	if idCol != orgCol {
		t.Errorf("type column not aligned:\n%s", out)
	}
}

func TestPlanAndTables(t *testing.T) {
	out := Plan([]string{`ALTER TABLE "users" RENAME TO "people"`})
	if !strings.Contains(out, `1. ALTER TABLE "users" RENAME TO "people";`) {
		t.Errorf("plan output:\n%s", out)
	}
	if !strings.Contains(Plan(nil), "nothing to do") {
		t.Error("empty plan should say so")
	}

	out = Tables([]schema.TableOverview{{
		TableName:   "orgs",
		ColumnNames: []string{"id", "name"},
		DataTypes:   []schema.DataType{schema.Integer, schema.Text},
		Unique:      []bool{true, false},
	}})
	if !strings.Contains(out, "Tables (1)") || !strings.Contains(out, "id integer, name text") {
		t.Errorf("tables output:\n%s", out)
	}
}

func TestRowsAndStatus(t *testing.T) {
	out := Rows(&rows.Result{Columns: []string{"id", "name"}, Rows: [][]string{{"1", "Ada"}, {"2", ""}}})
	if !strings.Contains(out, "(2 rows)") || !strings.Contains(out, "Ada") {
		t.Errorf("rows output:\n%s", out)
	}
	if !strings.Contains(Success("committed"), "committed") {
		t.Error("success output")
	}
	if !strings.Contains(Failure(errors.New("boom")), "boom") {
		t.Error("failure output")
	}
}
