package rows_test

import (
	"context"
	"testing"

	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/ddl"
	"github.com/tablesmith/tablesmith/internal/pgtest"
	"github.com/tablesmith/tablesmith/internal/rows"
	"github.com/tablesmith/tablesmith/internal/schema"
)

func TestPostgresInsertGeneratesNextKey(t *testing.T) {
	pool := pgtest.Pool(t,
		`DROP TABLE IF EXISTS ts_rows_people CASCADE`,
		`CREATE TABLE ts_rows_people (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO ts_rows_people (id, name) VALUES (1, 'Ada'), (5, NULL)`,
	)
	t.Cleanup(func() { pgtest.Exec(t, pool, `DROP TABLE IF EXISTS ts_rows_people CASCADE`) })

	ctx := context.Background()
	in := catalog.NewPostgres(pool, "public")
	x := rows.NewExecutor(ddl.NewExecutor(pool, in, nil, nil), pool, in, nil)

	err := x.Apply(ctx, "ts_rows_people", []schema.RowEvent{
		schema.InsertRow{
			ColumnNames: []string{"id", "name"},
			Values:      []string{"", "Grace"},
			DataTypes:   []schema.DataType{schema.Integer, schema.Text},
		},
		schema.ModifyRow{
			Conditions: []schema.Condition{{ColumnName: "name", DataType: schema.Text, Value: ""}},
			Values:     []schema.ColumnValue{{ColumnName: "name", DataType: schema.Text, Value: "Linus"}},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	res, err := x.Select(ctx, "ts_rows_people", nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := [][]string{{"1", "Ada"}, {"5", "Linus"}, {"6", "Grace"}}
	if len(res.Rows) != len(want) {
		t.Fatalf("rows = %v, want %v", res.Rows, want)
	}
	for i := range want {
		if res.Rows[i][0] != want[i][0] || res.Rows[i][1] != want[i][1] {
			t.Errorf("row %d = %v, want %v", i, res.Rows[i], want[i])
		}
	}
}
