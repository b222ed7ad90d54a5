package ddl

import (
	"errors"
	"slices"
	"testing"

	"github.com/tablesmith/tablesmith/internal/ident"
	"github.com/tablesmith/tablesmith/internal/schema"
)

func assertStatements(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d statements:\n%s\nwant %d:\n%s", len(got), Statements(got), len(want), Statements(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statement %d:\n got  %s\n want %s", i, got[i], want[i])
		}
	}
}

func TestCompileScenario(t *testing.T) {
	stmts, err := Compile(Plan{
		Table: "users",
		Events: []schema.Event{
			schema.AddColumn{Column: "email", Type: schema.Text},
			schema.RenameColumn{From: "name", To: "username"},
			schema.ChangeColumnType{Column: "username", Type: schema.Integer},
			schema.RenameTable{NewName: "customers"},
		},
		PrimaryKey:           []string{"id"},
		PrimaryKeyConstraint: "users_pkey",
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertStatements(t, stmts,
		`ALTER TABLE "users" RENAME TO "customers"`,
		`ALTER TABLE "customers" RENAME COLUMN "name" TO "username"`,
		`ALTER TABLE "customers" ALTER COLUMN "username" TYPE INTEGER USING "username"::INTEGER`,
		`ALTER TABLE "customers" ADD COLUMN "email" TEXT`,
	)
}

func TestCompileLongScenario(t *testing.T) {
	stmts, err := Compile(Plan{
		Table: "users",
		Events: []schema.Event{
			schema.AddColumn{Column: "email", Type: schema.Text},
			schema.AddColumn{Column: "active_status", Type: schema.Boolean},
			schema.AddColumn{Column: "last_login", Type: schema.Timestamp},
			schema.AddColumn{Column: "region", Type: schema.Text},
			schema.AddPrimaryKey{Column: "region"},
			schema.RenameTable{NewName: "clients"},
			schema.ChangeColumnType{Column: "name", Type: schema.Integer},
			schema.AddColumn{Column: "registration_id", Type: schema.Integer},
			schema.AddForeignKey{Column: "registration_id", ReferencedTable: "registrations", ReferencedColumn: "id"},
		},
		PrimaryKey:           []string{"id"},
		PrimaryKeyConstraint: "users_pkey",
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertStatements(t, stmts,
		`ALTER TABLE "users" RENAME TO "clients"`,
		`ALTER TABLE "clients" ALTER COLUMN "name" TYPE INTEGER USING "name"::INTEGER`,
		`ALTER TABLE "clients" ADD COLUMN "email" TEXT`,
		`ALTER TABLE "clients" ADD COLUMN "active_status" BOOLEAN`,
		`ALTER TABLE "clients" ADD COLUMN "last_login" TIMESTAMP`,
		`ALTER TABLE "clients" ADD COLUMN "region" TEXT`,
		`ALTER TABLE "clients" ADD COLUMN "registration_id" INTEGER`,
		`ALTER TABLE "clients" ADD CONSTRAINT "fk_clients_registration_id" FOREIGN KEY ("registration_id") REFERENCES "registrations" ("id")`,
		`ALTER TABLE "clients" DROP CONSTRAINT IF EXISTS "users_pkey"`,
		`ALTER TABLE "clients" ADD CONSTRAINT "pk_clients" PRIMARY KEY ("id", "region")`,
	)
}

func TestCompileDropsBeforeAdds(t *testing.T) {
	stmts, err := Compile(Plan{
		Table: "members",
		Events: []schema.Event{
			schema.AddColumn{Column: "nickname", Type: schema.Text},
			schema.RemoveColumn{Column: "legacy"},
			schema.RemoveForeignKey{Column: "org_id"},
			schema.RenameColumn{From: "email", To: "legacy"},
		},
		ForeignKeyConstraints: map[string]string{"org_id": "members_org_id_fkey"},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertStatements(t, stmts,
		`ALTER TABLE "members" DROP CONSTRAINT IF EXISTS "members_org_id_fkey"`,
		`ALTER TABLE "members" DROP COLUMN "legacy"`,
		`ALTER TABLE "members" RENAME COLUMN "email" TO "legacy"`,
		`ALTER TABLE "members" ADD COLUMN "nickname" TEXT`,
	)
}

func TestCompileForeignKeyNameFallback(t *testing.T) {
	stmts, err := Compile(Plan{
		Table:  "members",
		Events: []schema.Event{schema.RemoveForeignKey{Column: "org_id"}},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertStatements(t, stmts, `ALTER TABLE "members" DROP CONSTRAINT IF EXISTS "fk_members_org_id"`)
}

func TestCompileRenameCycle(t *testing.T) {
	stmts, err := Compile(Plan{
		Table: "t",
		Events: []schema.Event{
			schema.RenameColumn{From: "a", To: "b"},
			schema.RenameColumn{From: "b", To: "a"},
		},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertStatements(t, stmts,
		`ALTER TABLE "t" RENAME COLUMN "a" TO "_tablesmith_tmp0_a"`,
		`ALTER TABLE "t" RENAME COLUMN "b" TO "a"`,
		`ALTER TABLE "t" RENAME COLUMN "_tablesmith_tmp0_a" TO "b"`,
	)
}

func TestCompileRenameChain(t *testing.T) {
	stmts, err := Compile(Plan{
		Table: "t",
		Events: []schema.Event{
			schema.RenameColumn{From: "a", To: "b"},
			schema.RenameColumn{From: "b", To: "c"},
		},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertStatements(t, stmts,
		`ALTER TABLE "t" RENAME COLUMN "b" TO "c"`,
		`ALTER TABLE "t" RENAME COLUMN "a" TO "b"`,
	)
}

func TestCompilePrimaryKey(t *testing.T) {
	// renaming a key column alone leaves the constraint in place
	stmts, err := Compile(Plan{
		Table:                "t",
		Events:               []schema.Event{schema.RenameColumn{From: "id", To: "t_id"}},
		PrimaryKey:           []string{"id"},
		PrimaryKeyConstraint: "t_pkey",
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertStatements(t, stmts, `ALTER TABLE "t" RENAME COLUMN "id" TO "t_id"`)

	// removing the only key column drops the key without adding one
	stmts, err = Compile(Plan{
		Table:                "t",
		Events:               []schema.Event{schema.RemovePrimaryKey{Column: "id"}},
		PrimaryKey:           []string{"id"},
		PrimaryKeyConstraint: "t_pkey",
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertStatements(t, stmts, `ALTER TABLE "t" DROP CONSTRAINT IF EXISTS "t_pkey"`)

	// a table without a key gains one
	stmts, err = Compile(Plan{
		Table:  "t",
		Events: []schema.Event{schema.AddPrimaryKey{Column: "code"}},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertStatements(t, stmts, `ALTER TABLE "t" ADD CONSTRAINT "pk_t" PRIMARY KEY ("code")`)
}

func TestWorkingPrimaryKey(t *testing.T) {
	got := WorkingPrimaryKey([]string{"a", "b", "c"}, []schema.Event{
		schema.RemoveColumn{Column: "a"},
		schema.RenameColumn{From: "b", To: "a"},
		schema.AddPrimaryKey{Column: "d"},
		schema.RemovePrimaryKey{Column: "c"},
		schema.AddPrimaryKey{Column: "d"},
	})
	if want := []string{"a", "d"}; !slices.Equal(got, want) {
		t.Errorf("WorkingPrimaryKey = %v, want %v", got, want)
	}
}

func TestCompileRejectsUnsafeIdentifiers(t *testing.T) {
	tests := []Plan{
		{Table: `users"; DROP TABLE x; --`},
		{Table: "users", Events: []schema.Event{schema.AddColumn{Column: `a"b`, Type: schema.Text}}},
		{Table: "users", Events: []schema.Event{schema.AddColumn{Column: "a", Type: "TEXT; DROP TABLE users"}}},
		{Table: "users", Events: []schema.Event{schema.RenameTable{NewName: ""}}},
		{Table: "users", Events: []schema.Event{schema.AddForeignKey{Column: "a", ReferencedTable: "o\x00", ReferencedColumn: "id"}}},
	}
	for _, p := range tests {
		_, err := Compile(p)
		var ve *ident.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Compile(%+v) error = %v, want ValidationError", p, err)
		}
	}
}

func TestCompileTruncatesGeneratedNames(t *testing.T) {
	long := "a_rather_long_table_name_for_a_reporting_schema_x"
	stmts, err := Compile(Plan{
		Table:  long,
		Events: []schema.Event{schema.AddForeignKey{Column: "another_long_column_name", ReferencedTable: "r", ReferencedColumn: "id"}},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := `ALTER TABLE "` + long + `" ADD CONSTRAINT "` +
		ident.Truncate("fk_"+long+"_another_long_column_name") +
		`" FOREIGN KEY ("another_long_column_name") REFERENCES "r" ("id")`
	assertStatements(t, stmts, want)
}

func TestCreateTableStatement(t *testing.T) {
	stmt, err := CreateTableStatement(schema.TableSpec{
		TableName: "orders",
		Columns: []schema.Column{
			{Name: "customer_id", DataType: schema.Integer, Constraints: []schema.Constraint{schema.ForeignKey("customers", "id")}},
			{Name: "placed", DataType: schema.Date},
		},
	})
	if err != nil {
		t.Fatalf("CreateTableStatement: %v", err)
	}
	want := `CREATE TABLE "orders" ("id" INTEGER, "customer_id" INTEGER REFERENCES "customers" ("id"), "placed" DATE, CONSTRAINT "pk_orders" PRIMARY KEY ("id"))`
	if stmt != want {
		t.Errorf("got  %s\nwant %s", stmt, want)
	}

	stmt, err = CreateTableStatement(schema.TableSpec{
		TableName: "tags",
		Columns:   []schema.Column{{Name: "label", DataType: schema.Text, Constraints: []schema.Constraint{schema.PrimaryKey()}}},
	})
	if err != nil {
		t.Fatalf("CreateTableStatement: %v", err)
	}
	if want := `CREATE TABLE "tags" ("label" TEXT, CONSTRAINT "pk_tags" PRIMARY KEY ("label"))`; stmt != want {
		t.Errorf("got  %s\nwant %s", stmt, want)
	}

	_, err = CreateTableStatement(schema.TableSpec{
		TableName: "dupes",
		Columns:   []schema.Column{{Name: "a", DataType: schema.Text}, {Name: "a", DataType: schema.Text}},
	})
	if err == nil {
		t.Error("expected error for duplicate column")
	}
}
