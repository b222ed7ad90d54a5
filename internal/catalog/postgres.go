package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tablesmith/tablesmith/internal/config"
	"github.com/tablesmith/tablesmith/internal/schema"
)

// Querier is the subset of pgxpool.Pool the inspector needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pool for the configured database and pings it.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	// DDL names tables unqualified
	if cfg.Schema != "" {
		poolCfg.ConnConfig.RuntimeParams["search_path"] = cfg.Schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	return pool, nil
}

// Postgres implements Inspector against information_schema and pg_catalog.
type Postgres struct {
	db     Querier
	schema string // pg schema to inspect, defaults to "public"
}

// NewPostgres creates an inspector scoped to one schema.
func NewPostgres(db Querier, schemaName string) *Postgres {
	if schemaName == "" {
		schemaName = "public"
	}
	return &Postgres{db: db, schema: schemaName}
}

// Schema returns the pg schema the inspector reads.
func (p *Postgres) Schema() string { return p.schema }

func (p *Postgres) PrimaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	query := `
		SELECT kcu.column_name::text
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		  AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`

	rows, err := p.db.Query(ctx, query, p.schema, table)
	if err != nil {
		return nil, &CatalogError{Op: "primary key columns", Table: table, Err: err}
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &CatalogError{Op: "primary key columns", Table: table, Err: err}
	}
	return names, nil
}

func (p *Postgres) ColumnsInfo(ctx context.Context, table string) ([]ColumnInfo, error) {
	query := `
		SELECT
			c.column_name::text,
			c.data_type::text,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
				  ON tc.constraint_name = kcu.constraint_name
				  AND tc.table_schema = kcu.table_schema
				  AND tc.table_name = kcu.table_name
				WHERE tc.constraint_type = 'PRIMARY KEY'
				  AND tc.table_schema = c.table_schema
				  AND tc.table_name = c.table_name
				  AND kcu.column_name = c.column_name
			) AS is_primary,
			fk.referenced_table,
			fk.referenced_column
		FROM information_schema.columns c
		LEFT JOIN LATERAL (
			SELECT
				ccu.table_name::text AS referenced_table,
				ccu.column_name::text AS referenced_column
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			  AND tc.table_schema = kcu.table_schema
			  AND tc.table_name = kcu.table_name
			JOIN information_schema.constraint_column_usage ccu
			  ON tc.constraint_name = ccu.constraint_name
			  AND tc.constraint_schema = ccu.constraint_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
			  AND tc.table_schema = c.table_schema
			  AND tc.table_name = c.table_name
			  AND kcu.column_name = c.column_name
			ORDER BY tc.constraint_name
			LIMIT 1
		) fk ON true
		WHERE c.table_schema = $1
		  AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := p.db.Query(ctx, query, p.schema, table)
	if err != nil {
		return nil, &CatalogError{Op: "columns info", Table: table, Err: err}
	}
	defer rows.Close()

	var infos []ColumnInfo
	for rows.Next() {
		var ci ColumnInfo
		if err := rows.Scan(&ci.Name, &ci.DataType, &ci.PrimaryKey, &ci.ReferencedTable, &ci.ReferencedColumn); err != nil {
			return nil, &CatalogError{Op: "columns info", Table: table, Err: err}
		}
		infos = append(infos, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, &CatalogError{Op: "columns info", Table: table, Err: err}
	}
	return infos, nil
}

func (p *Postgres) PrimaryKeyConstraintName(ctx context.Context, table string) (string, bool, error) {
	query := `
		SELECT con.conname::text
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class t ON t.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1
		  AND t.relname = $2
		  AND con.contype = 'p'`

	return p.scanName(ctx, "primary key constraint", table, query, p.schema, table)
}

func (p *Postgres) ForeignKeyConstraintName(ctx context.Context, table, column string) (string, bool, error) {
	query := `
		SELECT tc.constraint_name::text
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		  AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		  AND kcu.column_name = $3
		ORDER BY tc.constraint_name
		LIMIT 1`

	return p.scanName(ctx, "foreign key constraint", table, query, p.schema, table, column)
}

func (p *Postgres) scanName(ctx context.Context, op, table, query string, args ...any) (string, bool, error) {
	var name string
	err := p.db.QueryRow(ctx, query, args...).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &CatalogError{Op: op, Table: table, Err: err}
	}
	return name, true, nil
}

func (p *Postgres) TablesOverview(ctx context.Context) ([]schema.TableOverview, error) {
	query := `
		SELECT
			t.table_name::text,
			array_agg(c.column_name::text ORDER BY c.ordinal_position) AS column_names,
			array_agg(c.data_type::text ORDER BY c.ordinal_position) AS data_types,
			array_agg(EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
				  ON tc.constraint_name = kcu.constraint_name
				  AND tc.table_schema = kcu.table_schema
				  AND tc.table_name = kcu.table_name
				WHERE tc.constraint_type IN ('UNIQUE', 'PRIMARY KEY')
				  AND tc.table_schema = c.table_schema
				  AND tc.table_name = c.table_name
				  AND kcu.column_name = c.column_name
			) ORDER BY c.ordinal_position) AS is_unique
		FROM information_schema.tables t
		JOIN information_schema.columns c
		  ON t.table_name = c.table_name
		  AND t.table_schema = c.table_schema
		WHERE t.table_schema = $1
		  AND t.table_type = 'BASE TABLE'
		GROUP BY t.table_name
		ORDER BY t.table_name`

	rows, err := p.db.Query(ctx, query, p.schema)
	if err != nil {
		return nil, &CatalogError{Op: "tables overview", Err: err}
	}
	defer rows.Close()

	var tables []schema.TableOverview
	for rows.Next() {
		var (
			tv        schema.TableOverview
			dataTypes []string
		)
		if err := rows.Scan(&tv.TableName, &tv.ColumnNames, &dataTypes, &tv.Unique); err != nil {
			return nil, &CatalogError{Op: "tables overview", Err: err}
		}
		tv.DataTypes = make([]schema.DataType, len(dataTypes))
		for i, dt := range dataTypes {
			tv.DataTypes[i] = schema.FromCatalog(dt)
		}
		tables = append(tables, tv)
	}
	if err := rows.Err(); err != nil {
		return nil, &CatalogError{Op: "tables overview", Err: err}
	}
	return tables, nil
}

// compile-time interface check
var _ Inspector = (*Postgres)(nil)
