package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"schemacanvas/internal/config"
	"schemacanvas/internal/database"
	"schemacanvas/internal/metrics"
	"schemacanvas/internal/models"
	"schemacanvas/internal/utils"
)

// SchemaRepository reads and alters live PostgreSQL schemas. It keeps one pool per database
// and is shared by every session; per-session state lives in PostgresBackend.
type SchemaRepository struct {
	cfg    config.PostgresConfig
	schema string
	open   func(ctx context.Context, cfg config.PostgresConfig, database string) (*pgxpool.Pool, error)

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

func NewSchemaRepository(cfg config.PostgresConfig) *SchemaRepository {
	schema := cfg.Schema
	if schema == "" {
		schema = models.DefaultSchema
	}
	return &SchemaRepository{
		cfg:    cfg,
		schema: schema,
		open:   database.Connect,
		pools:  make(map[string]*pgxpool.Pool),
	}
}

// Pool returns the pool for a database, opening it on first use.
func (r *SchemaRepository) Pool(ctx context.Context, db string) (*pgxpool.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.pools[db]; ok {
		return pool, nil
	}
	pool, err := r.open(ctx, r.cfg, db)
	if err != nil {
		return nil, err
	}
	r.pools[db] = pool
	return pool, nil
}

func (r *SchemaRepository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, pool := range r.pools {
		pool.Close()
		delete(r.pools, name)
	}
}

func (r *SchemaRepository) schemaOr(s string) string {
	if s == "" {
		return r.schema
	}
	return s
}

// pgTable, pgColumn and pgForeignKey are the snake_case records graph.Normalize reads.
type pgTable struct {
	TableName   string     `json:"table_name"`
	TableSchema string     `json:"table_schema"`
	Columns     []pgColumn `json:"columns"`
}

type pgColumn struct {
	ColumnName    string  `json:"column_name"`
	DataType      string  `json:"data_type"`
	IsNullable    string  `json:"is_nullable"`
	IsPrimaryKey  bool    `json:"is_primary_key"`
	IsUnique      bool    `json:"is_unique"`
	ColumnDefault *string `json:"column_default"`
}

type pgForeignKey struct {
	TableName         string `json:"table_name"`
	SourceColumn      string `json:"source_column"`
	ForeignTableName  string `json:"foreign_table_name"`
	ForeignColumnName string `json:"foreign_column_name"`
	ConstraintName    string `json:"constraint_name"`
	OnDelete          string `json:"on_delete"`
	OnUpdate          string `json:"on_update"`
}

// Ping checks that the database is reachable.
func (r *SchemaRepository) Ping(ctx context.Context, db string) error {
	pool, err := r.Pool(ctx, db)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// FetchSchema returns every base table of the configured schema with its columns, plus all
// single-column foreign keys between them.
func (r *SchemaRepository) FetchSchema(ctx context.Context, db string) ([]byte, error) {
	pool, err := r.Pool(ctx, db)
	if err != nil {
		return nil, err
	}

	names, err := r.GetTables(ctx, pool, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	columns, err := r.GetColumns(ctx, pool, r.schema, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	fks, err := r.GetForeignKeys(ctx, pool, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list foreign keys: %w", err)
	}

	tables := make([]pgTable, 0, len(names))
	for _, name := range names {
		cols := columns[name]
		if cols == nil {
			cols = []pgColumn{}
		}
		tables = append(tables, pgTable{TableName: name, TableSchema: r.schema, Columns: cols})
	}

	return json.Marshal(map[string]any{
		"tables":       tables,
		"foreign_keys": fks,
	})
}

// FetchColumns returns the ordered columns of one table.
func (r *SchemaRepository) FetchColumns(ctx context.Context, db, schema, table string) ([]byte, error) {
	pool, err := r.Pool(ctx, db)
	if err != nil {
		return nil, err
	}
	columns, err := r.GetColumns(ctx, pool, r.schemaOr(schema), table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	cols := columns[table]
	if cols == nil {
		cols = []pgColumn{}
	}
	return json.Marshal(cols)
}

// GetTables returns all table names in the specified schema
func (r *SchemaRepository) GetTables(ctx context.Context, pool *pgxpool.Pool, schema string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := pool.Query(ctx, query, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tables, nil
}

// GetColumns returns columns keyed by table, in ordinal order. An empty table name means
// every table of the schema.
func (r *SchemaRepository) GetColumns(ctx context.Context, pool *pgxpool.Pool, schema, table string) (map[string][]pgColumn, error) {
	query := `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, c.column_default
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema
			AND t.table_name = c.table_name
		WHERE c.table_schema = $1
			AND t.table_type = 'BASE TABLE'
			AND ($2::text = '' OR c.table_name = $2::text)
		ORDER BY c.table_name, c.ordinal_position
	`

	rows, err := pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string][]pgColumn)
	for rows.Next() {
		var tableName string
		var col pgColumn
		if err := rows.Scan(&tableName, &col.ColumnName, &col.DataType, &col.IsNullable, &col.ColumnDefault); err != nil {
			return nil, err
		}
		columns[tableName] = append(columns[tableName], col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	keys, err := r.GetKeyColumns(ctx, pool, schema, table)
	if err != nil {
		return nil, err
	}
	for tableName, cols := range columns {
		for i := range cols {
			k := keys[tableColumnKey(tableName, cols[i].ColumnName)]
			cols[i].IsPrimaryKey = k.primary
			cols[i].IsUnique = k.unique
		}
	}

	return columns, nil
}

type keyFlags struct {
	primary bool
	unique  bool
}

func tableColumnKey(table, column string) string {
	return fmt.Sprintf("%s:%s", table, column)
}

// GetKeyColumns returns primary key membership and single-column unique constraints, keyed by
// table:column.
func (r *SchemaRepository) GetKeyColumns(ctx context.Context, pool *pgxpool.Pool, schema, table string) (map[string]keyFlags, error) {
	query := `
		SELECT tc.table_name, tc.constraint_name, tc.constraint_type, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
			AND tc.table_schema = $1
			AND ($2::text = '' OR tc.table_name = $2::text)
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position
	`

	rows, err := pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query key constraints: %w", err)
	}
	defer rows.Close()

	type uniqueConstraint struct {
		table   string
		columns []string
	}
	flags := make(map[string]keyFlags)
	uniques := make(map[string]*uniqueConstraint)
	for rows.Next() {
		var tableName, constraint, kind, column string
		if err := rows.Scan(&tableName, &constraint, &kind, &column); err != nil {
			return nil, fmt.Errorf("failed to scan key constraint: %w", err)
		}
		key := tableColumnKey(tableName, column)
		switch kind {
		case "PRIMARY KEY":
			f := flags[key]
			f.primary = true
			flags[key] = f
		case "UNIQUE":
			uc, ok := uniques[tableName+"."+constraint]
			if !ok {
				uc = &uniqueConstraint{table: tableName}
				uniques[tableName+"."+constraint] = uc
			}
			uc.columns = append(uc.columns, column)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key constraints: %w", err)
	}

	// A composite unique constraint does not make any single column unique.
	for _, uc := range uniques {
		if len(uc.columns) != 1 {
			continue
		}
		key := tableColumnKey(uc.table, uc.columns[0])
		f := flags[key]
		f.unique = true
		flags[key] = f
	}
	return flags, nil
}

// GetForeignKeys returns the single-column foreign keys of a schema with their referential
// actions. Composite constraints are skipped.
func (r *SchemaRepository) GetForeignKeys(ctx context.Context, pool *pgxpool.Pool, schema string) ([]pgForeignKey, error) {
	query := `
		SELECT
			tc.constraint_name,
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints AS rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position
	`

	rows, err := pool.Query(ctx, query, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var order []string
	byName := make(map[string][]pgForeignKey)
	for rows.Next() {
		var fk pgForeignKey
		if err := rows.Scan(&fk.ConstraintName, &fk.TableName, &fk.SourceColumn,
			&fk.ForeignTableName, &fk.ForeignColumnName, &fk.OnDelete, &fk.OnUpdate); err != nil {
			return nil, err
		}
		key := fk.TableName + "." + fk.ConstraintName
		if _, ok := byName[key]; !ok {
			order = append(order, key)
		}
		byName[key] = append(byName[key], fk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fks := make([]pgForeignKey, 0, len(order))
	for _, key := range order {
		if recs := byName[key]; len(recs) == 1 {
			fks = append(fks, recs[0])
		} else {
			log.Printf("skipping composite foreign key %s", key)
		}
	}
	return fks, nil
}

// Exec runs DDL statements in one transaction.
func (r *SchemaRepository) Exec(ctx context.Context, db string, statements ...string) error {
	if len(statements) == 0 {
		return nil
	}
	pool, err := r.Pool(ctx, db)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PostgresBackend is one session's view of a SchemaRepository: it remembers the database the
// session connected to so foreign key requests, which carry no database, land there.
type PostgresBackend struct {
	repo *SchemaRepository

	mu       sync.RWMutex
	database string
}

func (r *SchemaRepository) NewBackend() *PostgresBackend {
	return &PostgresBackend{repo: r}
}

func (b *PostgresBackend) current() (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.database == "" {
		return "", utils.NewBackendRejection("not connected to a database", nil)
	}
	return b.database, nil
}

func (b *PostgresBackend) Connect(ctx context.Context, db string) (err error) {
	defer track("connect", time.Now(), &err)

	if err := b.repo.Ping(ctx, db); err != nil {
		return rejection(err)
	}
	b.mu.Lock()
	b.database = db
	b.mu.Unlock()
	return nil
}

func (b *PostgresBackend) FetchSchema(ctx context.Context, db string) (raw []byte, err error) {
	defer track("fetch_schema", time.Now(), &err)

	raw, err = b.repo.FetchSchema(ctx, db)
	if err != nil {
		return nil, rejection(err)
	}
	return raw, nil
}

func (b *PostgresBackend) FetchColumns(ctx context.Context, db, schema, table string) (raw []byte, err error) {
	defer track("fetch_columns", time.Now(), &err)

	raw, err = b.repo.FetchColumns(ctx, db, schema, table)
	if err != nil {
		return nil, rejection(err)
	}
	return raw, nil
}

func (b *PostgresBackend) CreateForeignKey(ctx context.Context, req models.CreateForeignKeyRequest) (res models.CreateForeignKeyResponse, err error) {
	defer track("create_foreign_key", time.Now(), &err)

	db, err := b.current()
	if err != nil {
		return models.CreateForeignKeyResponse{}, err
	}
	req.Schema = b.repo.schemaOr(req.Schema)
	if req.ConstraintName == "" {
		req.ConstraintName = models.DefaultConstraintName(req.SourceTable, req.SourceColumn)
	}
	stmt, err := AddForeignKeySQL(req)
	if err != nil {
		return models.CreateForeignKeyResponse{}, rejection(err)
	}
	if err := b.repo.Exec(ctx, db, stmt); err != nil {
		return models.CreateForeignKeyResponse{}, rejection(err)
	}
	log.Printf("created foreign key %s on %s.%s", req.ConstraintName, req.Schema, req.SourceTable)
	return models.CreateForeignKeyResponse{Success: true, ConstraintName: req.ConstraintName}, nil
}

func (b *PostgresBackend) DeleteForeignKey(ctx context.Context, req models.DeleteForeignKeyRequest) (res models.BackendResult, err error) {
	defer track("delete_foreign_key", time.Now(), &err)

	db, err := b.current()
	if err != nil {
		return models.BackendResult{}, err
	}
	req.Schema = b.repo.schemaOr(req.Schema)
	stmt, err := DropForeignKeySQL(req)
	if err != nil {
		return models.BackendResult{}, rejection(err)
	}
	if err := b.repo.Exec(ctx, db, stmt); err != nil {
		return models.BackendResult{}, rejection(err)
	}
	return models.BackendResult{Success: true}, nil
}

func (b *PostgresBackend) ApplyColumnChange(ctx context.Context, req models.ColumnChangeRequest) (res models.BackendResult, err error) {
	defer track("apply_column_change", time.Now(), &err)

	db := req.Database
	if db == "" {
		if db, err = b.current(); err != nil {
			return models.BackendResult{}, err
		}
	}
	req.Schema = b.repo.schemaOr(req.Schema)
	stmts, err := ColumnChangeSQL(req)
	if err != nil {
		return models.BackendResult{}, rejection(err)
	}
	if len(stmts) == 0 {
		return models.BackendResult{Success: true, Message: "column order is not stored by PostgreSQL"}, nil
	}
	if err := b.repo.Exec(ctx, db, stmts...); err != nil {
		return models.BackendResult{}, rejection(err)
	}
	return models.BackendResult{Success: true}, nil
}

func track(op string, start time.Time, err *error) {
	metrics.RecordBackendRequest(op, *err, time.Since(start))
}

// rejection turns any failure into a BackendRejection. PostgreSQL errors keep the server's
// message text unchanged.
func rejection(err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return utils.NewBackendRejection(pgErr.Message, err)
	}
	return utils.NewBackendRejection(err.Error(), err)
}
