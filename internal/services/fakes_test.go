package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"schemacanvas/internal/models"
	"schemacanvas/internal/utils"
)

const shopSchema = `{
  "tables": [
    {"name": "users", "schema": "public", "columns": [
      {"name": "id", "type": "integer", "isPrimaryKey": true},
      {"name": "email", "type": "text"}
    ]},
    {"name": "orders", "columns": [
      {"name": "id", "type": "integer", "isPrimaryKey": true},
      {"name": "user_id", "type": "integer"}
    ]}
  ],
  "foreignKeys": [
    {"sourceTable": "orders", "column": "user_id", "referencedTable": "users", "referencedColumn": "id", "constraintName": "fk_orders_user_id"},
    {"sourceTable": "orders", "column": "ghost_id", "referencedTable": "ghosts", "referencedColumn": "id"}
  ]
}`

const productColumns = `[
  {"column_name": "id", "data_type": "integer", "is_nullable": "NO", "is_primary_key": true},
  {"column_name": "name", "data_type": "text", "is_nullable": "YES"}
]`

const (
	usersNode  = "table:public.users"
	ordersNode = "table:public.orders"
)

type fakeBackend struct {
	mu sync.Mutex

	schema     string
	columns    map[string]string
	connectErr error
	columnErr  map[string]error
	changeErr  error
	gate       chan struct{}

	connects []string
	changes  []models.ColumnChangeRequest
	created  []models.CreateForeignKeyRequest
	deleted  []models.DeleteForeignKeyRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		schema: shopSchema,
		columns: map[string]string{
			"users":    `[{"name":"id","type":"integer","isPrimaryKey":true},{"name":"email","type":"text"}]`,
			"orders":   `[{"name":"id","type":"integer","isPrimaryKey":true},{"name":"user_id","type":"integer"}]`,
			"products": productColumns,
		},
		columnErr: map[string]error{},
	}
}

func (f *fakeBackend) Connect(ctx context.Context, database string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, database)
	return f.connectErr
}

func (f *fakeBackend) FetchSchema(ctx context.Context, database string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []byte(f.schema), nil
}

func (f *fakeBackend) FetchColumns(ctx context.Context, database, schema, table string) ([]byte, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.columnErr[table]; err != nil {
		return nil, err
	}
	raw, ok := f.columns[table]
	if !ok {
		return nil, utils.NewBackendRejection(`relation "`+table+`" does not exist`, nil)
	}
	return []byte(raw), nil
}

func (f *fakeBackend) CreateForeignKey(ctx context.Context, req models.CreateForeignKeyRequest) (models.CreateForeignKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return models.CreateForeignKeyResponse{Success: true, ConstraintName: req.ConstraintName}, nil
}

func (f *fakeBackend) DeleteForeignKey(ctx context.Context, req models.DeleteForeignKeyRequest) (models.BackendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, req)
	return models.BackendResult{Success: true}, nil
}

func (f *fakeBackend) ApplyColumnChange(ctx context.Context, req models.ColumnChangeRequest) (models.BackendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, req)
	if f.changeErr != nil {
		return models.BackendResult{}, f.changeErr
	}
	return models.BackendResult{Success: true}, nil
}

func (f *fakeBackend) columnChanges() []models.ColumnChangeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ColumnChangeRequest(nil), f.changes...)
}

type fakeSnapshots struct {
	mu    sync.Mutex
	saved map[string]map[string]models.Position
}

func (f *fakeSnapshots) Save(ctx context.Context, database string, nodes []models.Node) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]map[string]models.Position{}
	}
	if f.saved[database] == nil {
		f.saved[database] = map[string]models.Position{}
	}
	for _, n := range nodes {
		f.saved[database][n.ID] = n.Position
	}
	return len(nodes), nil
}

func (f *fakeSnapshots) Positions(ctx context.Context, database string) (map[string]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]models.Position{}
	for k, v := range f.saved[database] {
		out[k] = v
	}
	return out, nil
}

func testOptions() SessionOptions {
	opts := DefaultSessionOptions()
	opts.Debounce = 0
	return opts
}

func newTestSession(t *testing.T, b *fakeBackend) *CanvasSession {
	t.Helper()
	s := NewCanvasSession(b, nil, testOptions())
	t.Cleanup(s.Close)
	return s
}

func loadShop(t *testing.T, s *CanvasSession) LoadResult {
	t.Helper()
	res, err := s.LoadSchema(context.Background(), LoadRequest{Database: "shop"})
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	return res
}

func hasNotice(s *CanvasSession, severity models.Severity, substr string) bool {
	for _, n := range s.Notifications(0) {
		if n.Severity == severity && strings.Contains(n.Message, substr) {
			return true
		}
	}
	return false
}

func columnID(t *testing.T, s *CanvasSession, nodeID, name string) string {
	t.Helper()
	n, ok := s.Store().Node(nodeID)
	if !ok {
		t.Fatalf("node %s not found", nodeID)
	}
	i := n.Data.ColumnIndex(name)
	if i < 0 {
		t.Fatalf("column %s not found on %s", name, nodeID)
	}
	return n.Data.Columns[i].ID
}
