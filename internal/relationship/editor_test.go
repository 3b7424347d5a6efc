package relationship

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacanvas/internal/models"
	"schemacanvas/internal/store"
	"schemacanvas/internal/utils"
)

type fakeBackend struct {
	mu        sync.Mutex
	created   []models.CreateForeignKeyRequest
	deleted   []models.DeleteForeignKeyRequest
	createRes models.CreateForeignKeyResponse
	createErr error
	deleteRes models.BackendResult
	deleteErr error
	onCreate  func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		createRes: models.CreateForeignKeyResponse{Success: true},
		deleteRes: models.BackendResult{Success: true},
	}
}

func (f *fakeBackend) CreateForeignKey(_ context.Context, req models.CreateForeignKeyRequest) (models.CreateForeignKeyResponse, error) {
	f.mu.Lock()
	f.created = append(f.created, req)
	hook := f.onCreate
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.createRes, f.createErr
}

func (f *fakeBackend) DeleteForeignKey(_ context.Context, req models.DeleteForeignKeyRequest) (models.BackendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, req)
	return f.deleteRes, f.deleteErr
}

type recorder struct {
	mu       sync.Mutex
	messages []models.Notification
}

func (r *recorder) Notify(severity models.Severity, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, models.Notification{Severity: severity, Message: message})
}

func (r *recorder) last() models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return models.Notification{}
	}
	return r.messages[len(r.messages)-1]
}

func node(id string, cols ...string) models.Node {
	n := models.Node{ID: id, Data: models.NodeData{Label: id, Schema: "public"}}
	for _, c := range cols {
		n.Data.Columns = append(n.Data.Columns, models.Column{ID: id + "." + c, Name: c})
	}
	return n
}

type fixture struct {
	store   *store.Store
	backend *fakeBackend
	notes   *recorder
	editor  *Editor
}

func newFixture() *fixture {
	s := store.New([]models.Node{
		node("users", "id", "email"),
		node("orders", "id", "user_id"),
		node("accounts", "id", "code"),
	}, nil)
	f := &fixture{store: s, backend: newFakeBackend(), notes: &recorder{}}
	f.editor = NewEditor(s, f.backend, f.notes)
	f.editor.newEdgeID = func() string { return "fk-test" }
	return f
}

var ordersToUsers = Connection{Source: "orders", Target: "users", SourceHandle: "col-1-right", TargetHandle: "col-0-left"}

func TestConnectCapturesPending(t *testing.T) {
	f := newFixture()
	p, err := f.editor.Connect(ordersToUsers)
	require.NoError(t, err)

	assert.Equal(t, StatePendingConfirmation, f.editor.State())
	assert.Equal(t, PendingConnection{
		SourceNodeID:   "orders",
		TargetNodeID:   "users",
		Schema:         "public",
		SourceTable:    "orders",
		SourceColumn:   "user_id",
		SourceColumnID: "orders.user_id",
		TargetTable:    "users",
		TargetColumn:   "id",
		TargetColumnID: "users.id",
	}, p)

	d := p.DefaultDecision()
	assert.Equal(t, "users", d.ReferencedTable)
	assert.Equal(t, "id", d.ReferencedColumn)
	assert.Equal(t, models.ActionNoAction, d.OnDelete)
	assert.Equal(t, models.ActionNoAction, d.OnUpdate)
}

func TestConnectRejections(t *testing.T) {
	tests := []struct {
		name string
		conn Connection
	}{
		{"self reference", Connection{Source: "orders", Target: "orders", SourceHandle: "col-1-right", TargetHandle: "col-0-left"}},
		{"empty target", Connection{Source: "orders", SourceHandle: "col-1-right"}},
		{"missing node", Connection{Source: "orders", Target: "ghost", SourceHandle: "col-1-right", TargetHandle: "col-0-left"}},
		{"stale source index", Connection{Source: "orders", Target: "users", SourceHandle: "col-5-right", TargetHandle: "col-0-left"}},
		{"malformed handle", Connection{Source: "orders", Target: "users", SourceHandle: "user_id", TargetHandle: "col-0-left"}},
		{"inverted handles", Connection{Source: "orders", Target: "users", SourceHandle: "col-1-left", TargetHandle: "col-0-right"}},
		{"target handle on source side", Connection{Source: "orders", Target: "users", SourceHandle: "col-1-right", TargetHandle: "col-0-right"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.editor.Connect(tt.conn)
			require.Error(t, err)
			assert.True(t, utils.IsErrorType(err, utils.ErrCodeValidation))
			assert.Equal(t, StateIdle, f.editor.State())
			_, ok := f.editor.Pending()
			assert.False(t, ok)
			assert.Equal(t, models.SeverityError, f.notes.last().Severity)
			assert.Empty(t, f.backend.created)
		})
	}
}

func TestSelfReferenceNeverPending(t *testing.T) {
	f := newFixture()
	for _, h := range []string{"col-0-right", "col-1-right"} {
		_, err := f.editor.Connect(Connection{Source: "users", Target: "users", SourceHandle: h, TargetHandle: "col-0-left"})
		assert.Error(t, err)
		assert.NotEqual(t, StatePendingConfirmation, f.editor.State())
	}
}

func TestConnectWhilePending(t *testing.T) {
	f := newFixture()
	_, err := f.editor.Connect(ordersToUsers)
	require.NoError(t, err)

	_, err = f.editor.Connect(ordersToUsers)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeConflict))
	assert.Equal(t, StatePendingConfirmation, f.editor.State())
}

func TestConfirmCommitsEdge(t *testing.T) {
	f := newFixture()
	p, err := f.editor.Connect(ordersToUsers)
	require.NoError(t, err)

	d := p.DefaultDecision()
	d.OnDelete = models.ActionCascade
	edge, err := f.editor.Confirm(context.Background(), d)
	require.NoError(t, err)

	require.Len(t, f.backend.created, 1)
	assert.Equal(t, models.CreateForeignKeyRequest{
		Schema:           "public",
		SourceTable:      "orders",
		SourceColumn:     "user_id",
		ReferencedTable:  "users",
		ReferencedColumn: "id",
		OnDelete:         models.ActionCascade,
		OnUpdate:         models.ActionNoAction,
		ConstraintName:   "fk_orders_user_id",
	}, f.backend.created[0])

	assert.Equal(t, "fk-test", edge.ID)
	assert.Equal(t, "col-1-right", edge.SourceHandle)
	assert.Equal(t, "col-0-left", edge.TargetHandle)
	assert.Equal(t, "fk_orders_user_id", edge.Data.ConstraintName)
	assert.Equal(t, models.RelationshipOneToMany, edge.Data.RelationshipType)

	assert.Equal(t, StateCommitted, f.editor.State())
	assert.Len(t, f.store.Edges(), 1)
	orders, _ := f.store.Node("orders")
	assert.Equal(t, "users", orders.Data.ForeignKeys["user_id"].Table)

	note := f.notes.last()
	assert.Equal(t, models.SeveritySuccess, note.Severity)
	assert.Contains(t, note.Message, "orders.user_id")
	assert.Contains(t, note.Message, "users.id")
}

func TestConfirmUsesBackendConstraintName(t *testing.T) {
	f := newFixture()
	f.backend.createRes = models.CreateForeignKeyResponse{Success: true, ConstraintName: "orders_user_id_fkey"}
	p, _ := f.editor.Connect(ordersToUsers)

	edge, err := f.editor.Confirm(context.Background(), p.DefaultDecision())
	require.NoError(t, err)
	assert.Equal(t, "orders_user_id_fkey", edge.Data.ConstraintName)
}

func TestConfirmReResolvesColumnIndices(t *testing.T) {
	f := newFixture()
	p, _ := f.editor.Connect(ordersToUsers)

	f.backend.onCreate = func() {
		orders, _ := f.store.Node("orders")
		cols := append([]models.Column{{Name: "created_at"}, {Name: "status"}}, orders.Data.Columns...)
		require.NoError(t, f.store.UpdateNode("orders", store.NodePatch{Columns: cols}))
	}

	edge, err := f.editor.Confirm(context.Background(), p.DefaultDecision())
	require.NoError(t, err)
	assert.Equal(t, "col-3-right", edge.SourceHandle)
	assert.Equal(t, "user_id", edge.Data.SourceColumn)
}

func TestEditorReadableWhileConfirming(t *testing.T) {
	f := newFixture()
	p, err := f.editor.Connect(ordersToUsers)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	f.backend.onCreate = func() {
		close(started)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.editor.Confirm(context.Background(), p.DefaultDecision())
		done <- err
	}()
	<-started

	assert.Equal(t, StatePendingConfirmation, f.editor.State())
	pending, ok := f.editor.Pending()
	assert.True(t, ok)
	assert.Equal(t, "user_id", pending.SourceColumn)

	err = f.editor.Cancel()
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeConflict), "got %v", err)
	_, err = f.editor.Confirm(context.Background(), p.DefaultDecision())
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeConflict), "got %v", err)
	_, err = f.editor.Connect(Connection{Source: "accounts", Target: "users", SourceHandle: "col-1-right", TargetHandle: "col-0-left"})
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeConflict), "got %v", err)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateCommitted, f.editor.State())
	assert.Len(t, f.store.Edges(), 1)

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	assert.Len(t, f.backend.created, 1)
}

func TestConfirmChangedReferencedColumn(t *testing.T) {
	f := newFixture()
	p, _ := f.editor.Connect(ordersToUsers)

	edge, err := f.editor.Confirm(context.Background(), Decision{ReferencedTable: "accounts", ReferencedColumn: "code"})
	require.NoError(t, err)
	assert.Equal(t, "accounts", edge.Target)
	assert.Equal(t, "col-1-left", edge.TargetHandle)
	assert.Equal(t, "code", edge.Data.TargetColumn)
	assert.Equal(t, "accounts", f.backend.created[0].ReferencedTable)
	assert.Equal(t, p.SourceColumn, f.backend.created[0].SourceColumn)
}

func TestConfirmLocalValidation(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
	}{
		{"missing table", Decision{ReferencedColumn: "id"}},
		{"missing column", Decision{ReferencedTable: "users"}},
		{"unknown table", Decision{ReferencedTable: "ghosts", ReferencedColumn: "id"}},
		{"unknown column", Decision{ReferencedTable: "users", ReferencedColumn: "uuid"}},
		{"self reference", Decision{ReferencedTable: "orders", ReferencedColumn: "id"}},
		{"bad action", Decision{ReferencedTable: "users", ReferencedColumn: "id", OnDelete: "EXPLODE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.editor.Connect(ordersToUsers)
			require.NoError(t, err)

			_, err = f.editor.Confirm(context.Background(), tt.decision)
			require.Error(t, err)
			assert.True(t, utils.IsErrorType(err, utils.ErrCodeValidation))
			assert.Empty(t, f.backend.created)
			assert.Empty(t, f.store.Edges())
			assert.Equal(t, StatePendingConfirmation, f.editor.State())
		})
	}
}

func TestConfirmBackendRejection(t *testing.T) {
	msg := `there is no unique constraint matching given keys for referenced table "users"`
	tests := []struct {
		name string
		res  models.CreateForeignKeyResponse
		err  error
	}{
		{"failure payload", models.CreateForeignKeyResponse{Success: false, Message: msg}, nil},
		{"transport error", models.CreateForeignKeyResponse{}, errors.New(msg)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.backend.createRes, f.backend.createErr = tt.res, tt.err
			p, _ := f.editor.Connect(ordersToUsers)

			_, err := f.editor.Confirm(context.Background(), p.DefaultDecision())
			require.Error(t, err)
			assert.True(t, utils.IsErrorType(err, utils.ErrCodeBackendRejection))
			assert.Equal(t, msg, utils.UserMessage(err))

			assert.Equal(t, StateRolledBack, f.editor.State())
			_, ok := f.editor.Pending()
			assert.False(t, ok)
			assert.Empty(t, f.store.Edges())
			assert.Equal(t, models.Notification{Severity: models.SeverityError, Message: msg}, f.notes.last())
		})
	}
}

func TestConfirmWithoutPending(t *testing.T) {
	f := newFixture()
	_, err := f.editor.Confirm(context.Background(), Decision{ReferencedTable: "users", ReferencedColumn: "id"})
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeValidation))
	assert.Empty(t, f.backend.created)
}

func TestConfirmSourceRemovedWhilePending(t *testing.T) {
	f := newFixture()
	p, _ := f.editor.Connect(ordersToUsers)
	_, err := f.store.RemoveNode("orders")
	require.NoError(t, err)

	_, err = f.editor.Confirm(context.Background(), p.DefaultDecision())
	assert.Error(t, err)
	assert.Equal(t, StateRolledBack, f.editor.State())
	assert.Empty(t, f.backend.created)
}

func TestCancel(t *testing.T) {
	f := newFixture()
	assert.Error(t, f.editor.Cancel())

	_, err := f.editor.Connect(ordersToUsers)
	require.NoError(t, err)
	require.NoError(t, f.editor.Cancel())

	assert.Equal(t, StateRolledBack, f.editor.State())
	assert.Empty(t, f.backend.created)
	assert.Empty(t, f.store.Edges())

	_, err = f.editor.Connect(ordersToUsers)
	assert.NoError(t, err)
}

func commitOne(t *testing.T, f *fixture) models.Edge {
	t.Helper()
	p, err := f.editor.Connect(ordersToUsers)
	require.NoError(t, err)
	edge, err := f.editor.Confirm(context.Background(), p.DefaultDecision())
	require.NoError(t, err)
	return edge
}

func TestDeleteEdge(t *testing.T) {
	f := newFixture()
	edge := commitOne(t, f)

	require.NoError(t, f.editor.DeleteEdge(context.Background(), edge.ID))
	assert.Equal(t, []models.DeleteForeignKeyRequest{{Schema: "public", TableName: "orders", ConstraintName: "fk_orders_user_id"}}, f.backend.deleted)
	assert.Empty(t, f.store.Edges())
	assert.Equal(t, models.SeveritySuccess, f.notes.last().Severity)
}

func TestDeleteEdgeIsNotOptimistic(t *testing.T) {
	f := newFixture()
	edge := commitOne(t, f)
	f.backend.deleteRes = models.BackendResult{Success: false, Message: "permission denied for table orders"}

	err := f.editor.DeleteEdge(context.Background(), edge.ID)
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeBackendRejection))

	_, ok := f.store.Edge(edge.ID)
	assert.True(t, ok)
	assert.Equal(t, models.Notification{Severity: models.SeverityError, Message: "permission denied for table orders"}, f.notes.last())
}

func TestDeleteUnknownEdge(t *testing.T) {
	f := newFixture()
	err := f.editor.DeleteEdge(context.Background(), "fk-missing")
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeNotFound))
	assert.Empty(t, f.backend.deleted)
}
