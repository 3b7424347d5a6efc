package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"schemacanvas/internal/graph"
	"schemacanvas/internal/layout"
	"schemacanvas/internal/metrics"
	"schemacanvas/internal/models"
	"schemacanvas/internal/relationship"
	"schemacanvas/internal/store"
	"schemacanvas/internal/utils"
)

// Backend is the schema backend a session talks to: the remote HTTP service or a live
// PostgreSQL server.
type Backend interface {
	Connect(ctx context.Context, database string) error
	FetchSchema(ctx context.Context, database string) ([]byte, error)
	FetchColumns(ctx context.Context, database, schema, table string) ([]byte, error)
	CreateForeignKey(ctx context.Context, req models.CreateForeignKeyRequest) (models.CreateForeignKeyResponse, error)
	DeleteForeignKey(ctx context.Context, req models.DeleteForeignKeyRequest) (models.BackendResult, error)
	ApplyColumnChange(ctx context.Context, req models.ColumnChangeRequest) (models.BackendResult, error)
}

// SnapshotStore persists node positions per database.
type SnapshotStore interface {
	Save(ctx context.Context, database string, nodes []models.Node) (int, error)
	Positions(ctx context.Context, database string) (map[string]models.Position, error)
}

type SessionOptions struct {
	Direction      layout.Direction
	Debounce       time.Duration
	Layout         layout.Options
	BackendTimeout time.Duration
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Direction:      layout.TopBottom,
		Debounce:       100 * time.Millisecond,
		Layout:         layout.DefaultOptions(),
		BackendTimeout: 30 * time.Second,
	}
}

// CanvasSession is one editing session: a store, the relationship editor working on it, a
// debounced layout and the notifications produced along the way.
type CanvasSession struct {
	ID        uuid.UUID
	CreatedAt time.Time

	store     *store.Store
	editor    *relationship.Editor
	backend   Backend
	snapshots SnapshotStore
	notes     *NotificationLog
	scheduler *LayoutScheduler
	opts      SessionOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// editMu serializes read-modify-write column edits on the store.
	editMu sync.Mutex

	mu            sync.RWMutex
	database      string
	direction     layout.Direction
	drops         map[string]*Drop
	serverColumns map[string][]models.Column
}

func NewCanvasSession(backend Backend, snapshots SnapshotStore, opts SessionOptions) *CanvasSession {
	if opts.Layout.NodeWidth == 0 {
		opts.Layout = layout.DefaultOptions()
	}
	if opts.Direction == "" {
		opts.Direction = layout.TopBottom
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &CanvasSession{
		ID:            uuid.New(),
		CreatedAt:     time.Now(),
		store:         store.New(nil, nil),
		backend:       backend,
		snapshots:     snapshots,
		notes:         NewNotificationLog(0),
		opts:          opts,
		ctx:           ctx,
		cancel:        cancel,
		direction:     opts.Direction,
		drops:         make(map[string]*Drop),
		serverColumns: make(map[string][]models.Column),
	}
	s.editor = relationship.NewEditor(s.store, backend, s.notes)
	s.scheduler = NewLayoutScheduler(opts.Debounce, func() {
		s.ApplyLayout(s.Direction())
	})
	return s
}

// Close stops the layout scheduler, cancels background backend calls and waits for them.
func (s *CanvasSession) Close() {
	s.scheduler.Stop()
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background backend call started so far has finished.
func (s *CanvasSession) Wait() {
	s.wg.Wait()
}

func (s *CanvasSession) Store() *store.Store {
	return s.store
}

func (s *CanvasSession) Database() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.database
}

func (s *CanvasSession) Direction() layout.Direction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direction
}

// GraphView is the renderable state of a session.
type GraphView struct {
	SessionID   uuid.UUID                       `json:"sessionId"`
	Database    string                          `json:"database"`
	Direction   layout.Direction                `json:"direction"`
	Version     uint64                          `json:"version"`
	Nodes       []models.Node                   `json:"nodes"`
	Edges       []models.Edge                   `json:"edges"`
	EditorState relationship.State              `json:"editorState"`
	Pending     *relationship.PendingConnection `json:"pending,omitempty"`
	Drops       []Drop                          `json:"drops"`
	LastNotice  uint64                          `json:"lastNotification"`
}

func (s *CanvasSession) Graph() GraphView {
	nodes, edges, version := s.store.Snapshot()
	view := GraphView{
		SessionID:   s.ID,
		Database:    s.Database(),
		Direction:   s.Direction(),
		Version:     version,
		Nodes:       nodes,
		Edges:       edges,
		EditorState: s.editor.State(),
		Drops:       s.Drops(),
		LastNotice:  s.notes.Last(),
	}
	if p, ok := s.editor.Pending(); ok {
		view.Pending = &p
	}
	return view
}

// LoadRequest asks for a bulk load of a database schema onto an empty canvas.
type LoadRequest struct {
	Database         string `json:"database" binding:"required"`
	Direction        string `json:"direction" binding:"omitempty,oneof=TB LR tb lr"`
	RestorePositions bool   `json:"restorePositions"`
}

type LoadResult struct {
	Tables   int             `json:"tables"`
	Edges    int             `json:"edges"`
	Warnings []graph.Warning `json:"warnings"`
}

// LoadSchema replaces the canvas with the schema of a database and lays it out immediately.
// Records that cannot be drawn are reported as warnings and never fail the load.
func (s *CanvasSession) LoadSchema(ctx context.Context, req LoadRequest) (LoadResult, error) {
	dir := s.Direction()
	if req.Direction != "" {
		parsed, err := layout.ParseDirection(req.Direction)
		if err != nil {
			return LoadResult{}, utils.NewValidationError("%s", err.Error())
		}
		dir = parsed
	}
	if strings.TrimSpace(req.Database) == "" {
		return LoadResult{}, utils.NewValidationError("database is required")
	}

	if err := s.backend.Connect(ctx, req.Database); err != nil {
		s.notes.Notify(models.SeverityError, fmt.Sprintf("Could not connect to %s: %s", req.Database, utils.UserMessage(err)))
		return LoadResult{}, asRejection(err)
	}
	raw, err := s.backend.FetchSchema(ctx, req.Database)
	if err != nil {
		s.notes.Notify(models.SeverityError, fmt.Sprintf("Could not load schema of %s: %s", req.Database, utils.UserMessage(err)))
		return LoadResult{}, asRejection(err)
	}

	payload, warnings, err := graph.Normalize(raw)
	if err != nil {
		s.notes.Notify(models.SeverityError, "The schema returned by the backend could not be read")
		return LoadResult{}, utils.NewBackendRejection("unreadable schema payload", err)
	}

	builder := graph.NewBuilder(req.Database)
	nodes, edges, buildWarnings := builder.Build(payload)
	warnings = append(warnings, buildWarnings...)

	s.editMu.Lock()
	s.store.SetNodes(nodes)
	for _, err := range s.store.SetEdges(edges) {
		warnings = append(warnings, graph.Warning{Record: "edge", Message: utils.UserMessage(err)})
	}
	s.editMu.Unlock()

	s.mu.Lock()
	s.database = req.Database
	s.direction = dir
	s.serverColumns = make(map[string][]models.Column, len(nodes))
	for _, n := range s.store.Nodes() {
		s.serverColumns[n.ID] = models.CloneColumns(n.Data.Columns)
	}
	s.mu.Unlock()

	metrics.RecordGraphBuild(len(warnings))
	for _, w := range warnings {
		s.notes.Notify(models.SeverityWarning, w.String())
	}

	s.ApplyLayout(dir)
	if req.RestorePositions {
		s.restorePositions(ctx, req.Database)
	}

	result := LoadResult{Tables: len(s.store.Nodes()), Edges: len(s.store.Edges()), Warnings: warnings}
	if result.Warnings == nil {
		result.Warnings = []graph.Warning{}
	}
	log.Printf("loaded %d tables and %d relationships from %s (%d warnings)", result.Tables, result.Edges, req.Database, len(warnings))
	s.notes.Notify(models.SeveritySuccess, fmt.Sprintf("Loaded %d tables from %s", result.Tables, req.Database))
	return result, nil
}

func (s *CanvasSession) restorePositions(ctx context.Context, database string) {
	if s.snapshots == nil {
		return
	}
	positions, err := s.snapshots.Positions(ctx, database)
	if err != nil {
		log.Printf("failed to restore positions for %s: %v", database, err)
		s.notes.Notify(models.SeverityWarning, "Saved positions could not be restored")
		return
	}
	laidOut := make([]models.Node, 0, len(positions))
	for id, pos := range positions {
		laidOut = append(laidOut, models.Node{ID: id, Position: pos})
	}
	if n := s.store.SetPositions(laidOut); n > 0 {
		log.Printf("restored %d saved positions for %s", n, database)
	}
}

// SaveSnapshot persists the current node positions of the loaded database.
func (s *CanvasSession) SaveSnapshot(ctx context.Context) (int, error) {
	if s.snapshots == nil {
		return 0, utils.NewValidationError("snapshots are not enabled")
	}
	database := s.Database()
	if database == "" {
		return 0, utils.NewValidationError("no database loaded in this session")
	}
	n, err := s.snapshots.Save(ctx, database, s.store.Nodes())
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshot: %w", err)
	}
	s.notes.Notify(models.SeverityInfo, fmt.Sprintf("Saved positions of %d tables", n))
	return n, nil
}

// ApplyLayout lays out the current graph and writes positions back for nodes still present.
func (s *CanvasSession) ApplyLayout(dir layout.Direction) int {
	if dir == "" {
		dir = s.Direction()
	}
	start := time.Now()
	nodes, edges, _ := s.store.Snapshot()
	laidOut := layout.Layout(nodes, edges, dir, s.opts.Layout)
	updated := s.store.SetPositions(laidOut)
	metrics.RecordLayout(string(dir), time.Since(start))

	s.mu.Lock()
	s.direction = dir
	s.mu.Unlock()
	return updated
}

// ScheduleLayout requests a debounced layout pass.
func (s *CanvasSession) ScheduleLayout() {
	s.scheduler.Schedule()
}

func (s *CanvasSession) LayoutPending() bool {
	return s.scheduler.Pending()
}

func (s *CanvasSession) FlushLayout() {
	s.scheduler.Flush()
}

func (s *CanvasSession) Notifications(since uint64) []models.Notification {
	return s.notes.Since(since)
}

// CreateTable adds a synthetic table that is not bound to any database yet.
func (s *CanvasSession) CreateTable(name string, position *models.Position) (models.Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Node{}, utils.NewValidationError("table name is required")
	}
	if _, exists := s.store.FindNodeByLabel(name); exists {
		return models.Node{}, utils.NewConflictError("table %s is already on the canvas", name)
	}

	node := models.Node{
		ID:   "node-" + uuid.NewString(),
		Type: graph.NodeTypeTable,
		Data: models.NodeData{
			Label:  name,
			Schema: models.DefaultSchema,
			Columns: []models.Column{
				{Name: "id", Type: "SERIAL", IsPrimaryKey: true},
			},
		},
	}
	if position != nil {
		node.Position = *position
	} else {
		node.Position = graph.NewBuilder("").Slot(len(s.store.Nodes()))
	}
	if err := s.store.AddNode(node); err != nil {
		return models.Node{}, err
	}
	if position == nil {
		s.ScheduleLayout()
	}
	created, _ := s.store.Node(node.ID)
	return created, nil
}

// RemoveTable deletes a node and every relationship touching it from the canvas.
func (s *CanvasSession) RemoveTable(nodeID string) ([]models.Edge, error) {
	node, ok := s.store.Node(nodeID)
	if !ok {
		return nil, utils.NewNotFoundError("node", nodeID)
	}
	removed, err := s.store.RemoveNode(nodeID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.serverColumns, nodeID)
	s.abandonDrop(nodeID)
	s.mu.Unlock()

	msg := fmt.Sprintf("Table %s removed from canvas", node.Data.Label)
	if len(removed) > 0 {
		msg += fmt.Sprintf(" with %d relationships", len(removed))
	}
	s.notes.Notify(models.SeverityInfo, msg)
	return removed, nil
}

// Relationship gestures go straight to the editor.

func (s *CanvasSession) Connect(c relationship.Connection) (relationship.PendingConnection, error) {
	return s.editor.Connect(c)
}

func (s *CanvasSession) Pending() (relationship.PendingConnection, bool) {
	return s.editor.Pending()
}

func (s *CanvasSession) Confirm(ctx context.Context, d relationship.Decision) (models.Edge, error) {
	return s.editor.Confirm(ctx, d)
}

func (s *CanvasSession) Cancel() error {
	return s.editor.Cancel()
}

func (s *CanvasSession) DeleteEdge(ctx context.Context, edgeID string) error {
	return s.editor.DeleteEdge(ctx, edgeID)
}

func (s *CanvasSession) EditorState() relationship.State {
	return s.editor.State()
}

// background runs fn off the request path with the session's lifetime and a backend timeout.
func (s *CanvasSession) background(fn func(ctx context.Context)) {
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.BackendTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func asRejection(err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return utils.NewBackendRejection("", err)
}
