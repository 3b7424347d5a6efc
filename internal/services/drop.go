package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"schemacanvas/internal/graph"
	"schemacanvas/internal/metrics"
	"schemacanvas/internal/models"
	"schemacanvas/internal/store"
	"schemacanvas/internal/utils"
)

// DropState is the progress of one table dragged onto the canvas from the sidebar.
type DropState string

const (
	DropAwaitingConnection DropState = "awaiting_connection"
	DropAwaitingColumns    DropState = "awaiting_columns"
	DropReady              DropState = "ready"
	DropFailed             DropState = "failed"
	DropAbandoned          DropState = "abandoned"
)

func (s DropState) terminal() bool {
	return s == DropReady || s == DropFailed || s == DropAbandoned
}

type DropRequest struct {
	Database string           `json:"database" binding:"required"`
	Schema   string           `json:"schema"`
	Table    string           `json:"table" binding:"required"`
	Position *models.Position `json:"position"`
}

// Drop is the state of one in-flight or finished table drop.
type Drop struct {
	NodeID    string    `json:"nodeId"`
	Database  string    `json:"database"`
	Schema    string    `json:"schema"`
	Table     string    `json:"table"`
	State     DropState `json:"state"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// DropTable puts a loading placeholder on the canvas at once and resolves its columns in the
// background: connect, then fetch columns, then fill the node. Every drop advances its own
// state independently, so concurrent drops never share progress.
func (s *CanvasSession) DropTable(req DropRequest) (Drop, error) {
	req.Table = strings.TrimSpace(req.Table)
	if req.Database == "" || req.Table == "" {
		return Drop{}, utils.NewValidationError("database and table are required")
	}
	if req.Schema == "" {
		req.Schema = models.DefaultSchema
	}
	nodeID := graph.NodeID(req.Schema, req.Table)

	s.mu.Lock()
	if d, ok := s.drops[nodeID]; ok && !d.State.terminal() {
		s.mu.Unlock()
		return Drop{}, utils.NewConflictError("table %s is already being added", req.Table)
	}
	if s.store.HasNode(nodeID) {
		s.mu.Unlock()
		return Drop{}, utils.NewConflictError("table %s is already on the canvas", req.Table)
	}

	pos := graph.NewBuilder("").Slot(len(s.store.Nodes()))
	if req.Position != nil {
		pos = *req.Position
	}
	db := req.Database
	node := models.Node{
		ID:       nodeID,
		Type:     graph.NodeTypeTable,
		Position: pos,
		Data: models.NodeData{
			Label:   req.Table,
			Schema:  req.Schema,
			DB:      &db,
			Columns: []models.Column{},
			Loading: true,
		},
	}
	if err := s.store.AddNode(node); err != nil {
		s.mu.Unlock()
		return Drop{}, err
	}
	drop := &Drop{
		NodeID:    nodeID,
		Database:  req.Database,
		Schema:    req.Schema,
		Table:     req.Table,
		State:     DropAwaitingConnection,
		StartedAt: time.Now(),
	}
	s.drops[nodeID] = drop
	snapshot := *drop
	s.mu.Unlock()

	s.background(func(ctx context.Context) {
		s.resolveDrop(ctx, drop)
	})
	return snapshot, nil
}

// resolveDrop runs one drop to completion. NodeID, Database, Schema and Table never change after
// DropTable; State and Error are guarded by s.mu.
func (s *CanvasSession) resolveDrop(ctx context.Context, d *Drop) {
	if err := s.backend.Connect(ctx, d.Database); err != nil {
		s.failDrop(d, err)
		return
	}
	if !s.advanceDrop(d, DropAwaitingColumns) {
		return
	}

	raw, err := s.backend.FetchColumns(ctx, d.Database, d.Schema, d.Table)
	if err != nil {
		s.failDrop(d, err)
		return
	}
	cols, warnings, err := graph.NormalizeColumns(raw, d.Table)
	if err != nil {
		s.failDrop(d, utils.NewBackendRejection("unreadable column list", err))
		return
	}

	// The node may have been deleted, or deleted and dropped again, while the fetch was in flight.
	s.editMu.Lock()
	if !s.liveDrop(d) || !s.store.HasNode(d.NodeID) {
		s.editMu.Unlock()
		s.finishDrop(d, DropAbandoned, "")
		log.Printf("discarding columns of %s: node removed during fetch", d.Table)
		return
	}
	loading := false
	err = s.store.UpdateNode(d.NodeID, store.NodePatch{Columns: cols, Loading: &loading})
	s.editMu.Unlock()
	if err != nil {
		s.finishDrop(d, DropAbandoned, "")
		return
	}
	for _, w := range warnings {
		s.notes.Notify(models.SeverityWarning, w.String())
	}

	if n, ok := s.store.Node(d.NodeID); ok {
		s.mu.Lock()
		s.serverColumns[d.NodeID] = models.CloneColumns(n.Data.Columns)
		s.mu.Unlock()
	}
	s.finishDrop(d, DropReady, "")
	s.notes.Notify(models.SeveritySuccess, fmt.Sprintf("Table %s added with %d columns", d.Table, len(cols)))
	s.ScheduleLayout()
}

// liveDrop reports whether d is still the current, unfinished drop of its node.
func (s *CanvasSession) liveDrop(d *Drop) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drops[d.NodeID] == d && !d.State.terminal()
}

// advanceDrop moves a drop forward unless it already ended. It reports whether the drop is
// still live.
func (s *CanvasSession) advanceDrop(d *Drop, state DropState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drops[d.NodeID] != d || d.State.terminal() {
		return false
	}
	if !s.store.HasNode(d.NodeID) {
		d.State = DropAbandoned
		metrics.RecordTableDrop(string(DropAbandoned))
		return false
	}
	d.State = state
	return true
}

func (s *CanvasSession) finishDrop(d *Drop, state DropState, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.State.terminal() {
		return
	}
	d.State = state
	d.Error = msg
	metrics.RecordTableDrop(string(state))
}

// abandonDrop ends the unfinished drop of a node removed from the canvas. Callers hold s.mu.
func (s *CanvasSession) abandonDrop(nodeID string) {
	if d, ok := s.drops[nodeID]; ok && !d.State.terminal() {
		d.State = DropAbandoned
		metrics.RecordTableDrop(string(DropAbandoned))
	}
}

// failDrop removes the placeholder and tells the user why the table could not be added.
func (s *CanvasSession) failDrop(d *Drop, err error) {
	msg := utils.UserMessage(err)
	s.editMu.Lock()
	if !s.liveDrop(d) {
		// Removed by the user, and possibly dropped again; the node is no longer ours.
		s.editMu.Unlock()
		s.finishDrop(d, DropAbandoned, "")
		return
	}
	_, rmErr := s.store.RemoveNode(d.NodeID)
	s.editMu.Unlock()
	if rmErr != nil {
		s.finishDrop(d, DropAbandoned, "")
		return
	}
	s.finishDrop(d, DropFailed, msg)
	log.Printf("drop of %s.%s failed: %v", d.Schema, d.Table, err)
	s.notes.Notify(models.SeverityError, fmt.Sprintf("Could not add table %s: %s", d.Table, msg))
}

// Drops returns every drop of the session, oldest first.
func (s *CanvasSession) Drops() []Drop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Drop, 0, len(s.drops))
	for _, d := range s.drops {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

func (s *CanvasSession) Drop(nodeID string) (Drop, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drops[nodeID]
	if !ok {
		return Drop{}, false
	}
	return *d, true
}
