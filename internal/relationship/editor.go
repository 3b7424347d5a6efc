// Package relationship turns a column-to-column drag into a confirmed foreign key edge.
// Nothing is added to the canvas until the backend has created the constraint.
package relationship

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"schemacanvas/internal/graph"
	"schemacanvas/internal/metrics"
	"schemacanvas/internal/models"
	"schemacanvas/internal/store"
	"schemacanvas/internal/utils"
)

type State string

var errConfirming = utils.NewConflictError("a relationship is being created")

const (
	StateIdle                State = "idle"
	StatePendingConfirmation State = "pending_confirmation"
	StateCommitted           State = "committed"
	StateRolledBack          State = "rolled_back"
)

// Backend creates and drops foreign key constraints.
type Backend interface {
	CreateForeignKey(ctx context.Context, req models.CreateForeignKeyRequest) (models.CreateForeignKeyResponse, error)
	DeleteForeignKey(ctx context.Context, req models.DeleteForeignKeyRequest) (models.BackendResult, error)
}

// Notifier receives the user-facing outcome of every gesture.
type Notifier interface {
	Notify(severity models.Severity, message string)
}

// Connection is a completed drag from one column handle to another.
type Connection struct {
	Source       string `json:"source" binding:"required"`
	Target       string `json:"target" binding:"required"`
	SourceHandle string `json:"sourceHandle" binding:"required"`
	TargetHandle string `json:"targetHandle" binding:"required"`
}

// PendingConnection is captured when a drag passes validation and waits for the user's decision.
type PendingConnection struct {
	SourceNodeID   string `json:"sourceNodeId"`
	TargetNodeID   string `json:"targetNodeId"`
	Schema         string `json:"schema"`
	SourceTable    string `json:"sourceTable"`
	SourceColumn   string `json:"sourceColumn"`
	SourceColumnID string `json:"sourceColumnId"`
	TargetTable    string `json:"targetTable"`
	TargetColumn   string `json:"targetColumn"`
	TargetColumnID string `json:"targetColumnId"`
}

// Decision is what the user picks before the constraint is created.
type Decision struct {
	ReferencedTable  string                   `json:"referencedTable" binding:"required"`
	ReferencedColumn string                   `json:"referencedColumn" binding:"required"`
	OnDelete         models.ReferentialAction `json:"onDelete" binding:"omitempty,refaction"`
	OnUpdate         models.ReferentialAction `json:"onUpdate" binding:"omitempty,refaction"`
	ConstraintName   string                   `json:"constraintName"`
}

// DefaultDecision references the drag target with NO ACTION on both sides.
func (p PendingConnection) DefaultDecision() Decision {
	return Decision{
		ReferencedTable:  p.TargetTable,
		ReferencedColumn: p.TargetColumn,
		OnDelete:         models.ActionNoAction,
		OnUpdate:         models.ActionNoAction,
	}
}

type Editor struct {
	mu        sync.Mutex
	store     *store.Store
	backend   Backend
	notifier  Notifier
	newEdgeID func() string

	state   State
	pending *PendingConnection
	// confirming is set while CreateForeignKey runs without the lock.
	confirming bool
}

func NewEditor(s *store.Store, backend Backend, notifier Notifier) *Editor {
	return &Editor{
		store:     s,
		backend:   backend,
		notifier:  notifier,
		newEdgeID: utils.NewEdgeID,
		state:     StateIdle,
	}
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending returns the captured connection while a decision is outstanding.
func (e *Editor) Pending() (PendingConnection, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return PendingConnection{}, false
	}
	return *e.pending, true
}

// Connect validates a drag and moves the editor to PendingConfirmation. Invalid drags leave
// the state unchanged and are reported to the user.
func (e *Editor) Connect(c Connection) (PendingConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.confirming {
		return PendingConnection{}, e.reject(errConfirming)
	}
	if e.state == StatePendingConfirmation {
		return PendingConnection{}, e.reject(utils.NewConflictError("another relationship is waiting for confirmation"))
	}
	if c.Source == "" || c.Target == "" {
		return PendingConnection{}, e.reject(utils.NewValidationError("drag has no target"))
	}
	if c.Source == c.Target {
		return PendingConnection{}, e.reject(utils.NewValidationError("a table cannot reference itself"))
	}

	src, ok := e.store.Node(c.Source)
	if !ok {
		return PendingConnection{}, e.reject(utils.NewValidationError("source table is no longer on the canvas"))
	}
	tgt, ok := e.store.Node(c.Target)
	if !ok {
		return PendingConnection{}, e.reject(utils.NewValidationError("target table is no longer on the canvas"))
	}
	srcCol, err := columnAt(src, c.SourceHandle, graph.SideSource)
	if err != nil {
		return PendingConnection{}, e.reject(err)
	}
	tgtCol, err := columnAt(tgt, c.TargetHandle, graph.SideTarget)
	if err != nil {
		return PendingConnection{}, e.reject(err)
	}

	p := PendingConnection{
		SourceNodeID:   src.ID,
		TargetNodeID:   tgt.ID,
		Schema:         src.Data.Schema,
		SourceTable:    src.Data.Label,
		SourceColumn:   srcCol.Name,
		SourceColumnID: srcCol.ID,
		TargetTable:    tgt.Data.Label,
		TargetColumn:   tgtCol.Name,
		TargetColumnID: tgtCol.ID,
	}
	e.pending = &p
	e.state = StatePendingConfirmation
	return p, nil
}

// Confirm creates the constraint on the backend and, only once it succeeds, adds the edge.
// Local validation failures keep the pending connection so the user can correct the decision.
// The editor stays readable while the backend call runs; other gestures get a conflict.
func (e *Editor) Confirm(ctx context.Context, d Decision) (models.Edge, error) {
	e.mu.Lock()
	p, req, err := e.prepare(d)
	if err != nil {
		e.mu.Unlock()
		return models.Edge{}, err
	}
	e.confirming = true
	e.mu.Unlock()

	resp, err := e.backend.CreateForeignKey(ctx, req)
	if err == nil && !resp.Success {
		err = utils.NewBackendRejection(resp.Message, nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.confirming = false
	if err != nil {
		e.rollback()
		metrics.RecordForeignKeyProposal("rejected")
		log.Printf("create foreign key %s rejected: %v", req.ConstraintName, err)
		return models.Edge{}, e.reject(asBackendRejection(err))
	}
	constraint := req.ConstraintName
	if resp.ConstraintName != "" {
		constraint = resp.ConstraintName
	}

	// Columns may have moved while the backend call was in flight.
	edge, err := e.commitEdge(p, req, constraint)
	e.pending = nil
	e.state = StateCommitted
	metrics.RecordForeignKeyProposal("committed")
	if err != nil {
		e.notifier.Notify(models.SeverityWarning, fmt.Sprintf("Constraint %s was created but cannot be drawn: %s", constraint, utils.UserMessage(err)))
		return models.Edge{}, utils.NewIntegrityWarning("constraint %s was created but cannot be drawn", constraint)
	}
	e.notifier.Notify(models.SeveritySuccess, fmt.Sprintf("Relationship created: %s.%s → %s.%s",
		edge.Data.SourceTable, edge.Data.SourceColumn, edge.Data.TargetTable, edge.Data.TargetColumn))
	return edge, nil
}

// prepare validates a decision against the pending connection and builds the backend request.
// Callers hold e.mu.
func (e *Editor) prepare(d Decision) (PendingConnection, models.CreateForeignKeyRequest, error) {
	var none models.CreateForeignKeyRequest
	if e.confirming {
		return PendingConnection{}, none, e.reject(errConfirming)
	}
	if e.state != StatePendingConfirmation || e.pending == nil {
		return PendingConnection{}, none, utils.NewValidationError("no relationship is waiting for confirmation")
	}
	p := *e.pending

	if d.ReferencedTable == "" {
		return p, none, e.invalid(utils.NewValidationError("select a referenced table"))
	}
	if d.ReferencedColumn == "" {
		return p, none, e.invalid(utils.NewValidationError("select a referenced column"))
	}
	onDelete, onUpdate := d.OnDelete.OrDefault(), d.OnUpdate.OrDefault()
	if !onDelete.Valid() || !onUpdate.Valid() {
		return p, none, e.invalid(utils.NewValidationError("unsupported referential action"))
	}

	src, ok := e.store.Node(p.SourceNodeID)
	if !ok {
		e.rollback()
		return p, none, e.reject(utils.NewValidationError("table %s was removed from the canvas", p.SourceTable))
	}
	ref, ok := e.referencedNode(p, d.ReferencedTable)
	if !ok {
		return p, none, e.invalid(utils.NewValidationError("table %s is not on the canvas", d.ReferencedTable))
	}
	if ref.ID == src.ID {
		return p, none, e.invalid(utils.NewValidationError("a table cannot reference itself"))
	}
	if ref.Data.ColumnIndex(d.ReferencedColumn) < 0 {
		return p, none, e.invalid(utils.NewValidationError("column %s does not exist on %s", d.ReferencedColumn, ref.Data.Label))
	}
	srcIdx := src.Data.ColumnIndexByID(p.SourceColumnID)
	if srcIdx < 0 {
		srcIdx = src.Data.ColumnIndex(p.SourceColumn)
	}
	if srcIdx < 0 {
		e.rollback()
		return p, none, e.reject(utils.NewValidationError("column %s was removed from %s", p.SourceColumn, p.SourceTable))
	}
	sourceColumn := src.Data.Columns[srcIdx].Name

	constraint := d.ConstraintName
	if constraint == "" {
		constraint = models.DefaultConstraintName(src.Data.Label, sourceColumn)
	}
	return p, models.CreateForeignKeyRequest{
		Schema:           src.Data.Schema,
		SourceTable:      src.Data.Label,
		SourceColumn:     sourceColumn,
		ReferencedTable:  ref.Data.Label,
		ReferencedColumn: d.ReferencedColumn,
		OnDelete:         onDelete,
		OnUpdate:         onUpdate,
		ConstraintName:   constraint,
	}, nil
}

func (e *Editor) commitEdge(p PendingConnection, req models.CreateForeignKeyRequest, constraint string) (models.Edge, error) {
	src, ok := e.store.Node(p.SourceNodeID)
	if !ok {
		return models.Edge{}, utils.NewNotFoundError("node", p.SourceNodeID)
	}
	ref, ok := e.referencedNode(p, req.ReferencedTable)
	if !ok {
		return models.Edge{}, utils.NewNotFoundError("table", req.ReferencedTable)
	}
	si := src.Data.ColumnIndexByID(p.SourceColumnID)
	if si < 0 {
		si = src.Data.ColumnIndex(req.SourceColumn)
	}
	ti := ref.Data.ColumnIndex(req.ReferencedColumn)
	if si < 0 || ti < 0 {
		return models.Edge{}, utils.NewNotFoundError("column", req.SourceColumn+" or "+req.ReferencedColumn)
	}

	return e.store.AddEdge(models.Edge{
		ID:           e.newEdgeID(),
		Source:       src.ID,
		Target:       ref.ID,
		SourceHandle: graph.SourceHandle(si),
		TargetHandle: graph.TargetHandle(ti),
		Data: models.EdgeData{
			RelationshipType: models.RelationshipOneToMany,
			OnDelete:         req.OnDelete,
			OnUpdate:         req.OnUpdate,
			ConstraintName:   constraint,
			SourceTable:      src.Data.Label,
			SourceColumn:     src.Data.Columns[si].Name,
			TargetTable:      ref.Data.Label,
			TargetColumn:     ref.Data.Columns[ti].Name,
			SourceColumnID:   src.Data.Columns[si].ID,
			TargetColumnID:   ref.Data.Columns[ti].ID,
		},
	})
}

// referencedNode prefers the drag target when the user kept its table.
func (e *Editor) referencedNode(p PendingConnection, table string) (models.Node, bool) {
	if table == p.TargetTable {
		if n, ok := e.store.Node(p.TargetNodeID); ok {
			return n, true
		}
	}
	return e.store.FindNodeByLabel(table)
}

// Cancel discards the pending connection without calling the backend.
func (e *Editor) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.confirming {
		return errConfirming
	}
	if e.state != StatePendingConfirmation {
		return utils.NewValidationError("no relationship is waiting for confirmation")
	}
	e.rollback()
	metrics.RecordForeignKeyProposal("cancelled")
	return nil
}

// DeleteEdge drops the constraint on the backend first. The edge stays on the canvas when the
// backend refuses.
func (e *Editor) DeleteEdge(ctx context.Context, edgeID string) error {
	edge, ok := e.store.Edge(edgeID)
	if !ok {
		return utils.NewNotFoundError("edge", edgeID)
	}
	schema := ""
	if n, ok := e.store.Node(edge.Source); ok {
		schema = n.Data.Schema
	}

	res, err := e.backend.DeleteForeignKey(ctx, models.DeleteForeignKeyRequest{
		Schema:         schema,
		TableName:      edge.Data.SourceTable,
		ConstraintName: edge.Data.ConstraintName,
	})
	if err == nil && !res.Success {
		err = utils.NewBackendRejection(res.Message, nil)
	}
	if err != nil {
		metrics.RecordForeignKeyDeletion("rejected")
		log.Printf("delete foreign key %s rejected: %v", edge.Data.ConstraintName, err)
		err = asBackendRejection(err)
		e.notifier.Notify(models.SeverityError, utils.UserMessage(err))
		return err
	}

	if _, err := e.store.RemoveEdge(edgeID); err != nil && !utils.IsErrorType(err, utils.ErrCodeNotFound) {
		return err
	}
	metrics.RecordForeignKeyDeletion("deleted")
	e.notifier.Notify(models.SeveritySuccess, fmt.Sprintf("Relationship %s deleted", edge.Data.ConstraintName))
	return nil
}

func (e *Editor) rollback() {
	e.pending = nil
	e.state = StateRolledBack
}

// reject reports err to the user and returns it.
func (e *Editor) reject(err error) error {
	e.notifier.Notify(models.SeverityError, utils.UserMessage(err))
	return err
}

func (e *Editor) invalid(err error) error {
	metrics.RecordForeignKeyProposal("invalid")
	return e.reject(err)
}

// columnAt resolves a handle on n. Drags run from a source (right) handle to a target (left) one.
func columnAt(n models.Node, handle, side string) (models.Column, error) {
	i, got, ok := graph.ParseHandle(handle)
	if !ok {
		return models.Column{}, utils.NewValidationError("invalid connection point %q", handle)
	}
	if got != side {
		return models.Column{}, utils.NewValidationError("connection point %s on %s cannot be used here: relationships run from a %s handle to a %s handle",
			handle, n.Data.Label, graph.SideSource, graph.SideTarget)
	}
	if i >= len(n.Data.Columns) || n.Data.Columns[i].Name == "" {
		return models.Column{}, utils.NewValidationError("connection point %s on %s does not match a column", handle, n.Data.Label)
	}
	return n.Data.Columns[i], nil
}

func asBackendRejection(err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return utils.NewBackendRejection("", err)
}
