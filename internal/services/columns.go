package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"schemacanvas/internal/models"
	"schemacanvas/internal/store"
	"schemacanvas/internal/utils"
)

// ColumnInput is a column as entered in the table editor.
type ColumnInput struct {
	Name         string  `json:"name" binding:"required"`
	Type         string  `json:"type" binding:"required"`
	Nullable     bool    `json:"nullable"`
	IsPrimaryKey bool    `json:"isPrimaryKey"`
	IsUnique     bool    `json:"isUnique"`
	DefaultValue *string `json:"defaultValue"`
}

func (in ColumnInput) column() models.Column {
	c := models.Column{
		Name:         strings.TrimSpace(in.Name),
		Type:         strings.TrimSpace(in.Type),
		Nullable:     in.Nullable && !in.IsPrimaryKey,
		IsPrimaryKey: in.IsPrimaryKey,
		IsUnique:     in.IsUnique,
	}
	if in.DefaultValue != nil {
		v := *in.DefaultValue
		c.DefaultValue = &v
	}
	return c
}

// ColumnEdit is the outcome of a column edit: the node as stored and any relationships that
// no longer have a column to attach to.
type ColumnEdit struct {
	Node         models.Node   `json:"node"`
	RemovedEdges []models.Edge `json:"removedEdges"`
}

// AddColumn appends a column. The canvas changes immediately; bound tables forward the change
// to the backend in the background.
func (s *CanvasSession) AddColumn(nodeID string, in ColumnInput) (ColumnEdit, error) {
	col := in.column()
	if col.Name == "" || col.Type == "" {
		return ColumnEdit{}, utils.NewValidationError("column name and type are required")
	}
	return s.editColumns(nodeID, models.ColumnAdd, func(cols []models.Column) ([]models.Column, models.Column, string, error) {
		if (models.NodeData{Columns: cols}).ColumnIndex(col.Name) >= 0 {
			return nil, models.Column{}, "", utils.NewConflictError("column %s already exists", col.Name)
		}
		return append(cols, col), col, col.Name, nil
	})
}

// UpdateColumn replaces a column in place. Renames keep the column id, so relationships follow.
func (s *CanvasSession) UpdateColumn(nodeID, columnID string, in ColumnInput) (ColumnEdit, error) {
	col := in.column()
	if col.Name == "" || col.Type == "" {
		return ColumnEdit{}, utils.NewValidationError("column name and type are required")
	}
	return s.editColumns(nodeID, models.ColumnUpdate, func(cols []models.Column) ([]models.Column, models.Column, string, error) {
		data := models.NodeData{Columns: cols}
		i := data.ColumnIndexByID(columnID)
		if i < 0 {
			return nil, models.Column{}, "", utils.NewNotFoundError("column", columnID)
		}
		if j := data.ColumnIndex(col.Name); j >= 0 && j != i {
			return nil, models.Column{}, "", utils.NewConflictError("column %s already exists", col.Name)
		}
		previous := cols[i].Name
		col.ID = cols[i].ID
		cols[i] = col
		return cols, col, previous, nil
	})
}

func (s *CanvasSession) DeleteColumn(nodeID, columnID string) (ColumnEdit, error) {
	return s.editColumns(nodeID, models.ColumnDrop, func(cols []models.Column) ([]models.Column, models.Column, string, error) {
		i := (models.NodeData{Columns: cols}).ColumnIndexByID(columnID)
		if i < 0 {
			return nil, models.Column{}, "", utils.NewNotFoundError("column", columnID)
		}
		removed := cols[i]
		return append(cols[:i], cols[i+1:]...), removed, removed.Name, nil
	})
}

// MoveColumn moves a column to a new index. Relationships are remapped to the shifted handles.
func (s *CanvasSession) MoveColumn(nodeID, columnID string, to int) (ColumnEdit, error) {
	return s.editColumns(nodeID, models.ColumnMove, func(cols []models.Column) ([]models.Column, models.Column, string, error) {
		i := (models.NodeData{Columns: cols}).ColumnIndexByID(columnID)
		if i < 0 {
			return nil, models.Column{}, "", utils.NewNotFoundError("column", columnID)
		}
		if to < 0 || to >= len(cols) {
			return nil, models.Column{}, "", utils.NewValidationError("index %d is out of range", to)
		}
		moved := cols[i]
		cols = append(cols[:i], cols[i+1:]...)
		cols = append(cols[:to], append([]models.Column{moved}, cols[to:]...)...)
		return cols, moved, moved.Name, nil
	})
}

// columnMutation edits a copy of a node's columns. It returns the new list, the column the
// change is about and, for renames, the column's previous name.
type columnMutation func(cols []models.Column) (next []models.Column, changed models.Column, previous string, err error)

func (s *CanvasSession) editColumns(nodeID string, action models.ColumnAction, mutate columnMutation) (ColumnEdit, error) {
	s.editMu.Lock()
	node, ok := s.store.Node(nodeID)
	if !ok {
		s.editMu.Unlock()
		return ColumnEdit{}, utils.NewNotFoundError("node", nodeID)
	}
	if node.Data.Loading {
		s.editMu.Unlock()
		return ColumnEdit{}, utils.NewConflictError("table %s is still loading", node.Data.Label)
	}

	before := edgeIDsTouching(s.store.Edges(), nodeID)
	cols, changed, previous, err := mutate(models.CloneColumns(node.Data.Columns))
	if err != nil {
		s.editMu.Unlock()
		return ColumnEdit{}, err
	}
	if err := s.store.UpdateNode(nodeID, store.NodePatch{Columns: cols}); err != nil {
		s.editMu.Unlock()
		return ColumnEdit{}, err
	}
	updated, _ := s.store.Node(nodeID)
	after := edgeIDsTouching(s.store.Edges(), nodeID)
	s.editMu.Unlock()

	edit := ColumnEdit{Node: updated, RemovedEdges: []models.Edge{}}
	for id, e := range before {
		if _, kept := after[id]; !kept {
			edit.RemovedEdges = append(edit.RemovedEdges, e)
		}
	}
	sort.Slice(edit.RemovedEdges, func(i, j int) bool { return edit.RemovedEdges[i].ID < edit.RemovedEdges[j].ID })
	if n := len(edit.RemovedEdges); n > 0 {
		s.notes.Notify(models.SeverityWarning, fmt.Sprintf("%d relationships on %s were removed with the column", n, node.Data.Label))
	}

	if node.Data.DB != nil {
		// The stored column carries its id; send that version.
		if i := updated.Data.ColumnIndex(changed.Name); i >= 0 && action != models.ColumnDrop {
			changed = updated.Data.Columns[i]
		}
		req := models.ColumnChangeRequest{
			Database:  *node.Data.DB,
			Schema:    node.Data.Schema,
			TableName: node.Data.Label,
			Action:    action,
			Column:    changed,
		}
		if previous != changed.Name {
			req.PreviousName = previous
		}
		s.forwardColumnChange(req)
	}
	return edit, nil
}

// forwardColumnChange sends a column edit to the backend without waiting. A failure leaves the
// canvas as it is and warns the user; Reconcile can restore the server's view.
func (s *CanvasSession) forwardColumnChange(req models.ColumnChangeRequest) {
	s.background(func(ctx context.Context) {
		res, err := s.backend.ApplyColumnChange(ctx, req)
		if err == nil && !res.Success {
			err = utils.NewBackendRejection(res.Message, nil)
		}
		if err != nil {
			log.Printf("column %s on %s.%s not applied: %v", req.Action, req.Schema, req.TableName, err)
			s.notes.Notify(models.SeverityWarning, fmt.Sprintf("Change to %s.%s was not saved: %s",
				req.TableName, req.Column.Name, utils.UserMessage(err)))
		}
	})
}

func edgeIDsTouching(edges []models.Edge, nodeID string) map[string]models.Edge {
	out := make(map[string]models.Edge)
	for _, e := range edges {
		if e.Source == nodeID || e.Target == nodeID {
			out[e.ID] = e
		}
	}
	return out
}
