package store

import (
	"schemacanvas/internal/graph"
	"schemacanvas/internal/models"
	"schemacanvas/internal/utils"
)

// endpoint is one side of an edge as stored in its data.
type endpoint struct {
	columnID string
	column   string
	handle   string
}

func sourceEndpoint(e models.Edge) endpoint {
	return endpoint{columnID: e.Data.SourceColumnID, column: e.Data.SourceColumn, handle: e.SourceHandle}
}

func targetEndpoint(e models.Edge) endpoint {
	return endpoint{columnID: e.Data.TargetColumnID, column: e.Data.TargetColumn, handle: e.TargetHandle}
}

// resolveColumn finds the current index of an endpoint's column. A stable column id wins; a
// column id that is no longer present means the column was deleted. Without an id the column
// name is used, and without a name the handle index, read against prev when the columns just
// changed.
func resolveColumn(cols []models.Column, ep endpoint, prev []models.Column) int {
	if ep.columnID != "" {
		for i, c := range cols {
			if c.ID == ep.columnID {
				return i
			}
		}
		return -1
	}
	if ep.column != "" {
		for i, c := range cols {
			if c.Name == ep.column {
				return i
			}
		}
		return -1
	}
	idx, _, ok := graph.ParseHandle(ep.handle)
	if !ok {
		return -1
	}
	if prev != nil {
		if idx >= len(prev) {
			return -1
		}
		return resolveColumn(cols, endpoint{columnID: prev[idx].ID, column: prev[idx].Name}, nil)
	}
	if idx >= len(cols) {
		return -1
	}
	return idx
}

// resolveEdgeLocked validates e against the current nodes and returns it with handles, column
// ids and names all pointing at the same columns.
func (s *Store) resolveEdgeLocked(e models.Edge) (models.Edge, error) {
	if e.Source == e.Target {
		return models.Edge{}, utils.NewValidationError("a table cannot reference itself")
	}
	si, ok := s.index[e.Source]
	if !ok {
		return models.Edge{}, utils.NewValidationError("source node %s does not exist", e.Source)
	}
	ti, ok := s.index[e.Target]
	if !ok {
		return models.Edge{}, utils.NewValidationError("target node %s does not exist", e.Target)
	}
	src, tgt := s.nodes[si], s.nodes[ti]

	sc := resolveColumn(src.Data.Columns, sourceEndpoint(e), nil)
	if sc < 0 {
		return models.Edge{}, utils.NewValidationError("source column of edge %s does not exist on %s", e.ID, src.Data.Label)
	}
	tc := resolveColumn(tgt.Data.Columns, targetEndpoint(e), nil)
	if tc < 0 {
		return models.Edge{}, utils.NewValidationError("target column of edge %s does not exist on %s", e.ID, tgt.Data.Label)
	}

	applySource(&e, src, sc)
	applyTarget(&e, tgt, tc)
	if e.Data.RelationshipType == "" {
		e.Data.RelationshipType = models.RelationshipOneToMany
	}
	e.Data.OnDelete = e.Data.OnDelete.OrDefault()
	e.Data.OnUpdate = e.Data.OnUpdate.OrDefault()
	if e.Data.ConstraintName == "" {
		e.Data.ConstraintName = models.DefaultConstraintName(e.Data.SourceTable, e.Data.SourceColumn)
	}
	return e, nil
}

func applySource(e *models.Edge, n models.Node, i int) {
	col := n.Data.Columns[i]
	e.SourceHandle = graph.SourceHandle(i)
	e.Data.SourceColumnID = col.ID
	e.Data.SourceColumn = col.Name
	e.Data.SourceTable = n.Data.Label
}

func applyTarget(e *models.Edge, n models.Node, i int) {
	col := n.Data.Columns[i]
	e.TargetHandle = graph.TargetHandle(i)
	e.Data.TargetColumnID = col.ID
	e.Data.TargetColumn = col.Name
	e.Data.TargetTable = n.Data.Label
}

// rewriteLocked re-resolves the endpoints on nodeID of every edge touching it. prev holds the
// node's columns before the change, or nil when unknown.
func (s *Store) rewriteLocked(nodeID string, prev []models.Column) []models.Edge {
	i, ok := s.index[nodeID]
	if !ok {
		return nil
	}
	n := s.nodes[i]

	var removed []models.Edge
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source != nodeID && e.Target != nodeID {
			kept = append(kept, e)
			continue
		}
		if e.Source == nodeID {
			idx := resolveColumn(n.Data.Columns, sourceEndpoint(e), prev)
			if idx < 0 {
				removed = append(removed, e)
				continue
			}
			applySource(&e, n, idx)
		}
		if e.Target == nodeID {
			idx := resolveColumn(n.Data.Columns, targetEndpoint(e), prev)
			if idx < 0 {
				removed = append(removed, e)
				continue
			}
			applyTarget(&e, n, idx)
		}
		kept = append(kept, e)
	}
	s.edges = kept
	s.refreshAllForeignKeysLocked()
	return removed
}

func (s *Store) refreshForeignKeysLocked(nodeID string) {
	i, ok := s.index[nodeID]
	if !ok {
		return
	}
	fks := map[string]models.ForeignKeyRef{}
	for _, e := range s.edges {
		if e.Source == nodeID {
			fks[e.Data.SourceColumn] = foreignKeyRef(e)
		}
	}
	s.nodes[i].Data.ForeignKeys = fks
}

func (s *Store) refreshAllForeignKeysLocked() {
	for i := range s.nodes {
		s.nodes[i].Data.ForeignKeys = map[string]models.ForeignKeyRef{}
	}
	for _, e := range s.edges {
		if i, ok := s.index[e.Source]; ok {
			s.nodes[i].Data.ForeignKeys[e.Data.SourceColumn] = foreignKeyRef(e)
		}
	}
}

func foreignKeyRef(e models.Edge) models.ForeignKeyRef {
	return models.ForeignKeyRef{
		Table:          e.Data.TargetTable,
		Column:         e.Data.TargetColumn,
		ConstraintName: e.Data.ConstraintName,
	}
}

// assignColumnIDs gives every column without an id a stable one, reusing the id a column of
// the same name had in prev.
func assignColumnIDs(cols, prev []models.Column) {
	used := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.ID != "" {
			used[c.ID] = true
		}
	}
	byName := make(map[string]string, len(prev))
	for _, c := range prev {
		if c.ID != "" {
			byName[c.Name] = c.ID
		}
	}
	for i := range cols {
		if cols[i].ID != "" {
			continue
		}
		if id, ok := byName[cols[i].Name]; ok && !used[id] {
			cols[i].ID = id
			used[id] = true
			continue
		}
		cols[i].ID = utils.NewColumnID()
	}
}
