// Package store holds the node and edge graph of one editing session. Every mutation goes
// through the Store so that edges never point at a missing node or a stale column handle.
package store

import (
	"sync"

	"schemacanvas/internal/graph"
	"schemacanvas/internal/models"
	"schemacanvas/internal/utils"
)

// NodePatch is merged into a node's data. Nil fields are left unchanged.
type NodePatch struct {
	Label    *string
	Schema   *string
	DB       *string
	Columns  []models.Column
	Loading  *bool
	Position *models.Position
}

type Store struct {
	mu      sync.RWMutex
	nodes   []models.Node
	index   map[string]int
	edges   []models.Edge
	version uint64
}

// New creates a store with an initial graph. Invalid edges are dropped.
func New(nodes []models.Node, edges []models.Edge) *Store {
	s := &Store{index: map[string]int{}}
	s.SetNodes(nodes)
	s.SetEdges(edges)
	s.version = 0
	return s
}

// Version increases on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Nodes() []models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Clone()
	}
	return out
}

func (s *Store) Edges() []models.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Edge(nil), s.edges...)
}

// Snapshot returns a consistent copy of the whole graph and the version it was taken at.
func (s *Store) Snapshot() ([]models.Node, []models.Edge, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]models.Node, len(s.nodes))
	for i, n := range s.nodes {
		nodes[i] = n.Clone()
	}
	return nodes, append([]models.Edge(nil), s.edges...), s.version
}

func (s *Store) Node(id string) (models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Node{}, false
	}
	return s.nodes[i].Clone(), true
}

func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

func (s *Store) Edge(id string) (models.Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.edges {
		if e.ID == id {
			return e, true
		}
	}
	return models.Edge{}, false
}

// FindNodeByLabel resolves a table name to its node, preferring the public schema.
func (s *Store) FindNodeByLabel(label string) (models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := graph.IndexByLabel(s.nodes)[label]
	if !ok {
		return models.Node{}, false
	}
	return s.nodes[i].Clone(), true
}

func (s *Store) AddNode(n models.Node) error {
	if n.ID == "" {
		return utils.NewValidationError("node id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[n.ID]; ok {
		return utils.NewConflictError("node %s already exists", n.ID)
	}
	n = n.Clone()
	assignColumnIDs(n.Data.Columns, nil)
	n.Data.PrimaryKeys = models.PrimaryKeysOf(n.Data.Columns)
	n.Data.ForeignKeys = map[string]models.ForeignKeyRef{}
	s.nodes = append(s.nodes, n)
	s.index[n.ID] = len(s.nodes) - 1
	s.version++
	return nil
}

// UpdateNode merges patch into the node. When the patch carries columns, every edge
// touching the node is re-resolved against the new column list.
func (s *Store) UpdateNode(id string, patch NodePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return utils.NewNotFoundError("node", id)
	}
	n := &s.nodes[i]
	prev := models.CloneColumns(n.Data.Columns)

	if patch.Label != nil {
		n.Data.Label = *patch.Label
	}
	if patch.Schema != nil {
		n.Data.Schema = *patch.Schema
	}
	if patch.DB != nil {
		db := *patch.DB
		n.Data.DB = &db
	}
	if patch.Loading != nil {
		n.Data.Loading = *patch.Loading
	}
	if patch.Position != nil {
		n.Position = *patch.Position
	}
	if patch.Columns != nil {
		n.Data.Columns = models.CloneColumns(patch.Columns)
		assignColumnIDs(n.Data.Columns, prev)
		n.Data.PrimaryKeys = models.PrimaryKeysOf(n.Data.Columns)
	}

	if patch.Columns != nil || patch.Label != nil {
		s.rewriteLocked(id, prev)
	}
	s.version++
	return nil
}

// RemoveNode deletes the node and every edge that starts or ends at it. The removed edges
// are returned.
func (s *Store) RemoveNode(id string) ([]models.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return nil, utils.NewNotFoundError("node", id)
	}
	s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
	s.reindexLocked()

	var removed []models.Edge
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	for _, e := range removed {
		s.refreshForeignKeysLocked(e.Source)
	}
	s.version++
	return removed, nil
}

// AddEdge validates the edge against the current nodes and stores it. Column ids, names and
// handles are filled in from whichever of them the edge carries.
func (s *Store) AddEdge(e models.Edge) (models.Edge, error) {
	if e.ID == "" {
		return models.Edge{}, utils.NewValidationError("edge id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.edges {
		if existing.ID == e.ID {
			return models.Edge{}, utils.NewConflictError("edge %s already exists", e.ID)
		}
	}
	resolved, err := s.resolveEdgeLocked(e)
	if err != nil {
		return models.Edge{}, err
	}
	s.edges = append(s.edges, resolved)
	s.refreshForeignKeysLocked(resolved.Source)
	s.version++
	return resolved, nil
}

func (s *Store) RemoveEdge(id string) (models.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.edges {
		if e.ID == id {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			s.refreshForeignKeysLocked(e.Source)
			s.version++
			return e, nil
		}
	}
	return models.Edge{}, utils.NewNotFoundError("edge", id)
}

// SetNodes replaces every node. Edges left dangling by the replacement are dropped and
// returned; the rest are re-resolved against the new columns.
func (s *Store) SetNodes(nodes []models.Node) []models.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string][]models.Column, len(s.nodes))
	for _, n := range s.nodes {
		prev[n.ID] = n.Data.Columns
	}

	s.nodes = make([]models.Node, 0, len(nodes))
	s.index = make(map[string]int, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		if _, dup := s.index[n.ID]; dup {
			continue
		}
		n = n.Clone()
		assignColumnIDs(n.Data.Columns, prev[n.ID])
		n.Data.PrimaryKeys = models.PrimaryKeysOf(n.Data.Columns)
		n.Data.ForeignKeys = map[string]models.ForeignKeyRef{}
		s.nodes = append(s.nodes, n)
		s.index[n.ID] = len(s.nodes) - 1
	}

	var dropped []models.Edge
	kept := s.edges[:0]
	for _, e := range s.edges {
		if !s.hasNodeLocked(e.Source) || !s.hasNodeLocked(e.Target) {
			dropped = append(dropped, e)
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	for _, n := range s.nodes {
		dropped = append(dropped, s.rewriteLocked(n.ID, prev[n.ID])...)
	}
	s.refreshAllForeignKeysLocked()
	s.version++
	return dropped
}

// SetEdges replaces every edge. Edges that fail validation are skipped and returned with the
// reason.
func (s *Store) SetEdges(edges []models.Edge) []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	s.edges = make([]models.Edge, 0, len(edges))
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e.ID == "" {
			errs = append(errs, utils.NewValidationError("edge id is required"))
			continue
		}
		if seen[e.ID] {
			errs = append(errs, utils.NewConflictError("edge %s already exists", e.ID))
			continue
		}
		resolved, err := s.resolveEdgeLocked(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		seen[e.ID] = true
		s.edges = append(s.edges, resolved)
	}
	s.refreshAllForeignKeysLocked()
	s.version++
	return errs
}

// SetPositions writes back layout results for nodes that are still present. It returns the
// number of nodes updated.
func (s *Store) SetPositions(laidOut []models.Node) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, n := range laidOut {
		i, ok := s.index[n.ID]
		if !ok {
			continue
		}
		s.nodes[i].Position = n.Position
		if n.SourcePosition != "" {
			s.nodes[i].SourcePosition = n.SourcePosition
		}
		if n.TargetPosition != "" {
			s.nodes[i].TargetPosition = n.TargetPosition
		}
		updated++
	}
	if updated > 0 {
		s.version++
	}
	return updated
}

// RewriteHandles re-resolves every edge touching the node against its current columns,
// remapping moved columns and removing edges whose column is gone. Removed edges are returned.
func (s *Store) RewriteHandles(nodeID string) []models.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasNodeLocked(nodeID) {
		return nil
	}
	removed := s.rewriteLocked(nodeID, nil)
	if len(removed) > 0 {
		s.version++
	}
	return removed
}

func (s *Store) hasNodeLocked(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.nodes))
	for i, n := range s.nodes {
		s.index[n.ID] = i
	}
}
