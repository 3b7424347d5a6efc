package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacanvas/internal/graph"
	"schemacanvas/internal/models"
	"schemacanvas/internal/utils"
)

func tableNode(id string, cols ...string) models.Node {
	n := models.Node{ID: id, Type: graph.NodeTypeTable, Data: models.NodeData{Label: id, Schema: "public"}}
	for _, c := range cols {
		n.Data.Columns = append(n.Data.Columns, models.Column{ID: id + "." + c, Name: c, Type: "int"})
	}
	return n
}

func fkEdge(id, src, srcCol, tgt, tgtCol string) models.Edge {
	return models.Edge{
		ID:     id,
		Source: src,
		Target: tgt,
		Data: models.EdgeData{
			SourceColumn: srcCol,
			TargetColumn: tgtCol,
		},
	}
}

func shopStore(t *testing.T) *Store {
	t.Helper()
	s := New(
		[]models.Node{
			tableNode("users", "id", "email"),
			tableNode("orders", "id", "note", "user_id"),
			tableNode("items", "id", "order_id"),
		},
		nil,
	)
	_, err := s.AddEdge(fkEdge("fk-orders-users", "orders", "user_id", "users", "id"))
	require.NoError(t, err)
	_, err = s.AddEdge(fkEdge("fk-items-orders", "items", "order_id", "orders", "id"))
	require.NoError(t, err)
	return s
}

func columnsOf(t *testing.T, s *Store, id string) []models.Column {
	t.Helper()
	n, ok := s.Node(id)
	require.True(t, ok)
	return n.Data.Columns
}

// assertHandlesConsistent checks that every edge handle addresses the column its data names.
func assertHandlesConsistent(t *testing.T, s *Store) {
	t.Helper()
	for _, e := range s.Edges() {
		src, ok := s.Node(e.Source)
		require.True(t, ok, "edge %s has no source", e.ID)
		tgt, ok := s.Node(e.Target)
		require.True(t, ok, "edge %s has no target", e.ID)

		si, _, ok := graph.ParseHandle(e.SourceHandle)
		require.True(t, ok)
		ti, _, ok := graph.ParseHandle(e.TargetHandle)
		require.True(t, ok)
		require.Less(t, si, len(src.Data.Columns))
		require.Less(t, ti, len(tgt.Data.Columns))
		assert.Equal(t, e.Data.SourceColumn, src.Data.Columns[si].Name, "edge %s source", e.ID)
		assert.Equal(t, e.Data.TargetColumn, tgt.Data.Columns[ti].Name, "edge %s target", e.ID)
	}
}

func TestAddEdgeResolvesHandles(t *testing.T) {
	s := shopStore(t)

	e, ok := s.Edge("fk-orders-users")
	require.True(t, ok)
	assert.Equal(t, "col-2-right", e.SourceHandle)
	assert.Equal(t, "col-0-left", e.TargetHandle)
	assert.Equal(t, "orders.user_id", e.Data.SourceColumnID)
	assert.Equal(t, "users.id", e.Data.TargetColumnID)
	assert.Equal(t, "fk_orders_user_id", e.Data.ConstraintName)
	assert.Equal(t, models.ActionNoAction, e.Data.OnDelete)
	assert.Equal(t, models.RelationshipOneToMany, e.Data.RelationshipType)

	orders, _ := s.Node("orders")
	assert.Equal(t, models.ForeignKeyRef{Table: "users", Column: "id", ConstraintName: "fk_orders_user_id"}, orders.Data.ForeignKeys["user_id"])
}

func TestAddEdgeFromHandlesOnly(t *testing.T) {
	s := New([]models.Node{tableNode("a", "id", "b_id"), tableNode("b", "id")}, nil)

	e, err := s.AddEdge(models.Edge{ID: "e1", Source: "a", Target: "b", SourceHandle: "col-1-right", TargetHandle: "col-0-left"})
	require.NoError(t, err)
	assert.Equal(t, "b_id", e.Data.SourceColumn)
	assert.Equal(t, "id", e.Data.TargetColumn)
	assert.Equal(t, "a", e.Data.SourceTable)
	assert.Equal(t, "b", e.Data.TargetTable)
}

func TestAddEdgeValidation(t *testing.T) {
	tests := []struct {
		name string
		edge models.Edge
		code string
	}{
		{"missing id", fkEdge("", "orders", "user_id", "users", "id"), utils.ErrCodeValidation},
		{"duplicate id", fkEdge("fk-orders-users", "orders", "user_id", "users", "id"), utils.ErrCodeConflict},
		{"self reference", fkEdge("e", "users", "id", "users", "id"), utils.ErrCodeValidation},
		{"missing source node", fkEdge("e", "ghost", "id", "users", "id"), utils.ErrCodeValidation},
		{"missing target node", fkEdge("e", "orders", "user_id", "ghost", "id"), utils.ErrCodeValidation},
		{"missing column", fkEdge("e", "orders", "account_id", "users", "id"), utils.ErrCodeValidation},
		{"handle out of range", models.Edge{ID: "e", Source: "orders", Target: "users", SourceHandle: "col-9-right", TargetHandle: "col-0-left"}, utils.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := shopStore(t)
			before := s.Edges()
			_, err := s.AddEdge(tt.edge)
			require.Error(t, err)
			assert.True(t, utils.IsErrorType(err, tt.code), err.Error())
			assert.Equal(t, before, s.Edges())
		})
	}
}

func TestRemoveNodeCascades(t *testing.T) {
	s := New([]models.Node{tableNode("A", "id", "b_id"), tableNode("B", "id")}, nil)
	_, err := s.AddEdge(fkEdge("a-b", "A", "b_id", "B", "id"))
	require.NoError(t, err)

	removed, err := s.RemoveNode("A")
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.Empty(t, s.Edges())
	assert.False(t, s.HasNode("A"))
	assert.True(t, s.HasNode("B"))
}

func TestRemoveNodeCascadesEveryNode(t *testing.T) {
	for _, id := range []string{"users", "orders", "items"} {
		t.Run(id, func(t *testing.T) {
			s := shopStore(t)
			_, err := s.RemoveNode(id)
			require.NoError(t, err)
			for _, e := range s.Edges() {
				assert.NotEqual(t, id, e.Source)
				assert.NotEqual(t, id, e.Target)
			}
			assertHandlesConsistent(t, s)
		})
	}
}

func TestRemoveNodeClearsForeignKeys(t *testing.T) {
	s := shopStore(t)
	_, err := s.RemoveNode("users")
	require.NoError(t, err)

	orders, _ := s.Node("orders")
	assert.NotContains(t, orders.Data.ForeignKeys, "user_id")

	_, err = s.RemoveNode("users")
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeNotFound))
}

func TestColumnMutationsKeepHandlesConsistent(t *testing.T) {
	newCol := models.Column{Name: "created_at", Type: "timestamptz"}

	tests := []struct {
		name       string
		node       string
		mutate     func(cols []models.Column) []models.Column
		wantSource string
		wantTarget string
		wantEdges  int
	}{
		{
			name: "insert before source column",
			node: "orders",
			mutate: func(cols []models.Column) []models.Column {
				return append([]models.Column{newCol}, cols...)
			},
			wantSource: "col-3-right",
			wantTarget: "col-0-left",
			wantEdges:  2,
		},
		{
			name: "delete column before source column",
			node: "orders",
			mutate: func(cols []models.Column) []models.Column {
				return []models.Column{cols[0], cols[2]}
			},
			wantSource: "col-1-right",
			wantTarget: "col-0-left",
			wantEdges:  2,
		},
		{
			name: "insert before target column",
			node: "users",
			mutate: func(cols []models.Column) []models.Column {
				return append([]models.Column{newCol}, cols...)
			},
			wantSource: "col-2-right",
			wantTarget: "col-1-left",
			wantEdges:  2,
		},
		{
			name: "reorder columns",
			node: "orders",
			mutate: func(cols []models.Column) []models.Column {
				return []models.Column{cols[2], cols[0], cols[1]}
			},
			wantSource: "col-0-right",
			wantTarget: "col-0-left",
			wantEdges:  2,
		},
		{
			name: "delete referenced column",
			node: "users",
			mutate: func(cols []models.Column) []models.Column {
				return cols[1:]
			},
			wantEdges: 1,
		},
		{
			name: "delete source column",
			node: "orders",
			mutate: func(cols []models.Column) []models.Column {
				return cols[:2]
			},
			wantEdges: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := shopStore(t)
			cols := tt.mutate(columnsOf(t, s, tt.node))
			require.NoError(t, s.UpdateNode(tt.node, NodePatch{Columns: cols}))

			assert.Len(t, s.Edges(), tt.wantEdges)
			assertHandlesConsistent(t, s)

			e, ok := s.Edge("fk-orders-users")
			if tt.wantSource == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantSource, e.SourceHandle)
			assert.Equal(t, tt.wantTarget, e.TargetHandle)
			assert.Equal(t, "user_id", e.Data.SourceColumn)
		})
	}
}

func TestRenameColumnFollowsEdge(t *testing.T) {
	s := shopStore(t)
	cols := columnsOf(t, s, "users")
	cols[0].Name = "user_pk"
	require.NoError(t, s.UpdateNode("users", NodePatch{Columns: cols}))

	e, ok := s.Edge("fk-orders-users")
	require.True(t, ok)
	assert.Equal(t, "user_pk", e.Data.TargetColumn)
	assert.Equal(t, "col-0-left", e.TargetHandle)

	orders, _ := s.Node("orders")
	assert.Equal(t, "user_pk", orders.Data.ForeignKeys["user_id"].Column)
}

func TestRenameTableFollowsEdge(t *testing.T) {
	s := shopStore(t)
	label := "customers"
	require.NoError(t, s.UpdateNode("users", NodePatch{Label: &label}))

	e, _ := s.Edge("fk-orders-users")
	assert.Equal(t, "customers", e.Data.TargetTable)
	_, ok := s.FindNodeByLabel("customers")
	assert.True(t, ok)
}

func TestUpdateNodeKeepsColumnIDsByName(t *testing.T) {
	s := shopStore(t)
	require.NoError(t, s.UpdateNode("users", NodePatch{Columns: []models.Column{
		{Name: "id", Type: "bigint", IsPrimaryKey: true},
		{Name: "email", Type: "text"},
	}}))

	users, _ := s.Node("users")
	assert.Equal(t, "users.id", users.Data.Columns[0].ID)
	assert.Equal(t, []string{"id"}, users.Data.PrimaryKeys)
	_, ok := s.Edge("fk-orders-users")
	assert.True(t, ok)
}

func TestUpdateNodeMerge(t *testing.T) {
	s := shopStore(t)
	loading := true
	pos := models.Position{X: 10, Y: 20}
	require.NoError(t, s.UpdateNode("orders", NodePatch{Loading: &loading, Position: &pos}))

	n, _ := s.Node("orders")
	assert.True(t, n.Data.Loading)
	assert.Equal(t, pos, n.Position)
	assert.Equal(t, "orders", n.Data.Label)
	assert.Len(t, n.Data.Columns, 3)

	err := s.UpdateNode("ghost", NodePatch{Loading: &loading})
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeNotFound))
}

func TestRewriteHandles(t *testing.T) {
	s := shopStore(t)
	assert.Empty(t, s.RewriteHandles("orders"))
	assert.Nil(t, s.RewriteHandles("ghost"))
	assertHandlesConsistent(t, s)
}

func TestSetNodesDropsDanglingEdges(t *testing.T) {
	s := shopStore(t)
	nodes := s.Nodes()
	dropped := s.SetNodes(nodes[1:])

	require.Len(t, dropped, 1)
	assert.Equal(t, "fk-orders-users", dropped[0].ID)
	assert.Len(t, s.Edges(), 1)
	assertHandlesConsistent(t, s)
}

func TestSetEdgesSkipsInvalid(t *testing.T) {
	s := shopStore(t)
	errs := s.SetEdges([]models.Edge{
		fkEdge("ok", "orders", "user_id", "users", "id"),
		fkEdge("ok", "items", "order_id", "orders", "id"),
		fkEdge("self", "users", "id", "users", "id"),
		fkEdge("dangling", "orders", "user_id", "ghost", "id"),
	})
	assert.Len(t, errs, 3)
	require.Len(t, s.Edges(), 1)
	assert.Equal(t, "ok", s.Edges()[0].ID)

	items, _ := s.Node("items")
	assert.Empty(t, items.Data.ForeignKeys)
}

func TestSetPositions(t *testing.T) {
	s := shopStore(t)
	before := s.Version()
	n := s.SetPositions([]models.Node{
		{ID: "users", Position: models.Position{X: 1, Y: 2}, SourcePosition: models.HandleBottom, TargetPosition: models.HandleTop},
		{ID: "ghost", Position: models.Position{X: 3, Y: 4}},
	})
	assert.Equal(t, 1, n)
	assert.Greater(t, s.Version(), before)

	users, _ := s.Node("users")
	assert.Equal(t, models.Position{X: 1, Y: 2}, users.Position)
	assert.Equal(t, models.HandleBottom, users.SourcePosition)
	assert.False(t, s.HasNode("ghost"))
}

func TestReadsReturnCopies(t *testing.T) {
	s := shopStore(t)
	n, _ := s.Node("users")
	n.Data.Columns[0].Name = "mutated"
	n.Data.ForeignKeys["x"] = models.ForeignKeyRef{}

	again, _ := s.Node("users")
	assert.Equal(t, "id", again.Data.Columns[0].Name)
	assert.NotContains(t, again.Data.ForeignKeys, "x")
}

func TestAddNode(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.AddNode(models.Node{ID: "n1", Data: models.NodeData{Label: "t", Columns: []models.Column{{Name: "id", IsPrimaryKey: true}}}}))

	n, _ := s.Node("n1")
	assert.NotEmpty(t, n.Data.Columns[0].ID)
	assert.Equal(t, []string{"id"}, n.Data.PrimaryKeys)

	err := s.AddNode(models.Node{ID: "n1"})
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeConflict))
	err = s.AddNode(models.Node{})
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeValidation))
}

func TestConcurrentMutations(t *testing.T) {
	s := New([]models.Node{tableNode("hub", "id")}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("t%d", i)
			assert.NoError(t, s.AddNode(tableNode(id, "id", "hub_id")))
			_, err := s.AddEdge(fkEdge("e"+id, id, "hub_id", "hub", "id"))
			assert.NoError(t, err)
			_ = s.Nodes()
			_ = s.Edges()
			if i%2 == 0 {
				_, err := s.RemoveNode(id)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Nodes(), 11)
	assert.Len(t, s.Edges(), 10)
	assertHandlesConsistent(t, s)
}
