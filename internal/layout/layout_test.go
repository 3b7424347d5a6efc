package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacanvas/internal/models"
)

func node(id string, cols int) models.Node {
	n := models.Node{ID: id, Type: "table", Data: models.NodeData{Label: id}}
	for i := 0; i < cols; i++ {
		n.Data.Columns = append(n.Data.Columns, models.Column{Name: fmt.Sprintf("c%d", i)})
	}
	return n
}

func edge(src, tgt string) models.Edge {
	return models.Edge{ID: src + "->" + tgt, Source: src, Target: tgt}
}

func positions(nodes []models.Node) map[string]models.Position {
	out := make(map[string]models.Position, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n.Position
	}
	return out
}

func sampleGraph() ([]models.Node, []models.Edge) {
	nodes := []models.Node{node("orders", 4), node("users", 3), node("items", 5), node("products", 2), node("coupons", 1), node("audit", 6)}
	edges := []models.Edge{
		edge("orders", "users"),
		edge("orders", "coupons"),
		edge("items", "orders"),
		edge("items", "products"),
		edge("audit", "users"),
	}
	return nodes, edges
}

func TestLayoutDeterministic(t *testing.T) {
	nodes, edges := sampleGraph()
	for _, dir := range []Direction{TopBottom, LeftRight} {
		first := Layout(nodes, edges, dir, DefaultOptions())
		second := Layout(nodes, edges, dir, DefaultOptions())
		assert.Equal(t, first, second)
	}
}

func TestLayoutIgnoresInputOrder(t *testing.T) {
	nodes, edges := sampleGraph()
	reversedNodes := make([]models.Node, len(nodes))
	for i, n := range nodes {
		reversedNodes[len(nodes)-1-i] = n
	}
	reversedEdges := make([]models.Edge, len(edges))
	for i, e := range edges {
		reversedEdges[len(edges)-1-i] = e
	}

	a := Layout(nodes, edges, TopBottom, DefaultOptions())
	b := Layout(reversedNodes, reversedEdges, TopBottom, DefaultOptions())
	assert.Equal(t, positions(a), positions(b))
}

func TestLayoutDoesNotMutateInput(t *testing.T) {
	nodes, edges := sampleGraph()
	nodes[0].Position = models.Position{X: 7, Y: 9}

	out := Layout(nodes, edges, TopBottom, DefaultOptions())
	require.Len(t, out, len(nodes))
	assert.Equal(t, models.Position{X: 7, Y: 9}, nodes[0].Position)
	assert.Empty(t, nodes[0].SourcePosition)

	out[0].Data.Columns[0].Name = "changed"
	assert.Equal(t, "c0", nodes[0].Data.Columns[0].Name)
}

func TestLayoutRanksFollowEdges(t *testing.T) {
	nodes := []models.Node{node("a", 1), node("b", 1), node("c", 1)}
	edges := []models.Edge{edge("a", "b"), edge("b", "c")}

	tb := positions(Layout(nodes, edges, TopBottom, DefaultOptions()))
	assert.Less(t, tb["a"].Y, tb["b"].Y)
	assert.Less(t, tb["b"].Y, tb["c"].Y)
	assert.Equal(t, tb["a"].X, tb["b"].X)

	lr := positions(Layout(nodes, edges, LeftRight, DefaultOptions()))
	assert.Less(t, lr["a"].X, lr["b"].X)
	assert.Less(t, lr["b"].X, lr["c"].X)
}

func TestLayoutHandleHints(t *testing.T) {
	nodes := []models.Node{node("a", 1)}

	tb := Layout(nodes, nil, TopBottom, DefaultOptions())
	assert.Equal(t, models.HandleBottom, tb[0].SourcePosition)
	assert.Equal(t, models.HandleTop, tb[0].TargetPosition)

	lr := Layout(nodes, nil, LeftRight, DefaultOptions())
	assert.Equal(t, models.HandleRight, lr[0].SourcePosition)
	assert.Equal(t, models.HandleLeft, lr[0].TargetPosition)
}

func TestLayoutCentersOnCell(t *testing.T) {
	opts := DefaultOptions()
	nodes := []models.Node{node("a", 2), node("b", 4)}

	out := positions(Layout(nodes, nil, TopBottom, opts))
	// Both sit in rank 0; the taller node sets the rank thickness.
	tallest := opts.Height(nodes[1])
	assert.Equal(t, 0.0, out["a"].X)
	assert.Equal(t, opts.NodeWidth+opts.NodeSep, out["b"].X)
	assert.Equal(t, tallest/2-opts.Height(nodes[0])/2, out["a"].Y)
	assert.Equal(t, 0.0, out["b"].Y)
}

func TestLayoutToleratesCyclesAndBadEdges(t *testing.T) {
	nodes := []models.Node{node("a", 1), node("b", 1), node("c", 1)}
	edges := []models.Edge{
		edge("a", "b"),
		edge("b", "c"),
		edge("c", "a"),
		edge("a", "a"),
		edge("a", "ghost"),
	}

	var out []models.Node
	require.NotPanics(t, func() {
		out = Layout(nodes, edges, TopBottom, DefaultOptions())
	})
	require.Len(t, out, 3)
	assert.Equal(t, out, Layout(nodes, edges, TopBottom, DefaultOptions()))

	p := positions(out)
	assert.NotEqual(t, p["a"], p["b"])
	assert.NotEqual(t, p["b"], p["c"])
}

func TestLayoutEmpty(t *testing.T) {
	assert.Empty(t, Layout(nil, nil, TopBottom, DefaultOptions()))
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"", TopBottom, false},
		{"TB", TopBottom, false},
		{"lr", LeftRight, false},
		{" LR ", LeftRight, false},
		{"RL", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
