// Package layout assigns canvas positions to table nodes with a layered, top-down or
// left-right drawing. The same nodes, edges and direction always produce the same positions.
package layout

import (
	"fmt"
	"sort"
	"strings"

	"schemacanvas/internal/models"
)

type Direction string

const (
	TopBottom Direction = "TB"
	LeftRight Direction = "LR"
)

// ParseDirection accepts "TB" or "LR" in any case. Empty means TB.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case "", TopBottom:
		return TopBottom, nil
	case LeftRight:
		return LeftRight, nil
	default:
		return "", fmt.Errorf("unknown layout direction %q", s)
	}
}

// Options controls node footprints and spacing.
type Options struct {
	NodeWidth    float64
	BaseHeight   float64
	ColumnHeight float64
	NodeSep      float64
	RankSep      float64
	Sweeps       int
}

func DefaultOptions() Options {
	return Options{
		NodeWidth:    250,
		BaseHeight:   60,
		ColumnHeight: 28,
		NodeSep:      80,
		RankSep:      120,
		Sweeps:       4,
	}
}

// Height estimates the rendered height of a node from its column count.
func (o Options) Height(n models.Node) float64 {
	return o.BaseHeight + o.ColumnHeight*float64(len(n.Data.Columns))
}

type graph struct {
	ids   []string
	index map[string]int
	succ  [][]int
	pred  [][]int
}

// Layout returns copies of nodes with new positions and handle hints. Edges with a missing
// endpoint and self loops are ignored. The input slices are not modified.
func Layout(nodes []models.Node, edges []models.Edge, dir Direction, opts Options) []models.Node {
	out := make([]models.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	if len(nodes) == 0 {
		return out
	}

	g := newGraph(nodes, edges)
	g.breakCycles()
	ranks := g.rank()
	layers := g.order(ranks, opts.Sweeps)

	width := make([]float64, len(g.ids))
	height := make([]float64, len(g.ids))
	for _, n := range nodes {
		i, ok := g.index[n.ID]
		if !ok {
			continue
		}
		width[i] = opts.NodeWidth
		height[i] = opts.Height(n)
	}

	// along is the in-rank axis, across is the rank axis.
	alongSize, acrossSize := width, height
	if dir == LeftRight {
		alongSize, acrossSize = height, width
	}
	centerAlong, centerAcross := place(layers, alongSize, acrossSize, opts)

	for i := range out {
		v, ok := g.index[out[i].ID]
		if !ok {
			continue
		}
		cx, cy := centerAlong[v], centerAcross[v]
		if dir == LeftRight {
			cx, cy = cy, cx
		}
		out[i].Position = models.Position{X: cx - width[v]/2, Y: cy - height[v]/2}
		if dir == LeftRight {
			out[i].SourcePosition = models.HandleRight
			out[i].TargetPosition = models.HandleLeft
		} else {
			out[i].SourcePosition = models.HandleBottom
			out[i].TargetPosition = models.HandleTop
		}
	}
	return out
}

func newGraph(nodes []models.Node, edges []models.Edge) *graph {
	ids := make([]string, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if !seen[n.ID] {
			seen[n.ID] = true
			ids = append(ids, n.ID)
		}
	}
	sort.Strings(ids)

	g := &graph{
		ids:   ids,
		index: make(map[string]int, len(ids)),
		succ:  make([][]int, len(ids)),
		pred:  make([][]int, len(ids)),
	}
	for i, id := range ids {
		g.index[id] = i
	}

	pairs := make(map[[2]int]bool, len(edges))
	for _, e := range edges {
		s, ok := g.index[e.Source]
		if !ok {
			continue
		}
		t, ok := g.index[e.Target]
		if !ok || s == t {
			continue
		}
		pairs[[2]int{s, t}] = true
	}
	for p := range pairs {
		g.succ[p[0]] = append(g.succ[p[0]], p[1])
	}
	g.rebuildPred()
	return g
}

func (g *graph) rebuildPred() {
	for i := range g.pred {
		g.pred[i] = g.pred[i][:0]
	}
	for v := range g.succ {
		sort.Ints(g.succ[v])
		for _, w := range g.succ[v] {
			g.pred[w] = append(g.pred[w], v)
		}
	}
	for i := range g.pred {
		sort.Ints(g.pred[i])
	}
}

// breakCycles reverses back edges found by a depth-first search in id order.
func (g *graph) breakCycles() {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.ids))
	var reversed [][2]int

	var visit func(v int)
	visit = func(v int) {
		color[v] = grey
		for _, w := range g.succ[v] {
			switch color[w] {
			case white:
				visit(w)
			case grey:
				reversed = append(reversed, [2]int{v, w})
			}
		}
		color[v] = black
	}
	for v := range g.ids {
		if color[v] == white {
			visit(v)
		}
	}
	if len(reversed) == 0 {
		return
	}

	for _, r := range reversed {
		v, w := r[0], r[1]
		g.succ[v] = removeInt(g.succ[v], w)
		if !containsInt(g.succ[w], v) {
			g.succ[w] = append(g.succ[w], v)
		}
	}
	g.rebuildPred()
}

// rank assigns each node its longest-path distance from a source.
func (g *graph) rank() []int {
	ranks := make([]int, len(g.ids))
	indeg := make([]int, len(g.ids))
	for v := range g.ids {
		indeg[v] = len(g.pred[v])
	}
	queue := make([]int, 0, len(g.ids))
	for v := range g.ids {
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.succ[v] {
			if ranks[v]+1 > ranks[w] {
				ranks[w] = ranks[v] + 1
			}
			indeg[w]--
			if indeg[w] == 0 {
				queue = append(queue, w)
			}
		}
	}
	return ranks
}

// order groups nodes by rank and reduces crossings with barycenter sweeps.
// Ties keep id order.
func (g *graph) order(ranks []int, sweeps int) [][]int {
	maxRank := 0
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}
	layers := make([][]int, maxRank+1)
	for v := range g.ids {
		layers[ranks[v]] = append(layers[ranks[v]], v)
	}

	pos := make([]float64, len(g.ids))
	reindex := func(layer []int) {
		for i, v := range layer {
			pos[v] = float64(i)
		}
	}
	for _, layer := range layers {
		reindex(layer)
	}

	reorder := func(layer []int, neighbours func(v int) []int, fixedRank func(w int) bool) {
		bary := make(map[int]float64, len(layer))
		for _, v := range layer {
			sum, n := 0.0, 0
			for _, w := range neighbours(v) {
				if fixedRank(w) {
					sum += pos[w]
					n++
				}
			}
			if n == 0 {
				bary[v] = pos[v]
			} else {
				bary[v] = sum / float64(n)
			}
		}
		sort.SliceStable(layer, func(i, j int) bool {
			a, b := layer[i], layer[j]
			if bary[a] != bary[b] {
				return bary[a] < bary[b]
			}
			return a < b
		})
		reindex(layer)
	}

	for s := 0; s < sweeps; s++ {
		for r := 1; r < len(layers); r++ {
			rr := r
			reorder(layers[r], func(v int) []int { return g.pred[v] }, func(w int) bool { return ranks[w] < rr })
		}
		for r := len(layers) - 2; r >= 0; r-- {
			rr := r
			reorder(layers[r], func(v int) []int { return g.succ[v] }, func(w int) bool { return ranks[w] > rr })
		}
	}
	return layers
}

// place computes node centers. Each layer is centered on the widest one.
func place(layers [][]int, along, across []float64, opts Options) (centerAlong, centerAcross []float64) {
	centerAlong = make([]float64, len(along))
	centerAcross = make([]float64, len(across))

	extent := make([]float64, len(layers))
	widest := 0.0
	for r, layer := range layers {
		for i, v := range layer {
			if i > 0 {
				extent[r] += opts.NodeSep
			}
			extent[r] += along[v]
		}
		if extent[r] > widest {
			widest = extent[r]
		}
	}

	cursorAcross := 0.0
	for r, layer := range layers {
		thickness := 0.0
		for _, v := range layer {
			if across[v] > thickness {
				thickness = across[v]
			}
		}
		cursor := (widest - extent[r]) / 2
		for _, v := range layer {
			centerAlong[v] = cursor + along[v]/2
			centerAcross[v] = cursorAcross + thickness/2
			cursor += along[v] + opts.NodeSep
		}
		cursorAcross += thickness + opts.RankSep
	}
	return centerAlong, centerAcross
}

func removeInt(s []int, x int) []int {
	out := s[:0]
	for _, v := range s {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}

func containsInt(s []int, x int) bool {
	for _, v := range s {
		if v == x {
			return true
		}
	}
	return false
}
