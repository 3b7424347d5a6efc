package graph

import (
	"fmt"
	"log"

	"schemacanvas/internal/models"
	"schemacanvas/internal/utils"
)

const NodeTypeTable = "table"

// Builder turns canonical schema records into canvas nodes and edges.
type Builder struct {
	// Placeholder grid; AutoLayout overwrites these positions right after the build.
	BaseX, BaseY       float64
	SpacingX, SpacingY float64
	GridWidth          int

	// Database is stamped on every node as its originating database, when set.
	Database string

	NewColumnID func() string
	NewEdgeID   func() string
}

// NewBuilder returns a builder with the default placeholder grid.
func NewBuilder(database string) *Builder {
	return &Builder{
		BaseX:       100,
		BaseY:       100,
		SpacingX:    350,
		SpacingY:    300,
		GridWidth:   4,
		Database:    database,
		NewColumnID: utils.NewColumnID,
		NewEdgeID:   utils.NewEdgeID,
	}
}

// NodeID derives a node id from schema and table name so rebuilds of the same table keep their id.
func NodeID(schema, table string) string {
	if schema == "" {
		schema = models.DefaultSchema
	}
	return fmt.Sprintf("table:%s.%s", schema, table)
}

// BuildNodes builds nodes with the default builder, logging any warnings.
func BuildNodes(tables []models.Table) []models.Node {
	nodes, warnings := NewBuilder("").Nodes(tables)
	logWarnings(warnings)
	return nodes
}

// BuildEdges builds edges with the default builder, logging any dropped foreign keys.
func BuildEdges(foreignKeys []models.ForeignKey, nodes []models.Node) []models.Edge {
	edges, warnings := NewBuilder("").Edges(foreignKeys, nodes)
	logWarnings(warnings)
	return edges
}

// Build runs the whole transformation and attaches foreign key references to source nodes.
func (b *Builder) Build(payload *models.SchemaPayload) ([]models.Node, []models.Edge, []Warning) {
	nodes, warnings := b.Nodes(payload.Tables)
	edges, ew := b.Edges(payload.ForeignKeys, nodes)
	warnings = append(warnings, ew...)
	return AttachForeignKeys(nodes, edges), edges, warnings
}

// Nodes creates one node per table. Nameless or duplicate tables are skipped.
func (b *Builder) Nodes(tables []models.Table) ([]models.Node, []Warning) {
	var warnings []Warning
	nodes := make([]models.Node, 0, len(tables))
	seen := make(map[string]bool, len(tables))

	for i, t := range tables {
		if t.Name == "" {
			warnings = append(warnings, Warning{Record: fmt.Sprintf("tables[%d]", i), Message: "table has no name"})
			continue
		}
		schema := t.Schema
		if schema == "" {
			schema = models.DefaultSchema
		}
		id := NodeID(schema, t.Name)
		if seen[id] {
			warnings = append(warnings, Warning{Record: id, Message: "duplicate table skipped"})
			continue
		}
		seen[id] = true

		cols, cw := b.columns(id, t.Columns)
		warnings = append(warnings, cw...)

		node := models.Node{
			ID:       id,
			Type:     NodeTypeTable,
			Position: b.Slot(len(nodes)),
			Data: models.NodeData{
				Label:       t.Name,
				Schema:      schema,
				Columns:     cols,
				PrimaryKeys: models.PrimaryKeysOf(cols),
				ForeignKeys: map[string]models.ForeignKeyRef{},
			},
		}
		if b.Database != "" {
			db := b.Database
			node.Data.DB = &db
		}
		nodes = append(nodes, node)
	}
	return nodes, warnings
}

func (b *Builder) gridWidth() int {
	if b.GridWidth <= 0 {
		return 1
	}
	return b.GridWidth
}

func (b *Builder) columns(nodeID string, in []models.Column) ([]models.Column, []Warning) {
	var warnings []Warning
	cols := make([]models.Column, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range models.CloneColumns(in) {
		if c.Name == "" {
			warnings = append(warnings, Warning{Record: nodeID, Message: "column without a name skipped"})
			continue
		}
		if seen[c.Name] {
			warnings = append(warnings, Warning{Record: nodeID + "." + c.Name, Message: "duplicate column skipped"})
			continue
		}
		seen[c.Name] = true
		if c.ID == "" {
			c.ID = b.NewColumnID()
		}
		c.Loading = false
		cols = append(cols, c)
	}
	return cols, warnings
}

// Edges resolves each foreign key against the nodes by table label and column position.
// Unresolvable records are dropped with a warning; they never fail the build.
func (b *Builder) Edges(foreignKeys []models.ForeignKey, nodes []models.Node) ([]models.Edge, []Warning) {
	var warnings []Warning
	byName := IndexByLabel(nodes)
	edges := make([]models.Edge, 0, len(foreignKeys))
	usedIDs := make(map[string]bool, len(foreignKeys))
	seen := make(map[string]bool, len(foreignKeys))

	for _, fk := range foreignKeys {
		record := fmt.Sprintf("%s.%s -> %s.%s", fk.SourceTable, fk.SourceColumn, fk.ReferencedTable, fk.ReferencedColumn)

		srcIdx, ok := byName[fk.SourceTable]
		if !ok {
			warnings = append(warnings, Warning{Record: record, Message: "source table not on canvas"})
			continue
		}
		tgtIdx, ok := byName[fk.ReferencedTable]
		if !ok {
			warnings = append(warnings, Warning{Record: record, Message: "referenced table not on canvas"})
			continue
		}
		src, tgt := nodes[srcIdx], nodes[tgtIdx]
		if src.ID == tgt.ID {
			warnings = append(warnings, Warning{Record: record, Message: "self-referencing foreign key not drawn"})
			continue
		}
		srcCol := src.Data.ColumnIndex(fk.SourceColumn)
		if srcCol < 0 {
			warnings = append(warnings, Warning{Record: record, Message: "source column not found"})
			continue
		}
		tgtCol := tgt.Data.ColumnIndex(fk.ReferencedColumn)
		if tgtCol < 0 {
			warnings = append(warnings, Warning{Record: record, Message: "referenced column not found"})
			continue
		}
		key := record
		if seen[key] {
			continue
		}
		seen[key] = true

		constraint := fk.ConstraintName
		if constraint == "" {
			constraint = models.DefaultConstraintName(fk.SourceTable, fk.SourceColumn)
		}
		id := "fk-" + constraint
		if usedIDs[id] {
			id = id + "-" + fk.SourceColumn
		}
		if usedIDs[id] {
			id = b.NewEdgeID()
		}
		usedIDs[id] = true

		edges = append(edges, models.Edge{
			ID:           id,
			Source:       src.ID,
			Target:       tgt.ID,
			SourceHandle: SourceHandle(srcCol),
			TargetHandle: TargetHandle(tgtCol),
			Data: models.EdgeData{
				RelationshipType: models.RelationshipOneToMany,
				OnDelete:         fk.OnDelete.OrDefault(),
				OnUpdate:         fk.OnUpdate.OrDefault(),
				ConstraintName:   constraint,
				SourceTable:      fk.SourceTable,
				SourceColumn:     fk.SourceColumn,
				TargetTable:      fk.ReferencedTable,
				TargetColumn:     fk.ReferencedColumn,
				SourceColumnID:   src.Data.Columns[srcCol].ID,
				TargetColumnID:   tgt.Data.Columns[tgtCol].ID,
			},
		})
	}
	return edges, warnings
}

// IndexByLabel maps table name to node index. When two schemas share a table name the
// public one wins, otherwise the first one seen.
func IndexByLabel(nodes []models.Node) map[string]int {
	idx := make(map[string]int, len(nodes))
	for i, n := range nodes {
		prev, ok := idx[n.Data.Label]
		if !ok || (nodes[prev].Data.Schema != models.DefaultSchema && n.Data.Schema == models.DefaultSchema) {
			idx[n.Data.Label] = i
		}
	}
	return idx
}

// AttachForeignKeys returns copies of nodes whose ForeignKeys maps reflect the given edges.
func AttachForeignKeys(nodes []models.Node, edges []models.Edge) []models.Node {
	out := make([]models.Node, len(nodes))
	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
		out[i].Data.ForeignKeys = map[string]models.ForeignKeyRef{}
		pos[n.ID] = i
	}
	for _, e := range edges {
		i, ok := pos[e.Source]
		if !ok {
			continue
		}
		out[i].Data.ForeignKeys[e.Data.SourceColumn] = models.ForeignKeyRef{
			Table:          e.Data.TargetTable,
			Column:         e.Data.TargetColumn,
			ConstraintName: e.Data.ConstraintName,
		}
	}
	return out
}

func logWarnings(warnings []Warning) {
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}
}

// Slot is the placeholder grid position of the i-th table.
func (b *Builder) Slot(i int) models.Position {
	return models.Position{
		X: b.BaseX + float64(i%b.gridWidth())*b.SpacingX,
		Y: b.BaseY + float64(i/b.gridWidth())*b.SpacingY,
	}
}
