package models

// RelationshipOneToMany is the only relationship type the canvas draws today.
const RelationshipOneToMany = "1:N"

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HandlePosition hints the renderer where edges attach on a node.
type HandlePosition string

const (
	HandleTop    HandlePosition = "top"
	HandleBottom HandlePosition = "bottom"
	HandleLeft   HandlePosition = "left"
	HandleRight  HandlePosition = "right"
)

// ForeignKeyRef is the referenced side of a foreign key, keyed by local column in NodeData.
type ForeignKeyRef struct {
	Table          string `json:"table"`
	Column         string `json:"column"`
	ConstraintName string `json:"constraintName,omitempty"`
}

type NodeData struct {
	Label       string                   `json:"label"`
	Schema      string                   `json:"schema"`
	DB          *string                  `json:"db"`
	Columns     []Column                 `json:"columns"`
	PrimaryKeys []string                 `json:"primaryKeys"`
	ForeignKeys map[string]ForeignKeyRef `json:"foreignKeys"`
	Loading     bool                     `json:"loading,omitempty"`
}

// Node is the canvas representation of one table.
type Node struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Position       Position       `json:"position"`
	SourcePosition HandlePosition `json:"sourcePosition,omitempty"`
	TargetPosition HandlePosition `json:"targetPosition,omitempty"`
	Data           NodeData       `json:"data"`
}

type EdgeData struct {
	RelationshipType string            `json:"relationshipType"`
	OnDelete         ReferentialAction `json:"onDelete"`
	OnUpdate         ReferentialAction `json:"onUpdate"`
	ConstraintName   string            `json:"constraintName"`
	SourceTable      string            `json:"sourceTable"`
	SourceColumn     string            `json:"sourceColumn"`
	TargetTable      string            `json:"targetTable"`
	TargetColumn     string            `json:"targetColumn"`
	SourceColumnID   string            `json:"sourceColumnId,omitempty"`
	TargetColumnID   string            `json:"targetColumnId,omitempty"`
}

// Edge is the canvas representation of one foreign key constraint.
type Edge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	SourceHandle string   `json:"sourceHandle"`
	TargetHandle string   `json:"targetHandle"`
	Data         EdgeData `json:"data"`
}

// ColumnIndex returns the position of the named column, or -1.
func (d NodeData) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ColumnIndexByID returns the position of the column with the given stable id, or -1.
func (d NodeData) ColumnIndexByID(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range d.Columns {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// PrimaryKeysOf collects the names of primary key columns in order.
func PrimaryKeysOf(cols []Column) []string {
	pks := make([]string, 0, 1)
	for _, c := range cols {
		if c.IsPrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	return pks
}

// Clone returns a deep copy so callers never alias store state.
func (n Node) Clone() Node {
	out := n
	out.Data.Columns = CloneColumns(n.Data.Columns)
	if n.Data.DB != nil {
		db := *n.Data.DB
		out.Data.DB = &db
	}
	if n.Data.PrimaryKeys != nil {
		out.Data.PrimaryKeys = append([]string(nil), n.Data.PrimaryKeys...)
	}
	if n.Data.ForeignKeys != nil {
		out.Data.ForeignKeys = make(map[string]ForeignKeyRef, len(n.Data.ForeignKeys))
		for k, v := range n.Data.ForeignKeys {
			out.Data.ForeignKeys[k] = v
		}
	}
	return out
}
