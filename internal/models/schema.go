package models

import "fmt"

const DefaultSchema = "public"

// Column is the canonical column shape used everywhere past the backend boundary.
type Column struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	IsPrimaryKey bool    `json:"isPrimaryKey"`
	IsUnique     bool    `json:"isUnique"`
	DefaultValue *string `json:"defaultValue,omitempty"`
	Loading      bool    `json:"loading,omitempty"`
}

type Table struct {
	Name    string   `json:"name"`
	Schema  string   `json:"schema"`
	Columns []Column `json:"columns"`
}

// QualifiedName returns schema.name, defaulting the schema to public.
func (t Table) QualifiedName() string {
	schema := t.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	return fmt.Sprintf("%s.%s", schema, t.Name)
}

// ForeignKey is one single-column foreign key constraint as reported by the backend.
type ForeignKey struct {
	SourceTable      string            `json:"sourceTable"`
	SourceColumn     string            `json:"column"`
	ReferencedTable  string            `json:"referencedTable"`
	ReferencedColumn string            `json:"referencedColumn"`
	ConstraintName   string            `json:"constraintName,omitempty"`
	OnDelete         ReferentialAction `json:"onDelete,omitempty"`
	OnUpdate         ReferentialAction `json:"onUpdate,omitempty"`
}

// SchemaPayload is a normalized schema fetch result.
type SchemaPayload struct {
	Tables      []Table      `json:"tables"`
	ForeignKeys []ForeignKey `json:"foreignKeys"`
}

// DefaultConstraintName derives the constraint name used when none is given.
func DefaultConstraintName(sourceTable, sourceColumn string) string {
	return fmt.Sprintf("fk_%s_%s", sourceTable, sourceColumn)
}

// CloneColumns deep-copies a column slice, including default values.
func CloneColumns(cols []Column) []Column {
	if cols == nil {
		return nil
	}
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = c
		if c.DefaultValue != nil {
			v := *c.DefaultValue
			out[i].DefaultValue = &v
		}
	}
	return out
}
