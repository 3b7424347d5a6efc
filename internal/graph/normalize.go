package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"schemacanvas/internal/models"
)

// Warning is a non-fatal problem found while normalizing or building the graph.
type Warning struct {
	Record  string `json:"record"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Record, w.Message)
}

// flexBool accepts JSON booleans as well as the "YES"/"NO" strings information_schema returns.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "true", "yes", "y", "t", "1":
		*b = true
	case "false", "no", "n", "f", "0", "null", "":
		*b = false
	default:
		return fmt.Errorf("cannot read %s as a boolean", string(data))
	}
	return nil
}

func pickBool(def bool, candidates ...*flexBool) bool {
	for _, c := range candidates {
		if c != nil {
			return bool(*c)
		}
	}
	return def
}

func pickString(candidates ...*string) string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			return *c
		}
	}
	return ""
}

type rawColumn struct {
	Name              *string   `json:"name"`
	ColumnName        *string   `json:"column_name"`
	DataType          *string   `json:"data_type"`
	Type              *string   `json:"type"`
	Nullable          *flexBool `json:"nullable"`
	IsNullable        *flexBool `json:"is_nullable"`
	IsPrimaryKeySnake *flexBool `json:"is_primary_key"`
	IsPrimaryKey      *flexBool `json:"isPrimaryKey"`
	IsUniqueSnake     *flexBool `json:"is_unique"`
	IsUnique          *flexBool `json:"isUnique"`
	DefaultValueSnake *string   `json:"default_value"`
	DefaultValue      *string   `json:"defaultValue"`
	ColumnDefault     *string   `json:"column_default"`
}

type rawTable struct {
	Name        *string           `json:"name"`
	TableName   *string           `json:"table_name"`
	Schema      *string           `json:"schema"`
	TableSchema *string           `json:"table_schema"`
	Columns     []json.RawMessage `json:"columns"`
}

type rawForeignKey struct {
	SourceTable         *string `json:"sourceTable"`
	TableName           *string `json:"table_name"`
	Column              *string `json:"column"`
	SourceColumn        *string `json:"source_column"`
	ReferencedTable     *string `json:"referencedTable"`
	ForeignTableName    *string `json:"foreign_table_name"`
	ReferencedColumn    *string `json:"referencedColumn"`
	ForeignColumnName   *string `json:"foreign_column_name"`
	ConstraintName      *string `json:"constraintName"`
	ConstraintNameSnake *string `json:"constraint_name"`
	OnDelete            *string `json:"onDelete"`
	OnDeleteSnake       *string `json:"on_delete"`
	OnUpdate            *string `json:"onUpdate"`
	OnUpdateSnake       *string `json:"on_update"`
}

type rawPayload struct {
	Tables           []json.RawMessage `json:"tables"`
	ForeignKeys      []json.RawMessage `json:"foreignKeys"`
	ForeignKeysSnake []json.RawMessage `json:"foreign_keys"`
}

// Normalize converts a raw backend schema payload into the canonical shape. Individual
// malformed tables, columns or foreign keys are skipped with a warning; only an unreadable
// envelope is an error.
func Normalize(raw []byte) (*models.SchemaPayload, []Warning, error) {
	var env rawPayload
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("decode schema payload: %w", err)
	}

	var warnings []Warning
	payload := &models.SchemaPayload{
		Tables:      make([]models.Table, 0, len(env.Tables)),
		ForeignKeys: make([]models.ForeignKey, 0, len(env.ForeignKeys)),
	}

	for i, msg := range env.Tables {
		table, tw, err := normalizeTable(msg)
		warnings = append(warnings, tw...)
		if err != nil {
			warnings = append(warnings, Warning{Record: fmt.Sprintf("tables[%d]", i), Message: err.Error()})
			continue
		}
		payload.Tables = append(payload.Tables, table)
	}

	fks := env.ForeignKeys
	if len(fks) == 0 {
		fks = env.ForeignKeysSnake
	}
	for i, msg := range fks {
		fk, fw, err := normalizeForeignKey(msg)
		warnings = append(warnings, fw...)
		if err != nil {
			warnings = append(warnings, Warning{Record: fmt.Sprintf("foreignKeys[%d]", i), Message: err.Error()})
			continue
		}
		payload.ForeignKeys = append(payload.ForeignKeys, fk)
	}

	return payload, warnings, nil
}

// NormalizeColumns converts the column list returned by a single-table column fetch.
func NormalizeColumns(raw []byte, table string) ([]models.Column, []Warning, error) {
	var msgs []json.RawMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		// Some backends wrap the list: {"columns": [...]}.
		var wrapped struct {
			Columns []json.RawMessage `json:"columns"`
		}
		if werr := json.Unmarshal(raw, &wrapped); werr != nil {
			return nil, nil, fmt.Errorf("decode columns for %s: %w", table, err)
		}
		msgs = wrapped.Columns
	}
	return normalizeColumnList(msgs, table)
}

func normalizeTable(msg json.RawMessage) (models.Table, []Warning, error) {
	var rt rawTable
	if err := json.Unmarshal(msg, &rt); err != nil {
		return models.Table{}, nil, fmt.Errorf("malformed table record: %w", err)
	}
	name := pickString(rt.Name, rt.TableName)
	if name == "" {
		return models.Table{}, nil, fmt.Errorf("table record has no name")
	}
	schema := pickString(rt.Schema, rt.TableSchema)
	if schema == "" {
		schema = models.DefaultSchema
	}
	cols, warnings, _ := normalizeColumnList(rt.Columns, name)
	return models.Table{Name: name, Schema: schema, Columns: cols}, warnings, nil
}

func normalizeColumnList(msgs []json.RawMessage, table string) ([]models.Column, []Warning, error) {
	var warnings []Warning
	cols := make([]models.Column, 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for i, msg := range msgs {
		col, err := normalizeColumn(msg)
		if err != nil {
			warnings = append(warnings, Warning{Record: fmt.Sprintf("%s.columns[%d]", table, i), Message: err.Error()})
			continue
		}
		if seen[col.Name] {
			warnings = append(warnings, Warning{Record: fmt.Sprintf("%s.%s", table, col.Name), Message: "duplicate column name skipped"})
			continue
		}
		seen[col.Name] = true
		cols = append(cols, col)
	}
	return cols, warnings, nil
}

func normalizeColumn(msg json.RawMessage) (models.Column, error) {
	var rc rawColumn
	if err := json.Unmarshal(msg, &rc); err != nil {
		return models.Column{}, fmt.Errorf("malformed column record: %w", err)
	}
	name := pickString(rc.Name, rc.ColumnName)
	if name == "" {
		return models.Column{}, fmt.Errorf("column record has no name")
	}
	pk := pickBool(false, rc.IsPrimaryKey, rc.IsPrimaryKeySnake)
	col := models.Column{
		Name:         name,
		Type:         pickString(rc.Type, rc.DataType),
		Nullable:     pickBool(!pk, rc.Nullable, rc.IsNullable),
		IsPrimaryKey: pk,
		IsUnique:     pickBool(false, rc.IsUnique, rc.IsUniqueSnake),
	}
	if def := pickString(rc.DefaultValue, rc.DefaultValueSnake, rc.ColumnDefault); def != "" {
		col.DefaultValue = &def
	}
	return col, nil
}

func normalizeForeignKey(msg json.RawMessage) (models.ForeignKey, []Warning, error) {
	var rf rawForeignKey
	if err := json.Unmarshal(msg, &rf); err != nil {
		return models.ForeignKey{}, nil, fmt.Errorf("malformed foreign key record: %w", err)
	}
	fk := models.ForeignKey{
		SourceTable:      pickString(rf.SourceTable, rf.TableName),
		SourceColumn:     pickString(rf.Column, rf.SourceColumn),
		ReferencedTable:  pickString(rf.ReferencedTable, rf.ForeignTableName),
		ReferencedColumn: pickString(rf.ReferencedColumn, rf.ForeignColumnName),
		ConstraintName:   pickString(rf.ConstraintName, rf.ConstraintNameSnake),
	}
	if fk.SourceTable == "" || fk.SourceColumn == "" || fk.ReferencedTable == "" || fk.ReferencedColumn == "" {
		return models.ForeignKey{}, nil, fmt.Errorf("foreign key record is missing a table or column")
	}

	var warnings []Warning
	record := fmt.Sprintf("%s.%s", fk.SourceTable, fk.SourceColumn)
	onDelete, err := models.ParseReferentialAction(pickString(rf.OnDelete, rf.OnDeleteSnake))
	if err != nil {
		warnings = append(warnings, Warning{Record: record, Message: err.Error() + ", using NO ACTION"})
		onDelete = models.ActionNoAction
	}
	onUpdate, err := models.ParseReferentialAction(pickString(rf.OnUpdate, rf.OnUpdateSnake))
	if err != nil {
		warnings = append(warnings, Warning{Record: record, Message: err.Error() + ", using NO ACTION"})
		onUpdate = models.ActionNoAction
	}
	fk.OnDelete = onDelete
	fk.OnUpdate = onUpdate
	return fk, warnings, nil
}
