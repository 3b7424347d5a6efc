package repositories

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"schemacanvas/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_$]*$`)

// isValidIdentifier checks if a string is a valid PostgreSQL identifier
func isValidIdentifier(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	return identifierPattern.MatchString(name)
}

// isValidColumnType validates PostgreSQL column types
func isValidColumnType(colType string) bool {
	upper := strings.ToUpper(strings.TrimSpace(colType))
	if strings.ContainsAny(upper, ";") {
		return false
	}
	validTypes := []string{
		"INT", "INTEGER", "BIGINT", "SMALLINT", "SERIAL", "BIGSERIAL",
		"DECIMAL", "NUMERIC", "REAL", "DOUBLE PRECISION",
		"BOOLEAN", "BOOL",
		"CHAR", "VARCHAR", "CHARACTER", "TEXT",
		"DATE", "TIME", "TIMESTAMP", "TIMESTAMPTZ", "INTERVAL",
		"UUID", "JSON", "JSONB", "BYTEA",
	}

	// Check exact match or parameterized types like VARCHAR(50)
	for _, valid := range validTypes {
		if strings.HasPrefix(upper, valid) {
			return true
		}
	}
	return false
}

func validateIdentifiers(kinds []string, names ...string) error {
	for i, name := range names {
		if !isValidIdentifier(name) {
			return fmt.Errorf("invalid %s name: %q", kinds[i], name)
		}
	}
	return nil
}

func qualified(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// AddForeignKeySQL builds the ALTER TABLE statement for a single-column foreign key.
func AddForeignKeySQL(req models.CreateForeignKeyRequest) (string, error) {
	if err := validateIdentifiers(
		[]string{"schema", "table", "column", "referenced table", "referenced column", "constraint"},
		req.Schema, req.SourceTable, req.SourceColumn, req.ReferencedTable, req.ReferencedColumn, req.ConstraintName,
	); err != nil {
		return "", err
	}
	onDelete := req.OnDelete.OrDefault()
	onUpdate := req.OnUpdate.OrDefault()
	if !onDelete.Valid() || !onUpdate.Valid() {
		return "", fmt.Errorf("invalid referential action")
	}

	return fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		qualified(req.Schema, req.SourceTable),
		quote(req.ConstraintName),
		quote(req.SourceColumn),
		qualified(req.Schema, req.ReferencedTable),
		quote(req.ReferencedColumn),
		onDelete,
		onUpdate,
	), nil
}

func DropForeignKeySQL(req models.DeleteForeignKeyRequest) (string, error) {
	if err := validateIdentifiers(
		[]string{"schema", "table", "constraint"},
		req.Schema, req.TableName, req.ConstraintName,
	); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s",
		qualified(req.Schema, req.TableName), quote(req.ConstraintName)), nil
}

// ColumnChangeSQL returns the statements applying one column edit. A move returns none:
// PostgreSQL has no column reordering.
func ColumnChangeSQL(req models.ColumnChangeRequest) ([]string, error) {
	if err := validateIdentifiers([]string{"schema", "table", "column"}, req.Schema, req.TableName, req.Column.Name); err != nil {
		return nil, err
	}
	table := qualified(req.Schema, req.TableName)
	col := req.Column

	switch req.Action {
	case models.ColumnAdd:
		if !isValidColumnType(col.Type) {
			return nil, fmt.Errorf("invalid column type for %s: %s", col.Name, col.Type)
		}
		def, err := defaultClause(col.DefaultValue)
		if err != nil {
			return nil, err
		}
		columnDef := fmt.Sprintf("%s %s", quote(col.Name), col.Type)
		if col.IsPrimaryKey {
			columnDef += " PRIMARY KEY"
		}
		if col.IsUnique && !col.IsPrimaryKey {
			columnDef += " UNIQUE"
		}
		if !col.Nullable && !col.IsPrimaryKey {
			columnDef += " NOT NULL"
		}
		columnDef += def
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDef)}, nil

	case models.ColumnUpdate:
		if !isValidColumnType(col.Type) {
			return nil, fmt.Errorf("invalid column type for %s: %s", col.Name, col.Type)
		}
		var stmts []string
		if req.PreviousName != "" && req.PreviousName != col.Name {
			if !isValidIdentifier(req.PreviousName) {
				return nil, fmt.Errorf("invalid column name: %q", req.PreviousName)
			}
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
				table, quote(req.PreviousName), quote(col.Name)))
		}
		name := quote(col.Name)
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", table, name, col.Type))
		if col.Nullable {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, name))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, name))
		}
		if col.DefaultValue == nil || *col.DefaultValue == "" {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, name))
		} else {
			def, err := defaultClause(col.DefaultValue)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET%s", table, name, def))
		}
		return stmts, nil

	case models.ColumnDrop:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, quote(col.Name))}, nil

	case models.ColumnMove:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown column action %q", req.Action)
}

// defaultClause renders " DEFAULT <expr>". The expression is passed through as SQL, so
// statement separators are refused.
func defaultClause(v *string) (string, error) {
	if v == nil || *v == "" {
		return "", nil
	}
	if strings.Contains(*v, ";") || strings.Contains(*v, "--") {
		return "", errors.New("invalid default value")
	}
	return " DEFAULT " + *v, nil
}
