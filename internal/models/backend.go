package models

// CreateForeignKeyRequest is sent to the backend when a drawn relationship is confirmed.
type CreateForeignKeyRequest struct {
	Schema           string            `json:"schema,omitempty"`
	SourceTable      string            `json:"sourceTable"`
	SourceColumn     string            `json:"sourceColumn"`
	ReferencedTable  string            `json:"referencedTable"`
	ReferencedColumn string            `json:"referencedColumn"`
	OnDelete         ReferentialAction `json:"onDelete"`
	OnUpdate         ReferentialAction `json:"onUpdate"`
	ConstraintName   string            `json:"constraintName"`
}

type CreateForeignKeyResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	ConstraintName string `json:"constraintName,omitempty"`
}

type DeleteForeignKeyRequest struct {
	Schema         string `json:"schema,omitempty"`
	TableName      string `json:"tableName"`
	ConstraintName string `json:"constraintName"`
}

// ColumnAction enumerates the column edits forwarded to the backend.
type ColumnAction string

const (
	ColumnAdd    ColumnAction = "add"
	ColumnUpdate ColumnAction = "update"
	ColumnDrop   ColumnAction = "drop"
	ColumnMove   ColumnAction = "move"
)

type ColumnChangeRequest struct {
	Database     string       `json:"database"`
	Schema       string       `json:"schema,omitempty"`
	TableName    string       `json:"tableName"`
	Action       ColumnAction `json:"action"`
	Column       Column       `json:"column"`
	PreviousName string       `json:"previousName,omitempty"`
}

// BackendResult is the generic success/failure envelope returned by the backend.
type BackendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
