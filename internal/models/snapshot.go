package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CanvasSnapshot matches the canvas_snapshots table created by database.RunMigrations.
type CanvasSnapshot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Database  string    `gorm:"type:text;not null;uniqueIndex:idx_canvas_snapshots_db_node" json:"database"`
	NodeID    string    `gorm:"type:text;not null;uniqueIndex:idx_canvas_snapshots_db_node" json:"node_id"`
	X         float64   `gorm:"not null" json:"x"`
	Y         float64   `gorm:"not null" json:"y"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (CanvasSnapshot) TableName() string {
	return "canvas_snapshots"
}

func (s *CanvasSnapshot) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}
