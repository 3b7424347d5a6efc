package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schemacanvas/internal/models"
)

type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save upserts the position of every node of a database.
func (r *SnapshotRepository) Save(ctx context.Context, database string, nodes []models.Node) (int, error) {
	if len(nodes) == 0 {
		return 0, nil
	}
	now := time.Now()
	rows := make([]models.CanvasSnapshot, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, models.CanvasSnapshot{
			Database:  database,
			NodeID:    n.ID,
			X:         n.Position.X,
			Y:         n.Position.Y,
			UpdatedAt: now,
		})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "database"}, {Name: "node_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"x", "y", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return len(rows), nil
}

// Positions returns saved positions for a database keyed by node id.
func (r *SnapshotRepository) Positions(ctx context.Context, database string) (map[string]models.Position, error) {
	var rows []models.CanvasSnapshot
	if err := r.db.WithContext(ctx).Where("database = ?", database).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	out := make(map[string]models.Position, len(rows))
	for _, row := range rows {
		out[row.NodeID] = models.Position{X: row.X, Y: row.Y}
	}
	return out, nil
}

func (r *SnapshotRepository) Delete(ctx context.Context, database string) error {
	return r.db.WithContext(ctx).Where("database = ?", database).Delete(&models.CanvasSnapshot{}).Error
}
