package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacanvas/internal/config"
	"schemacanvas/internal/models"
	"schemacanvas/internal/utils"
)

func TestRejectionKeepsPostgresMessage(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:    "42830",
		Message: `there is no unique constraint matching given keys for referenced table "users"`,
	}
	err := rejection(fmt.Errorf("exec: %w", pgErr))
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeBackendRejection))
	assert.Equal(t, pgErr.Message, utils.UserMessage(err))

	err = rejection(errors.New("dial tcp: connection refused"))
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeBackendRejection))
	assert.Equal(t, "dial tcp: connection refused", utils.UserMessage(err))

	already := utils.NewBackendRejection("kept", nil)
	assert.Same(t, already, rejection(already))
}

func TestBackendRequiresConnect(t *testing.T) {
	b := NewSchemaRepository(config.PostgresConfig{}).NewBackend()

	_, err := b.CreateForeignKey(context.Background(), models.CreateForeignKeyRequest{SourceTable: "orders"})
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeBackendRejection))

	_, err = b.DeleteForeignKey(context.Background(), models.DeleteForeignKeyRequest{TableName: "orders"})
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeBackendRejection))
}

func TestConnectFailureIsRejection(t *testing.T) {
	repo := NewSchemaRepository(config.PostgresConfig{})
	repo.open = func(ctx context.Context, cfg config.PostgresConfig, database string) (*pgxpool.Pool, error) {
		return nil, fmt.Errorf("failed to ping database: %w", errors.New("connection refused"))
	}
	b := repo.NewBackend()

	err := b.Connect(context.Background(), "shop")
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeBackendRejection))

	_, err = b.current()
	assert.Error(t, err, "a failed connect must not bind the database")
}

func TestSchemaDefaultsToConfig(t *testing.T) {
	repo := NewSchemaRepository(config.PostgresConfig{Schema: "sales"})
	assert.Equal(t, "sales", repo.schemaOr(""))
	assert.Equal(t, "hr", repo.schemaOr("hr"))
	assert.Equal(t, models.DefaultSchema, NewSchemaRepository(config.PostgresConfig{}).schemaOr(""))
}
