package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacanvas/internal/utils"
)

func TestSessionManager(t *testing.T) {
	var backends []*fakeBackend
	m := NewSessionManager(func() Backend {
		b := newFakeBackend()
		backends = append(backends, b)
		return b
	}, nil, testOptions())

	a := m.Create()
	b := m.Create()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, m.Len())
	require.Len(t, backends, 2, "each session gets its own backend")

	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	loadShop(t, a)
	assert.Equal(t, []string{"shop"}, backends[0].connects)
	assert.Empty(t, backends[1].connects)

	require.NoError(t, m.Close(a.ID))
	_, err = m.Get(a.ID)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeNotFound))
	assert.True(t, utils.IsErrorType(m.Close(a.ID), utils.ErrCodeNotFound))

	_, err = m.Get(uuid.New())
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeNotFound))

	m.CloseAll()
	assert.Zero(t, m.Len())
	assert.Empty(t, m.IDs())
}
