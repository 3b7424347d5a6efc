package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	require.NotPanics(t, func() {
		Init()
		Init()
	})
	require.NotNil(t, Get())
}

func TestRecorders(t *testing.T) {
	Init()
	m := Get()

	before := testutil.ToFloat64(m.ForeignKeyProposals.WithLabelValues("committed"))
	RecordForeignKeyProposal("committed")
	assert.Equal(t, before+1, testutil.ToFloat64(m.ForeignKeyProposals.WithLabelValues("committed")))

	builds := testutil.ToFloat64(m.GraphBuilds)
	warnings := testutil.ToFloat64(m.GraphBuildWarnings)
	RecordGraphBuild(3)
	assert.Equal(t, builds+1, testutil.ToFloat64(m.GraphBuilds))
	assert.Equal(t, warnings+3, testutil.ToFloat64(m.GraphBuildWarnings))

	failed := testutil.ToFloat64(m.BackendRequests.WithLabelValues("fetch_schema", "error"))
	RecordBackendRequest("fetch_schema", errors.New("boom"), time.Millisecond)
	assert.Equal(t, failed+1, testutil.ToFloat64(m.BackendRequests.WithLabelValues("fetch_schema", "error")))

	active := testutil.ToFloat64(m.ActiveSessions)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.Equal(t, active+1, testutil.ToFloat64(m.ActiveSessions))
}
