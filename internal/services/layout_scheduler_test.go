package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLayoutSchedulerCoalescesBursts(t *testing.T) {
	var runs atomic.Int32
	s := NewLayoutScheduler(20*time.Millisecond, func() { runs.Add(1) })
	defer s.Stop()

	for i := 0; i < 5; i++ {
		s.Schedule()
	}
	assert.True(t, s.Pending())
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, s.Pending())
}

func TestLayoutSchedulerFlush(t *testing.T) {
	var runs atomic.Int32
	s := NewLayoutScheduler(time.Hour, func() { runs.Add(1) })
	defer s.Stop()

	s.Flush()
	assert.Equal(t, int32(0), runs.Load(), "nothing pending")

	s.Schedule()
	s.Flush()
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, s.Pending())
}

func TestLayoutSchedulerStop(t *testing.T) {
	var runs atomic.Int32
	s := NewLayoutScheduler(10*time.Millisecond, func() { runs.Add(1) })

	s.Schedule()
	s.Stop()
	s.Schedule()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
	assert.False(t, s.Pending())
}

func TestLayoutSchedulerZeroDelayRunsInline(t *testing.T) {
	var runs atomic.Int32
	s := NewLayoutScheduler(0, func() { runs.Add(1) })
	defer s.Stop()

	s.Schedule()
	s.Schedule()
	assert.Equal(t, int32(2), runs.Load())
}

func TestSessionScheduledLayoutPositionsNewTable(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.Debounce = time.Hour
	s := NewCanvasSession(newFakeBackend(), nil, opts)
	defer s.Close()

	_, err := s.CreateTable("a", nil)
	assert.NoError(t, err)
	_, err = s.CreateTable("b", nil)
	assert.NoError(t, err)
	assert.True(t, s.LayoutPending())

	s.FlushLayout()
	assert.False(t, s.LayoutPending())
	for _, n := range s.Store().Nodes() {
		assert.NotEmpty(t, n.SourcePosition, n.Data.Label)
	}
}
