package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobremidia/player/internal/clock"
	"github.com/sobremidia/player/pkg/logger"
)

type memOffsetStore struct {
	mu     sync.Mutex
	offset time.Duration
	has    bool
}

func (m *memOffsetStore) LoadClockOffset() (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset, m.has, nil
}

func (m *memOffsetStore) SaveClockOffset(offset time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = offset
	m.has = true
	return nil
}

func TestUpdateOffset_FirstSyncAcceptsAnyShift(t *testing.T) {
	store := &memOffsetStore{}
	s := clock.NewSynchronizer("pool.invalid", "", time.Hour, store, logger.NewNop())

	require.False(t, s.Synced())
	s.UpdateOffset(48 * time.Hour)

	assert.True(t, s.Synced())
	assert.Equal(t, 48*time.Hour, s.Offset())
	assert.Equal(t, 48*time.Hour, store.offset)
}

func TestUpdateOffset_RejectsMassiveDriftAfterFirstSync(t *testing.T) {
	store := &memOffsetStore{}
	s := clock.NewSynchronizer("pool.invalid", "", time.Hour, store, logger.NewNop())

	s.UpdateOffset(2 * time.Second)
	s.UpdateOffset(90 * time.Minute) // beyond the 1h bound

	assert.Equal(t, 2*time.Second, s.Offset())
}

func TestUpdateOffset_AcceptsSmallCorrections(t *testing.T) {
	s := clock.NewSynchronizer("pool.invalid", "", time.Hour, nil, logger.NewNop())

	s.UpdateOffset(2 * time.Second)
	s.UpdateOffset(-30 * time.Minute)

	assert.Equal(t, -30*time.Minute, s.Offset())
}

func TestNewSynchronizer_RestoresPersistedOffset(t *testing.T) {
	store := &memOffsetStore{offset: 5 * time.Minute, has: true}
	s := clock.NewSynchronizer("pool.invalid", "", time.Hour, store, logger.NewNop())

	assert.True(t, s.Synced())
	assert.Equal(t, 5*time.Minute, s.Offset())

	// The restored state arms the drift bound too.
	s.UpdateOffset(10 * time.Hour)
	assert.Equal(t, 5*time.Minute, s.Offset())
}

func TestNow_AppliesOffset(t *testing.T) {
	s := clock.NewSynchronizer("pool.invalid", "", time.Hour, nil, logger.NewNop())
	s.UpdateOffset(10 * time.Minute)

	diff := s.Now().Sub(time.Now())
	assert.InDelta(t, (10 * time.Minute).Seconds(), diff.Seconds(), 1.0)
}
