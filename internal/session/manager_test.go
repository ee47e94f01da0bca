package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartengine/internal/event"
	redisrepo "github.com/utafrali/cartengine/internal/repository/redis"
)

func newTestManager(t *testing.T, idleTTL time.Duration) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := redisrepo.NewCartRepository(client, time.Hour)
	events := event.NewProducer(&stubPublisher{}, testLogger())
	return NewManager(repo, events, testLogger(), idleTTL)
}

func TestManager_CreatesEngineOnFirstUse(t *testing.T) {
	m := newTestManager(t, 30*time.Minute)

	eng := m.Engine("sess-1")
	require.NotNil(t, eng)
	require.NotNil(t, eng.Store)
	require.NotNil(t, eng.Binding)
	assert.Equal(t, 1, m.Len())
}

func TestManager_ReusesEngineForSameSession(t *testing.T) {
	m := newTestManager(t, 30*time.Minute)

	a := m.Engine("sess-1")
	a.Store.AddLine(line("p1", 1), 1)

	b := m.Engine("sess-1")
	assert.Same(t, a, b)
	assert.Len(t, b.Store.State().Lines, 1)
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m := newTestManager(t, 30*time.Minute)

	a := m.Engine("sess-1")
	b := m.Engine("sess-2")
	require.NotSame(t, a, b)

	a.Store.AddLine(line("p1", 1), 1)
	assert.Empty(t, b.Store.State().Lines)
	assert.Equal(t, 2, m.Len())
}

func TestManager_SweepEvictsIdleSessions(t *testing.T) {
	m := newTestManager(t, 30*time.Minute)

	current := time.Now()
	m.now = func() time.Time { return current }

	m.Engine("idle")
	current = current.Add(10 * time.Minute)
	m.Engine("active")

	// Past the idle TTL for the first session only.
	current = current.Add(25 * time.Minute)
	evicted := m.Sweep()

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, m.Len())
}

func TestManager_EngineCallRefreshesIdleDeadline(t *testing.T) {
	m := newTestManager(t, 30*time.Minute)

	current := time.Now()
	m.now = func() time.Time { return current }

	m.Engine("sess-1")
	current = current.Add(25 * time.Minute)
	m.Engine("sess-1") // touch

	current = current.Add(25 * time.Minute)
	assert.Equal(t, 0, m.Sweep(), "recently touched session survives the sweep")
}

func TestManager_SweepEmptyManager(t *testing.T) {
	m := newTestManager(t, time.Minute)
	assert.Equal(t, 0, m.Sweep())
}

func TestManager_EvictedSessionStartsFresh_ButSlotSurvives(t *testing.T) {
	m := newTestManager(t, time.Minute)

	current := time.Now()
	m.now = func() time.Time { return current }

	eng := m.Engine("sess-1")
	eng.Store.AddLine(line("p1", 2), 2)

	current = current.Add(2 * time.Minute)
	require.Equal(t, 1, m.Sweep())

	// A new engine for the same session ID starts empty in memory; the
	// persisted guest slot is still there and comes back via the binding.
	fresh := m.Engine("sess-1")
	require.NotSame(t, eng, fresh)
	assert.Empty(t, fresh.Store.State().Lines)

	fresh.Binding.OnActorChanged(context.Background(), Guest())
	st := fresh.Store.State()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 2, st.Lines[0].Quantity)
}
