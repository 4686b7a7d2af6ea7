package stats_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"anonchat/internal/models"
	"anonchat/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CountSearchingByGender(ctx context.Context) (models.GenderCounts, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.GenderCounts), args.Error(1)
}

func (m *mockStore) CountOnlineByGender(ctx context.Context, activeSince time.Time) (models.GenderCounts, error) {
	args := m.Called(ctx, activeSince)
	return args.Get(0).(models.GenderCounts), args.Error(1)
}

func (m *mockStore) AvgSearchTimeStats(ctx context.Context, since time.Time) (models.AvgSearchTime, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(models.AvgSearchTime), args.Error(1)
}

type recordingHub struct {
	mu    sync.Mutex
	calls int
	last  models.Envelope
}

func (h *recordingHub) BroadcastToRoom(room string, env models.Envelope, exceptSessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.last = env
}

func (h *recordingHub) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestBroadcaster_SnapshotRecomputesWhenStale(t *testing.T) {
	st := new(mockStore)
	st.On("CountSearchingByGender", mock.Anything).Return(models.GenderCounts{Total: 4, Male: 2, Female: 2}, nil)
	st.On("CountOnlineByGender", mock.Anything, mock.Anything).Return(models.GenderCounts{Total: 10}, nil)
	st.On("AvgSearchTimeStats", mock.Anything, mock.Anything).Return(models.AvgSearchTime{Matches24h: 3}, nil)

	b := stats.New(st, nil, 5*time.Second, 2*time.Second, nil)
	snap := b.Snapshot(context.Background())

	assert.Equal(t, 4, snap.Searching.Total)
	assert.Equal(t, 3, snap.AvgSearchTime.Matches24h)
	st.AssertNumberOfCalls(t, "CountSearchingByGender", 1)

	// second read within TTL should not hit the store again
	_ = b.Snapshot(context.Background())
	st.AssertNumberOfCalls(t, "CountSearchingByGender", 1)
}

func TestBroadcaster_ApplyDelta_StartIncrementsCachedTotal(t *testing.T) {
	st := new(mockStore)
	st.On("CountSearchingByGender", mock.Anything).Return(models.GenderCounts{Total: 4, Male: 2, Female: 2}, nil)
	st.On("CountOnlineByGender", mock.Anything, mock.Anything).Return(models.GenderCounts{}, nil)
	st.On("AvgSearchTimeStats", mock.Anything, mock.Anything).Return(models.AvgSearchTime{}, nil)

	b := stats.New(st, nil, 5*time.Second, 2*time.Second, nil)
	_ = b.Snapshot(context.Background())

	b.ApplyDelta("start", "male")
	snap := b.Snapshot(context.Background())

	assert.Equal(t, 5, snap.Searching.Total)
	assert.Equal(t, 3, snap.Searching.Male)
}

func TestBroadcaster_ApplyDelta_MatchDecrementsTotalByTwo(t *testing.T) {
	st := new(mockStore)
	st.On("CountSearchingByGender", mock.Anything).Return(models.GenderCounts{Total: 4, Male: 2, Female: 2}, nil)
	st.On("CountOnlineByGender", mock.Anything, mock.Anything).Return(models.GenderCounts{}, nil)
	st.On("AvgSearchTimeStats", mock.Anything, mock.Anything).Return(models.AvgSearchTime{}, nil)

	b := stats.New(st, nil, 5*time.Second, 2*time.Second, nil)
	_ = b.Snapshot(context.Background())

	b.ApplyDelta("match", "male")
	snap := b.Snapshot(context.Background())

	assert.Equal(t, 2, snap.Searching.Total)
	assert.Equal(t, 1, snap.Searching.Male)
	assert.Equal(t, 1, snap.AvgSearchTime.Matches24h)
}

func TestBroadcaster_CancelNeverGoesNegative(t *testing.T) {
	st := new(mockStore)
	st.On("CountSearchingByGender", mock.Anything).Return(models.GenderCounts{Total: 0}, nil)
	st.On("CountOnlineByGender", mock.Anything, mock.Anything).Return(models.GenderCounts{}, nil)
	st.On("AvgSearchTimeStats", mock.Anything, mock.Anything).Return(models.AvgSearchTime{}, nil)

	b := stats.New(st, nil, 5*time.Second, 2*time.Second, nil)
	_ = b.Snapshot(context.Background())

	b.ApplyDelta("cancel", "male")
	snap := b.Snapshot(context.Background())

	assert.Equal(t, 0, snap.Searching.Total)
	assert.Equal(t, 0, snap.Searching.Male)
}

func TestBroadcaster_DebouncesBurstIntoOneBroadcast(t *testing.T) {
	st := new(mockStore)
	st.On("CountSearchingByGender", mock.Anything).Return(models.GenderCounts{}, nil)
	st.On("CountOnlineByGender", mock.Anything, mock.Anything).Return(models.GenderCounts{}, nil)
	st.On("AvgSearchTimeStats", mock.Anything, mock.Anything).Return(models.AvgSearchTime{}, nil)

	hub := &recordingHub{}
	b := stats.New(st, hub, 5*time.Second, 30*time.Millisecond, nil)

	for i := 0; i < 10; i++ {
		b.ApplyDelta("start", "male")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, hub.callCount(), "ten rapid deltas should coalesce into a single broadcast")
}

func TestBroadcaster_SubscribeSnapshot_SelfCorrectsWithoutMutatingCache(t *testing.T) {
	st := new(mockStore)
	st.On("CountSearchingByGender", mock.Anything).Return(models.GenderCounts{Total: 2, Male: 1, Female: 1}, nil)
	st.On("CountOnlineByGender", mock.Anything, mock.Anything).Return(models.GenderCounts{}, nil)
	st.On("AvgSearchTimeStats", mock.Anything, mock.Anything).Return(models.AvgSearchTime{}, nil)

	b := stats.New(st, nil, 5*time.Second, 2*time.Second, nil)

	snap := b.SubscribeSnapshot(context.Background(), "male", true)
	assert.Equal(t, 3, snap.Searching.Total)
	assert.Equal(t, 2, snap.Searching.Male)

	// the shared cache itself must remain uncorrected
	cached := b.Snapshot(context.Background())
	assert.Equal(t, 2, cached.Searching.Total)
}
