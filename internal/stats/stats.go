// Package stats implements the StatsBroadcaster: a cached StatsSnapshot with
// bounded staleness, debounced/coalesced broadcast, and the incremental
// update path described in spec.md §4.3. There is no direct teacher
// analogue — chatgogo computes no global counters — so this is grounded on
// the teacher's module-level-singleton idiom (services holding their own
// mutex-guarded state, constructed once and injected) applied to a new
// concern, per SPEC_FULL.md's design note on static singletons.
package stats

import (
	"context"
	"sync"
	"time"

	"anonchat/internal/models"

	"go.uber.org/zap"
)

const onlineWindow = 30 * time.Second

// AggregateStore is the narrow slice of store.Store the Broadcaster needs
// for full recomputation.
type AggregateStore interface {
	CountSearchingByGender(ctx context.Context) (models.GenderCounts, error)
	CountOnlineByGender(ctx context.Context, activeSince time.Time) (models.GenderCounts, error)
	AvgSearchTimeStats(ctx context.Context, since time.Time) (models.AvgSearchTime, error)
}

// RoomBroadcaster is the narrow view of the ConnectionHub the Broadcaster
// needs to reach search_stats_room subscribers.
type RoomBroadcaster interface {
	BroadcastToRoom(room string, env models.Envelope, exceptSessionID string)
}

const statsRoom = "search_stats_room"

// Broadcaster owns the single process-wide StatsSnapshot instance.
type Broadcaster struct {
	store AggregateStore
	hub   RoomBroadcaster
	log   *zap.Logger

	cacheTTL time.Duration
	debounce time.Duration

	mu       sync.Mutex
	snapshot models.StatsSnapshot

	updating       bool
	pendingUpdate  bool
	debounceTimer  *time.Timer
}

func New(st AggregateStore, hub RoomBroadcaster, cacheTTL, debounce time.Duration, log *zap.Logger) *Broadcaster {
	return &Broadcaster{store: st, hub: hub, cacheTTL: cacheTTL, debounce: debounce, log: log}
}

// SetHub binds the room broadcaster after construction, used when the
// ConnectionHub and Broadcaster are mutually dependent at wiring time (the
// Hub needs a StatsRebroadcaster to satisfy presence's Nudge call, and the
// Broadcaster needs the Hub to actually reach search_stats_room).
func (b *Broadcaster) SetHub(hub RoomBroadcaster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hub = hub
}

// Snapshot returns the cached snapshot, recomputing from Store first if it
// has gone stale.
func (b *Broadcaster) Snapshot(ctx context.Context) models.StatsSnapshot {
	b.mu.Lock()
	stale := time.Since(b.snapshot.CachedAt) > b.cacheTTL
	b.mu.Unlock()
	if stale {
		b.recompute(ctx)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot.Clone()
}

func (b *Broadcaster) recompute(ctx context.Context) {
	searching, err := b.store.CountSearchingByGender(ctx)
	if err != nil {
		if b.log != nil {
			b.log.Warn("stats: recompute searching failed", zap.Error(err))
		}
		return
	}
	online, err := b.store.CountOnlineByGender(ctx, time.Now().Add(-onlineWindow))
	if err != nil {
		if b.log != nil {
			b.log.Warn("stats: recompute online failed", zap.Error(err))
		}
		return
	}
	avg, err := b.store.AvgSearchTimeStats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		if b.log != nil {
			b.log.Warn("stats: recompute avg search time failed", zap.Error(err))
		}
		return
	}

	b.mu.Lock()
	b.snapshot = models.StatsSnapshot{Searching: searching, Online: online, AvgSearchTime: avg, CachedAt: time.Now()}
	b.mu.Unlock()
}

// ApplyDelta implements matcher.StatsNotifier: the incremental update path
// of §4.3. If the cache is already stale, this is a no-op — the next
// reader's full recompute supersedes it — and we still schedule the
// debounced broadcast so subscribers are notified promptly either way.
func (b *Broadcaster) ApplyDelta(action string, gender string) {
	b.mu.Lock()
	if time.Since(b.snapshot.CachedAt) <= b.cacheTTL {
		applyDeltaLocked(&b.snapshot, action, gender)
	}
	b.mu.Unlock()
	b.scheduleBroadcast()
}

func applyDeltaLocked(s *models.StatsSnapshot, action, gender string) {
	switch action {
	case "start":
		s.Searching.Total++
		bumpGender(&s.Searching, gender, 1)
	case "cancel":
		s.Searching.Total = max0i(s.Searching.Total - 1)
		bumpGender(&s.Searching, gender, -1)
	case "match":
		s.Searching.Total = max0i(s.Searching.Total - 2)
		bumpGender(&s.Searching, gender, -1)
		s.AvgSearchTime.Matches24h++
	}
}

func bumpGender(gc *models.GenderCounts, gender string, delta int) {
	switch gender {
	case "male":
		gc.Male = max0i(gc.Male + delta)
	case "female":
		gc.Female = max0i(gc.Female + delta)
	}
}

func max0i(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Nudge schedules the debounced broadcast without an incremental delta —
// used by presence.Hub's periodic lastActive-refresh rebroadcast trigger
// (§4.2 step 5).
func (b *Broadcaster) Nudge() {
	b.scheduleBroadcast()
}

// scheduleBroadcast implements the 2s debounced coalescing timer with a
// re-entrance guard: concurrent triggers within the window collapse into
// one broadcast of the final snapshot.
func (b *Broadcaster) scheduleBroadcast() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.debounceTimer != nil {
		return
	}
	b.debounceTimer = time.AfterFunc(b.debounce, b.fireBroadcast)
}

func (b *Broadcaster) fireBroadcast() {
	b.mu.Lock()
	b.debounceTimer = nil
	if b.updating {
		b.pendingUpdate = true
		b.mu.Unlock()
		return
	}
	b.updating = true
	b.mu.Unlock()

	b.broadcastOnce(context.Background())

	b.mu.Lock()
	b.updating = false
	pending := b.pendingUpdate
	b.pendingUpdate = false
	b.mu.Unlock()

	if pending {
		b.scheduleBroadcast()
	}
}

func (b *Broadcaster) broadcastOnce(ctx context.Context) {
	snap := b.Snapshot(ctx)
	if b.hub == nil {
		return
	}
	b.hub.BroadcastToRoom(statsRoom, models.Envelope{Kind: models.EvSearchStats, Payload: wireSnapshot(snap)}, "")
}

// wireSnapshot flattens StatsSnapshot into the server->client search:stats
// payload shape spec.md §6 specifies.
type wireStats struct {
	T      int                  `json:"t"`
	M      int                  `json:"m"`
	F      int                  `json:"f"`
	Online models.GenderCounts  `json:"online"`
	AvgSearchTime models.AvgSearchTime `json:"avgSearchTime"`
}

func wireSnapshot(s models.StatsSnapshot) wireStats {
	return wireStats{T: s.Searching.Total, M: s.Searching.Male, F: s.Searching.Female, Online: s.Online, AvgSearchTime: s.AvgSearchTime}
}

// SubscribeSnapshot implements the subscribe-time self-correction of §4.3:
// if subscriberSearching is true, it applies a "start" delta for
// subscriberGender to the snapshot returned here only — never to the shared
// cache. It does not check whether the cached snapshot already counts the
// subscriber's record; when it does, the returned snapshot counts it twice.
func (b *Broadcaster) SubscribeSnapshot(ctx context.Context, subscriberGender string, subscriberSearching bool) models.StatsSnapshot {
	snap := b.Snapshot(ctx)
	if subscriberSearching {
		applyDeltaLocked(&snap, "start", subscriberGender)
	}
	return snap
}
