// Package janitor runs the periodic expiry jobs spec.md §4.6 describes,
// grounded on evtaccount-telegram-health-dairy's scheduler package: one
// go-co-op/gocron/v2 scheduler, one job per sweep, each independently
// scheduled instead of a single hand-rolled ticker loop.
package janitor

import (
	"context"
	"time"

	"anonchat/internal/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// SearchExpirer is the narrow view of matcher.Service the janitor needs.
type SearchExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Time) (int, error)
}

// ChatExpirer is the narrow view of store.Store the janitor needs.
type ChatExpirer interface {
	ExpireChats(ctx context.Context, now time.Time) ([]models.ChatRecord, error)
}

// RoomNotifier tells participants of an expired chat that it ended.
type RoomNotifier interface {
	BroadcastToRoom(room string, env models.Envelope, exceptSessionID string)
}

type Config struct {
	SearchExpiry      time.Duration
	SearchSweep       time.Duration
	ChatSweep         time.Duration
	RetentionSweep    time.Duration
	MessageRetention  time.Duration
}

func DefaultConfig(searchExpiry time.Duration) Config {
	return Config{
		SearchExpiry:     searchExpiry,
		SearchSweep:      30 * time.Second,
		ChatSweep:        60 * time.Second,
		RetentionSweep:   24 * time.Hour,
		MessageRetention: 30 * 24 * time.Hour,
	}
}

// Loop owns the background scheduler.
type Loop struct {
	cfg      Config
	matcher  SearchExpirer
	chats    ChatExpirer
	hub      RoomNotifier
	retainer MessageRetainer
	log      *zap.Logger
	sched    gocron.Scheduler
}

// MessageRetainer prunes chat history past spec.md's retention window.
// Defined narrowly here since only the janitor exercises it.
type MessageRetainer interface {
	PruneMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

func New(cfg Config, matcher SearchExpirer, chats ChatExpirer, hub RoomNotifier, retainer MessageRetainer, log *zap.Logger) (*Loop, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Loop{cfg: cfg, matcher: matcher, chats: chats, hub: hub, retainer: retainer, log: log, sched: sched}, nil
}

// Start registers the three jobs and starts the scheduler. Call Stop to
// shut it down cleanly.
func (l *Loop) Start() error {
	if _, err := l.sched.NewJob(
		gocron.DurationJob(l.cfg.SearchSweep),
		gocron.NewTask(l.sweepSearches),
	); err != nil {
		return err
	}
	if _, err := l.sched.NewJob(
		gocron.DurationJob(l.cfg.ChatSweep),
		gocron.NewTask(l.sweepChats),
	); err != nil {
		return err
	}
	if l.retainer != nil {
		if _, err := l.sched.NewJob(
			gocron.DurationJob(l.cfg.RetentionSweep),
			gocron.NewTask(l.sweepRetention),
		); err != nil {
			return err
		}
	}
	l.sched.Start()
	return nil
}

func (l *Loop) Stop() error {
	return l.sched.Shutdown()
}

func (l *Loop) sweepSearches() {
	cutoff := time.Now().Add(-l.cfg.SearchExpiry)
	n, err := l.matcher.ExpireStale(context.Background(), cutoff)
	if err != nil {
		l.logError("search expiry sweep failed", err)
		return
	}
	if n > 0 && l.log != nil {
		l.log.Info("janitor: expired stale searches", zap.Int("count", n))
	}
}

func (l *Loop) sweepChats() {
	ctx := context.Background()
	expired, err := l.chats.ExpireChats(ctx, time.Now())
	if err != nil {
		l.logError("chat expiry sweep failed", err)
		return
	}
	for _, chat := range expired {
		l.hub.BroadcastToRoom("chat:"+chat.ID, models.Envelope{
			Kind:    models.EvChatEnded,
			Payload: models.ChatEndedOut{ChatID: chat.ID, EndedBy: "system", Reason: "expired"},
		}, "")
	}
	if len(expired) > 0 && l.log != nil {
		l.log.Info("janitor: expired chats", zap.Int("count", len(expired)))
	}
}

func (l *Loop) sweepRetention() {
	cutoff := time.Now().Add(-l.cfg.MessageRetention)
	n, err := l.retainer.PruneMessagesOlderThan(context.Background(), cutoff)
	if err != nil {
		l.logError("retention sweep failed", err)
		return
	}
	if n > 0 && l.log != nil {
		l.log.Info("janitor: pruned retained messages", zap.Int64("count", n))
	}
}

func (l *Loop) logError(msg string, err error) {
	if l.log != nil {
		l.log.Warn("janitor: "+msg, zap.Error(err))
	}
}
