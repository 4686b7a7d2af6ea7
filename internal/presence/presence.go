// Package presence implements the ConnectionHub: the set of authenticated
// sessions, per-user room membership, and reconnection grace. Generalized
// from chathub.ManagerService's Clients/RegisterCh/UnregisterCh maps into a
// mutex-guarded registry addressable by userId rather than by one global
// map keyed by AnonID, per spec.md §4.2's per-user session fan-out.
package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"anonchat/internal/directory"
	"anonchat/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client is the transport-agnostic send side of one session — implemented
// by both the WebSocket and Telegram clients, grounded on chathub.Client's
// doc comment: "the interface for any type of connection (e.g. WebSocket,
// Telegram)".
type Client interface {
	UserID() string
	Send(env models.Envelope) error
	Close()
}

// CancelSearcher is the narrow view of Matcher the Hub needs for the
// disconnect-triggered cancellation grace timer.
type CancelSearcher interface {
	CancelSearch(ctx context.Context, userID string) (*models.SearchRecord, error)
}

// StatsRebroadcaster is the narrow view of StatsBroadcaster the Hub needs
// to trigger the periodic rebroadcast described in §4.2 step 5.
type StatsRebroadcaster interface {
	Nudge()
}

// PubSub is the narrow view of store.Service the Hub needs for cross-process
// fan-out, grounded on chathub.pubsub.go's StartPubSubListener — generalized
// from one global channel to one channel per room/user so a horizontally
// scaled deployment still delivers broadcastToRoom/sendToUser to whichever
// process holds the target session.
type PubSub interface {
	PublishToRoom(ctx context.Context, room string, payload []byte) error
	SubscribeRoom(ctx context.Context, room string) (<-chan []byte, func() error)
}

type roomPubSubMessage struct {
	Origin string          `json:"origin"`
	Env    models.Envelope `json:"env"`
	Except string          `json:"except"`
}

type userPubSubMessage struct {
	Origin string          `json:"origin"`
	Env    models.Envelope `json:"env"`
}

type userState struct {
	mu       sync.Mutex
	sessions map[string]*session
	rooms    map[string]bool // union of rooms held by any session
	// forgetTimer fires 2 minutes after the last session drops, clearing rooms.
	forgetTimer *time.Timer
	// cancelTimer fires 10s after the last session drops, cancelling any search.
	cancelTimer *time.Timer
}

type session struct {
	id              string
	userID          string
	client          Client
	rooms           map[string]bool
	connectedAt     time.Time
	reconnectedFrom string
	done            chan struct{}
}

// lastActiveRefresh is how often a live session re-touches its user's
// lastActive and nudges the stats broadcast (spec.md §4.2 step 5), kept
// well under stats.onlineWindow's 30s cutoff so a connected user never
// silently falls out of search:stats.online.
const lastActiveRefresh = 10 * time.Second

// Config carries the timing knobs spec.md §5 assigns to the Hub. The
// WebSocket heartbeat interval/timeout are a transport concern, not the
// Hub's — they're threaded into transport/ws.Client directly instead.
type Config struct {
	DisconnectCancelGrace time.Duration
	RoomMemoryRetention   time.Duration
	ReconnectWindow       time.Duration
}

// Hub is the ConnectionHub.
type Hub struct {
	cfg        Config
	directory  directory.Directory
	canceller  CancelSearcher
	stats      StatsRebroadcaster
	pubsub     PubSub
	instanceID string
	log        *zap.Logger

	mu    sync.RWMutex
	users map[string]*userState

	// lastDisconnect remembers, per user, the time of the last disconnect —
	// consulted by Connect to decide whether a reconnect is within the
	// ReconnectWindow. Rooms are recovered only while the user's room set is
	// still held; forgetRooms clears it after RoomMemoryRetention.
	lastDisconnect map[string]time.Time

	// subMu guards the live Redis subscriptions this process holds, kept
	// separate from mu since subscribe/unsubscribe brackets a room-membership
	// scan that itself takes mu.
	subMu    sync.Mutex
	roomSubs map[string]func() error
	userSubs map[string]func() error
}

func New(cfg Config, dir directory.Directory, canceller CancelSearcher, stats StatsRebroadcaster, log *zap.Logger) *Hub {
	return &Hub{
		cfg:            cfg,
		directory:      dir,
		canceller:      canceller,
		stats:          stats,
		instanceID:     uuid.New().String(),
		log:            log,
		users:          make(map[string]*userState),
		lastDisconnect: make(map[string]time.Time),
		roomSubs:       make(map[string]func() error),
		userSubs:       make(map[string]func() error),
	}
}

// SetPubSub enables cross-process fan-out, wired after construction the same
// way stats.Broadcaster.SetHub is: the Hub is usable standalone (single
// process, every session local) until this is called.
func (h *Hub) SetPubSub(ps PubSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pubsub = ps
}

func (h *Hub) stateFor(userID string) *userState {
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.users[userID]
	if !ok {
		u = &userState{sessions: make(map[string]*session), rooms: make(map[string]bool)}
		h.users[userID] = u
	}
	return u
}

// Connect registers a new session for userID. If reconnecting is true and
// the recovery window is still open, the session is handed the user's prior
// room set and connection:recovered is sent.
func (h *Hub) Connect(ctx context.Context, userID string, client Client, reconnecting bool) (sessionID string, recovered bool) {
	u := h.stateFor(userID)
	u.mu.Lock()

	if u.cancelTimer != nil {
		u.cancelTimer.Stop()
		u.cancelTimer = nil
	}
	if u.forgetTimer != nil {
		u.forgetTimer.Stop()
		u.forgetTimer = nil
	}

	sessionID = uuid.New().String()
	sess := &session{id: sessionID, userID: userID, client: client, rooms: make(map[string]bool), connectedAt: time.Now(), done: make(chan struct{})}

	h.mu.Lock()
	withinWindow := time.Since(h.lastDisconnect[userID]) <= h.cfg.ReconnectWindow
	h.mu.Unlock()

	if reconnecting && withinWindow && len(u.rooms) > 0 {
		for room := range u.rooms {
			sess.rooms[room] = true
		}
		sess.reconnectedFrom = userID
		recovered = true
	}
	u.sessions[sessionID] = sess
	u.mu.Unlock()

	if err := h.directory.Touch(ctx, userID, time.Now()); err != nil && h.log != nil {
		h.log.Warn("presence: touch on connect failed", zap.Error(err))
	}
	if recovered {
		_ = client.Send(models.Envelope{Kind: models.EvConnectionRecovered, Payload: struct{}{}})
	}
	go h.runLastActiveRefresh(userID, sess)
	h.subscribeUser(userID)
	return sessionID, recovered
}

// runLastActiveRefresh keeps lastActive from going stale for the life of a
// session, and nudges the stats broadcast so search:stats.online tracks it
// promptly rather than waiting for the next 5s cache recompute.
func (h *Hub) runLastActiveRefresh(userID string, sess *session) {
	ticker := time.NewTicker(lastActiveRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			if err := h.directory.Touch(context.Background(), userID, time.Now()); err != nil && h.log != nil {
				h.log.Warn("presence: periodic touch failed", zap.String("userId", userID), zap.Error(err))
			}
			if h.stats != nil {
				h.stats.Nudge()
			}
		}
	}
}

// Disconnect removes a session. If it was the user's last session, starts
// the cancellation grace timer and the room-memory retention timer.
func (h *Hub) Disconnect(userID, sessionID string) {
	u := h.stateFor(userID)
	u.mu.Lock()
	sess, ok := u.sessions[sessionID]
	delete(u.sessions, sessionID)
	empty := len(u.sessions) == 0
	u.mu.Unlock()

	if ok {
		close(sess.done)
	}

	if !empty {
		return
	}

	h.mu.Lock()
	h.lastDisconnect[userID] = time.Now()
	h.mu.Unlock()

	if err := h.directory.MarkOffline(context.Background(), userID, time.Now()); err != nil && h.log != nil {
		h.log.Warn("presence: mark offline failed", zap.Error(err))
	}

	u.mu.Lock()
	u.cancelTimer = time.AfterFunc(h.cfg.DisconnectCancelGrace, func() { h.fireCancelGrace(userID) })
	u.forgetTimer = time.AfterFunc(h.cfg.RoomMemoryRetention, func() { h.forgetRooms(userID) })
	u.mu.Unlock()
}

func (h *Hub) fireCancelGrace(userID string) {
	u := h.stateFor(userID)
	u.mu.Lock()
	stillGone := len(u.sessions) == 0
	u.mu.Unlock()
	if !stillGone || h.canceller == nil {
		return
	}
	if _, err := h.canceller.CancelSearch(context.Background(), userID); err != nil && h.log != nil {
		h.log.Warn("presence: disconnect-triggered cancel failed", zap.String("userId", userID), zap.Error(err))
	}
}

func (h *Hub) forgetRooms(userID string) {
	u := h.stateFor(userID)
	u.mu.Lock()
	empty := len(u.sessions) == 0
	var forgotten []string
	if empty {
		for r := range u.rooms {
			forgotten = append(forgotten, r)
		}
		u.rooms = make(map[string]bool)
	}
	u.mu.Unlock()

	for _, room := range forgotten {
		h.syncRoomSubscription(room)
	}
	if empty {
		h.unsubscribeUser(userID)
	}
}

// JoinRoom adds a session to a room, updating both the session's and the
// user's room sets.
func (h *Hub) JoinRoom(userID, sessionID, room string) {
	u := h.stateFor(userID)
	u.mu.Lock()
	if sess, ok := u.sessions[sessionID]; ok {
		sess.rooms[room] = true
	}
	u.rooms[room] = true
	u.mu.Unlock()

	h.syncRoomSubscription(room)
}

// LeaveRoom removes a session from a room. The per-user union keeps the
// room (another session, or a future reconnect, may still need it) unless
// no session holds it anymore.
func (h *Hub) LeaveRoom(userID, sessionID, room string) {
	u := h.stateFor(userID)
	u.mu.Lock()
	if sess, ok := u.sessions[sessionID]; ok {
		delete(sess.rooms, room)
	}
	stillHeld := false
	for _, sess := range u.sessions {
		if sess.rooms[room] {
			stillHeld = true
			break
		}
	}
	if !stillHeld {
		delete(u.rooms, room)
	}
	u.mu.Unlock()

	h.syncRoomSubscription(room)
}

// SendToUser delivers env to every local session of userID, then publishes
// to the user's Redis channel so a sibling process holding another of this
// user's sessions also gets it. No-op locally if the user has no local
// sessions.
func (h *Hub) SendToUser(userID string, env models.Envelope) {
	h.sendToUserLocal(userID, env)
	h.publishUser(userID, env)
}

func (h *Hub) sendToUserLocal(userID string, env models.Envelope) {
	h.mu.RLock()
	u, ok := h.users[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	u.mu.Lock()
	clients := make([]Client, 0, len(u.sessions))
	for _, sess := range u.sessions {
		clients = append(clients, sess.client)
	}
	u.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(env); err != nil && h.log != nil {
			h.log.Warn("presence: send to user failed", zap.String("userId", userID), zap.Error(err))
		}
	}
}

// BroadcastToRoom reaches every local session currently joined to room,
// across every user, then publishes to the room's Redis channel so any
// sibling process with members of this room delivers it too.
func (h *Hub) BroadcastToRoom(room string, env models.Envelope, exceptSessionID string) {
	h.broadcastLocal(room, env, exceptSessionID)
	h.publishRoom(room, env, exceptSessionID)
}

func (h *Hub) broadcastLocal(room string, env models.Envelope, exceptSessionID string) {
	h.mu.RLock()
	users := make([]*userState, 0, len(h.users))
	for _, u := range h.users {
		users = append(users, u)
	}
	h.mu.RUnlock()

	for _, u := range users {
		u.mu.Lock()
		var targets []Client
		for _, sess := range u.sessions {
			if sess.id == exceptSessionID {
				continue
			}
			if sess.rooms[room] {
				targets = append(targets, sess.client)
			}
		}
		u.mu.Unlock()
		for _, c := range targets {
			if err := c.Send(env); err != nil && h.log != nil {
				h.log.Warn("presence: broadcast to room failed", zap.String("room", room), zap.Error(err))
			}
		}
	}
}

// roomHasMembers reports whether any local session, for any user, currently
// holds room — used to decide whether this process still needs a live Redis
// subscription for it.
func (h *Hub) roomHasMembers(room string) bool {
	h.mu.RLock()
	users := make([]*userState, 0, len(h.users))
	for _, u := range h.users {
		users = append(users, u)
	}
	h.mu.RUnlock()

	for _, u := range users {
		u.mu.Lock()
		held := u.rooms[room]
		u.mu.Unlock()
		if held {
			return true
		}
	}
	return false
}

func (h *Hub) getPubSub() PubSub {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pubsub
}

// syncRoomSubscription reconciles this process's Redis subscription for room
// against current local membership: subscribes the first time a local
// session joins, unsubscribes once the last one leaves. Scan-based rather
// than refcounted so idempotent JoinRoom/LeaveRoom calls can't drift it.
func (h *Hub) syncRoomSubscription(room string) {
	ps := h.getPubSub()
	if ps == nil {
		return
	}
	wantSub := h.roomHasMembers(room)

	h.subMu.Lock()
	_, subscribed := h.roomSubs[room]
	if wantSub == subscribed {
		h.subMu.Unlock()
		return
	}
	if !wantSub {
		cancel := h.roomSubs[room]
		delete(h.roomSubs, room)
		h.subMu.Unlock()
		if err := cancel(); err != nil && h.log != nil {
			h.log.Warn("presence: room unsubscribe failed", zap.String("room", room), zap.Error(err))
		}
		return
	}
	h.subMu.Unlock()

	ch, cancel := ps.SubscribeRoom(context.Background(), room)

	h.subMu.Lock()
	if _, already := h.roomSubs[room]; already || !h.roomHasMembers(room) {
		h.subMu.Unlock()
		_ = cancel()
		return
	}
	h.roomSubs[room] = cancel
	h.subMu.Unlock()

	go h.consumeRoom(room, ch)
}

func (h *Hub) consumeRoom(room string, ch <-chan []byte) {
	for payload := range ch {
		var msg roomPubSubMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if msg.Origin == h.instanceID {
			continue
		}
		h.broadcastLocal(room, msg.Env, msg.Except)
	}
}

func (h *Hub) publishRoom(room string, env models.Envelope, exceptSessionID string) {
	ps := h.getPubSub()
	if ps == nil {
		return
	}
	payload, err := json.Marshal(roomPubSubMessage{Origin: h.instanceID, Env: env, Except: exceptSessionID})
	if err != nil {
		return
	}
	if err := ps.PublishToRoom(context.Background(), room, payload); err != nil && h.log != nil {
		h.log.Warn("presence: room publish failed", zap.String("room", room), zap.Error(err))
	}
}

func userChannel(userID string) string {
	return "user:" + userID
}

// subscribeUser opens this process's Redis subscription for userID's
// personal channel, called once per Connect (idempotent: a second session
// on the same process reuses the existing subscription).
func (h *Hub) subscribeUser(userID string) {
	ps := h.getPubSub()
	if ps == nil {
		return
	}

	h.subMu.Lock()
	if _, already := h.userSubs[userID]; already {
		h.subMu.Unlock()
		return
	}
	h.subMu.Unlock()

	ch, cancel := ps.SubscribeRoom(context.Background(), userChannel(userID))

	h.subMu.Lock()
	if _, already := h.userSubs[userID]; already {
		h.subMu.Unlock()
		_ = cancel()
		return
	}
	h.userSubs[userID] = cancel
	h.subMu.Unlock()

	go h.consumeUser(userID, ch)
}

// unsubscribeUser drops this process's subscription once the user's room
// memory (and thus, by construction, their last local session) has expired.
func (h *Hub) unsubscribeUser(userID string) {
	h.subMu.Lock()
	cancel, ok := h.userSubs[userID]
	delete(h.userSubs, userID)
	h.subMu.Unlock()
	if !ok {
		return
	}
	if err := cancel(); err != nil && h.log != nil {
		h.log.Warn("presence: user unsubscribe failed", zap.String("userId", userID), zap.Error(err))
	}
}

func (h *Hub) consumeUser(userID string, ch <-chan []byte) {
	for payload := range ch {
		var msg userPubSubMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if msg.Origin == h.instanceID {
			continue
		}
		h.sendToUserLocal(userID, msg.Env)
	}
}

func (h *Hub) publishUser(userID string, env models.Envelope) {
	ps := h.getPubSub()
	if ps == nil {
		return
	}
	payload, err := json.Marshal(userPubSubMessage{Origin: h.instanceID, Env: env})
	if err != nil {
		return
	}
	if err := ps.PublishToRoom(context.Background(), userChannel(userID), payload); err != nil && h.log != nil {
		h.log.Warn("presence: user publish failed", zap.String("userId", userID), zap.Error(err))
	}
}

// RoomsFor returns the per-user room union, used to answer "am I a member
// of chat:{chatId}" without threading session state through ChatRouter.
func (h *Hub) RoomsFor(userID string) map[string]bool {
	u := h.stateFor(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]bool, len(u.rooms))
	for r := range u.rooms {
		out[r] = true
	}
	return out
}

// SessionCount reports the number of live sessions across all users — the
// /health check's "ConnectionHub counter is >= 0" liveness signal.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, u := range h.users {
		u.mu.Lock()
		n += len(u.sessions)
		u.mu.Unlock()
	}
	return n
}

// NotifyMatched implements matcher.Notifier.
func (h *Hub) NotifyMatched(ctx context.Context, userID string, out models.SearchMatchedOut) error {
	h.SendToUser(userID, models.Envelope{Kind: models.EvSearchMatched, Payload: out})
	if h.stats != nil {
		h.stats.Nudge()
	}
	return nil
}

// NotifyExpired implements matcher.Notifier.
func (h *Hub) NotifyExpired(ctx context.Context, userID string) error {
	h.SendToUser(userID, models.Envelope{Kind: models.EvSearchExpired, Payload: struct{}{}})
	return nil
}
