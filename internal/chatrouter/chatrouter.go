// Package chatrouter implements the ChatRouter: message, typing, read, end,
// rate and report events, each validated against ChatRecord.participants
// and isActive before touching the Store. Grounded on chathub's
// IncomingCh-driven dispatch (manager.go), generalized from one hard-coded
// message type into the seven distinct chat: events spec.md §4.4 defines.
package chatrouter

import (
	"context"
	"time"

	"anonchat/internal/apperr"
	"anonchat/internal/breaker"
	"anonchat/internal/models"

	"go.uber.org/zap"
)

// ChatStore is the narrow slice of store.Store the router needs.
type ChatStore interface {
	GetChatByID(ctx context.Context, chatID string) (*models.ChatRecord, error)
	EndChat(ctx context.Context, chatID, endedBy, reason string) error
	AppendMessage(ctx context.Context, msg *models.ChatMessageRow) error
	MarkMessagesRead(ctx context.Context, chatID, readerID string, upTo time.Time) error
	SetLastMessage(ctx context.Context, chatID, content string) error
	HasRated(ctx context.Context, raterID, chatID string) (bool, error)
	CreateRating(ctx context.Context, r *models.Rating) error
	AvgRatingForUser(ctx context.Context, userID string) (float64, error)
}

// Directory is the narrow slice of directory.Directory the router needs to
// persist a recomputed average rating.
type Directory interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// Reporter is the narrow view of reputation.Service the router needs for
// chat:report.
type Reporter interface {
	Report(ctx context.Context, reporterID, reportedID, chatID, reason string) error
}

// RoomHub is the narrow view of presence.Hub the router needs.
type RoomHub interface {
	JoinRoom(userID, sessionID, room string)
	LeaveRoom(userID, sessionID, room string)
	BroadcastToRoom(room string, env models.Envelope, exceptSessionID string)
	SendToUser(userID string, env models.Envelope)
}

// Router is the ChatRouter.
type Router struct {
	Store     ChatStore
	Directory Directory
	Reporter  Reporter
	Hub       RoomHub
	Breaker   *breaker.CircuitBreaker
	Log       *zap.Logger
}

func New(st ChatStore, dir Directory, reporter Reporter, hub RoomHub, log *zap.Logger) *Router {
	return &Router{
		Store:     st,
		Directory: dir,
		Reporter:  reporter,
		Hub:       hub,
		Breaker:   breaker.New(breaker.ChatRouterDefaults()),
		Log:       log,
	}
}

func chatRoom(chatID string) string { return "chat:" + chatID }

func (r *Router) loadActiveParticipant(ctx context.Context, chatID, callerID string) (*models.ChatRecord, error) {
	var chat *models.ChatRecord
	err := r.storeCall(func() error {
		c, err := r.Store.GetChatByID(ctx, chatID)
		chat = c
		return err
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if chat == nil {
		return nil, apperr.NotFound("not found")
	}
	if !chat.HasParticipant(callerID) {
		return nil, apperr.Precondition("not a participant")
	}
	return chat, nil
}

// Join implements chat:join: add the session to chat:{chatId}.
func (r *Router) Join(ctx context.Context, callerID, sessionID string, in models.ChatJoinIn) error {
	if _, err := r.loadActiveParticipant(ctx, in.ChatID, callerID); err != nil {
		return err
	}
	r.Hub.JoinRoom(callerID, sessionID, chatRoom(in.ChatID))
	return nil
}

// Leave implements chat:leave: no participation check per spec.md §4.4.
func (r *Router) Leave(ctx context.Context, callerID, sessionID string, in models.ChatLeaveIn) error {
	r.Hub.LeaveRoom(callerID, sessionID, chatRoom(in.ChatID))
	return nil
}

// Message implements chat:message.
func (r *Router) Message(ctx context.Context, callerID, sessionID string, in models.ChatMessageIn) error {
	if in.Content == "" {
		return apperr.Validation("content must not be empty")
	}
	chat, err := r.loadActiveParticipant(ctx, in.ChatID, callerID)
	if err != nil {
		return err
	}
	if !chat.IsActive {
		return apperr.Precondition("chat already ended")
	}

	row := &models.ChatMessageRow{ChatID: in.ChatID, SenderID: callerID, Content: in.Content}
	if err := r.storeCall(func() error { return r.Store.AppendMessage(ctx, row) }); err != nil {
		return r.fallbackOrErr(err, callerID, "Message queued")
	}
	_ = r.storeCall(func() error { return r.Store.SetLastMessage(ctx, in.ChatID, in.Content) })

	r.Hub.BroadcastToRoom(chatRoom(in.ChatID), models.Envelope{
		Kind:    models.EvChatMessageOut,
		Payload: models.ChatMessageOut{ChatID: in.ChatID, Content: in.Content, UserID: callerID},
	}, "")
	return nil
}

// Typing implements chat:typing: fanned out to the room except the sender.
func (r *Router) Typing(ctx context.Context, callerID, sessionID string, in models.ChatTypingIn) error {
	if _, err := r.loadActiveParticipant(ctx, in.ChatID, callerID); err != nil {
		return err
	}
	r.Hub.BroadcastToRoom(chatRoom(in.ChatID), models.Envelope{
		Kind:    models.EvChatTypingOut,
		Payload: models.ChatTypingOut{ChatID: in.ChatID, UserID: callerID},
	}, sessionID)
	return nil
}

// Read implements chat:read.
func (r *Router) Read(ctx context.Context, callerID, sessionID string, in models.ChatReadIn) error {
	if _, err := r.loadActiveParticipant(ctx, in.ChatID, callerID); err != nil {
		return err
	}
	upTo := time.UnixMilli(in.Timestamp)
	if err := r.storeCall(func() error { return r.Store.MarkMessagesRead(ctx, in.ChatID, callerID, upTo) }); err != nil {
		return wrapStoreErr(err)
	}
	r.Hub.BroadcastToRoom(chatRoom(in.ChatID), models.Envelope{
		Kind:    models.EvChatReadOut,
		Payload: models.ChatReadOut{ChatID: in.ChatID, UserID: callerID, Timestamp: in.Timestamp},
	}, "")
	return nil
}

// End implements chat:end.
func (r *Router) End(ctx context.Context, callerID, sessionID string, in models.ChatEndIn) error {
	chat, err := r.loadActiveParticipant(ctx, in.ChatID, callerID)
	if err != nil {
		return err
	}
	if !chat.IsActive {
		return apperr.Precondition("chat already ended")
	}
	if err := r.storeCall(func() error { return r.Store.EndChat(ctx, in.ChatID, callerID, in.Reason) }); err != nil {
		return wrapStoreErr(err)
	}
	r.Hub.BroadcastToRoom(chatRoom(in.ChatID), models.Envelope{
		Kind:    models.EvChatEnded,
		Payload: models.ChatEndedOut{ChatID: in.ChatID, EndedBy: callerID, Reason: in.Reason},
	}, "")
	return nil
}

// Rate implements chat:rate.
func (r *Router) Rate(ctx context.Context, callerID string, in models.ChatRateIn) error {
	if in.Score < 1 || in.Score > 5 {
		return apperr.Validation("score must be in [1,5]")
	}
	chat, err := r.loadActiveParticipant(ctx, in.ChatID, callerID)
	if err != nil {
		return err
	}

	var already bool
	if err := r.storeCall(func() error {
		a, err := r.Store.HasRated(ctx, callerID, in.ChatID)
		already = a
		return err
	}); err != nil {
		return wrapStoreErr(err)
	}
	if already {
		return apperr.Precondition("already rated this chat")
	}

	ratedUserID := chat.OtherParticipant(callerID)
	rating := &models.Rating{RatedUserID: ratedUserID, RaterUserID: callerID, ChatID: in.ChatID, Score: in.Score, Comment: in.Comment}
	if err := r.storeCall(func() error { return r.Store.CreateRating(ctx, rating) }); err != nil {
		return wrapStoreErr(err)
	}

	if err := r.recomputeRating(ctx, ratedUserID); err != nil && r.Log != nil {
		r.Log.Warn("chatrouter: failed to recompute rating average", zap.String("userId", ratedUserID), zap.Error(err))
	}

	r.Hub.SendToUser(ratedUserID, models.Envelope{
		Kind:    models.EvChatRated,
		Payload: models.ChatRatedOut{ChatID: in.ChatID, RatedBy: callerID, Score: in.Score},
	})
	return nil
}

func (r *Router) recomputeRating(ctx context.Context, userID string) error {
	avg, err := r.Store.AvgRatingForUser(ctx, userID)
	if err != nil {
		return err
	}
	user, err := r.Directory.GetByID(ctx, userID)
	if err != nil || user == nil {
		return err
	}
	user.Rating = avg
	return r.Directory.Update(ctx, user)
}

// Report implements chat:report: delegates to the reputation service and
// acknowledges the reporter without ever notifying the reported user.
func (r *Router) Report(ctx context.Context, callerID string, in models.ChatReportIn) error {
	chat, err := r.loadActiveParticipant(ctx, in.ChatID, callerID)
	if err != nil {
		return err
	}
	reportedID := chat.OtherParticipant(callerID)
	if r.Reporter != nil {
		if err := r.Reporter.Report(ctx, callerID, reportedID, in.ChatID, in.Reason); err != nil {
			return apperr.Internal("failed to record report", err)
		}
	}
	r.Hub.SendToUser(callerID, models.Envelope{Kind: models.EvChatReported, Payload: models.ChatReportedOut{ChatID: in.ChatID}})
	return nil
}

// ContactRequest implements contact:request: relayed to the other
// participant, never persisted — the matchmaker never learns a real
// identity itself, it only ferries the offer between the two sessions.
func (r *Router) ContactRequest(ctx context.Context, callerID string, in models.ContactRequestIn) error {
	chat, err := r.loadActiveParticipant(ctx, in.ChatID, callerID)
	if err != nil {
		return err
	}
	if chat.OtherParticipant(callerID) != in.To {
		return apperr.Precondition("target is not the chat partner")
	}
	r.Hub.SendToUser(in.To, models.Envelope{
		Kind:    models.EvContactRequestOut,
		Payload: models.ContactRequestOut{From: callerID, ChatID: in.ChatID},
	})
	return nil
}

// ContactRespond implements contact:respond, relaying accepted/declined/
// blocked back to the requester. A "blocked" response also files a report
// through the reputation service, matching chat:report's abuse handling.
func (r *Router) ContactRespond(ctx context.Context, callerID string, in models.ContactRespondIn) error {
	switch in.Status {
	case "accepted", "declined", "blocked":
	default:
		return apperr.Validation("status must be one of accepted, declined, blocked")
	}
	r.Hub.SendToUser(in.UserID, models.Envelope{
		Kind:    models.EvContactStatus,
		Payload: models.ContactStatusOut{UserID: callerID, Status: in.Status},
	})
	if in.Status == "blocked" && r.Reporter != nil {
		_ = r.Reporter.Report(ctx, callerID, in.UserID, "", "contact_blocked")
	}
	return nil
}

func (r *Router) storeCall(fn func() error) error {
	return r.Breaker.Do(fn, apperr.CountsAgainstBreaker, nil)
}

func (r *Router) fallbackOrErr(err error, callerID, hint string) error {
	if apperr.KindOf(err) == apperr.KindTransientStore && r.Breaker.State() == breaker.Open {
		r.Hub.SendToUser(callerID, models.Envelope{Kind: models.EvError, Payload: models.ErrorOut{Message: hint}})
		return nil
	}
	return wrapStoreErr(err)
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.TransientStore("chatrouter store call failed", err)
}
