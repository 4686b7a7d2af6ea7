// BotRunner replaces bot_service.go's update loop: one getOrCreateClient
// per Telegram chat, fed into the same Dispatcher the WebSocket transport
// uses, instead of a hand-rolled profile/localization/spoiler UI that is
// out of the matchmaker's scope.
package telegram

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"anonchat/internal/models"
	"anonchat/internal/presence"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Directory resolves a Telegram chat id to the directory's internal user.
type Directory interface {
	GetOrCreate(ctx context.Context, telegramID string) (*models.User, error)
}

// Hub is the narrow view of presence.Hub the bot runner needs to register
// a session and find which chat room it currently belongs to.
type Hub interface {
	Connect(ctx context.Context, userID string, client presence.Client, reconnecting bool) (sessionID string, recovered bool)
	Disconnect(userID, sessionID string)
	RoomsFor(userID string) map[string]bool
}

// Dispatcher mirrors transport/ws.Dispatcher so both transports can share
// the same handler.
type Dispatcher interface {
	Dispatch(userID, sessionID string, env models.Envelope)
}

type BotRunner struct {
	bot       *tgbotapi.BotAPI
	hub       Hub
	directory Directory
	dispatch  Dispatcher
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	client    *Client
	sessionID string
}

func NewBotRunner(token string, hub Hub, dir Directory, dispatch Dispatcher, log *zap.Logger) (*BotRunner, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &BotRunner{bot: bot, hub: hub, directory: dir, dispatch: dispatch, log: log, sessions: make(map[string]*session)}, nil
}

func (r *BotRunner) getOrCreateSession(ctx context.Context, chatID int64) *session {
	telegramID := strconv.FormatInt(chatID, 10)
	user, err := r.directory.GetOrCreate(ctx, telegramID)
	if err != nil || user == nil {
		if r.log != nil {
			r.log.Warn("telegram: failed to resolve user", zap.String("telegramId", telegramID), zap.Error(err))
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[user.ID]; ok {
		return s
	}

	client := New(user.ID, chatID, r.bot, r.log)
	client.Run()
	sessionID, _ := r.hub.Connect(ctx, user.ID, client, false)
	s := &session{client: client, sessionID: sessionID}
	r.sessions[user.ID] = s
	return s
}

// Run polls Telegram for updates and routes each into the matchmaker,
// grounded on BotService.Run's long-poll loop.
func (r *BotRunner) Run() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}
		r.handleMessage(update.Message)
	}
}

func (r *BotRunner) handleMessage(msg *tgbotapi.Message) {
	ctx := context.Background()
	s := r.getOrCreateSession(ctx, msg.Chat.ID)
	if s == nil {
		return
	}
	userID := s.client.UserID()

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "search":
			r.dispatch.Dispatch(userID, s.sessionID, models.Envelope{Kind: models.EvSearchStart, Payload: models.SearchStartIn{}})
		case "cancel":
			r.dispatch.Dispatch(userID, s.sessionID, models.Envelope{Kind: models.EvSearchCancel})
		case "end":
			r.endActiveChat(userID, s.sessionID)
		}
		return
	}

	switch {
	case msg.Photo != nil && len(msg.Photo) > 0:
		r.relayMedia(userID, s.sessionID, "photo", msg.Photo[len(msg.Photo)-1].FileID, msg.Caption)
	case msg.Voice != nil:
		r.relayMedia(userID, s.sessionID, "voice", msg.Voice.FileID, "")
	case msg.Video != nil:
		r.relayMedia(userID, s.sessionID, "video", msg.Video.FileID, msg.Caption)
	default:
		content := msg.Text
		if content == "" {
			content = msg.Caption
		}
		if content == "" {
			return
		}
		r.sendChatMessage(userID, s.sessionID, content)
	}
}

// activeChatID resolves which chat: room the user currently belongs to.
// A Telegram user has at most one active chat at a time, unlike a
// WebSocket session which may join several rooms across reconnects.
func (r *BotRunner) activeChatID(userID string) string {
	for room := range r.hub.RoomsFor(userID) {
		if id, ok := strings.CutPrefix(room, "chat:"); ok {
			return id
		}
	}
	return ""
}

func (r *BotRunner) sendChatMessage(userID, sessionID, content string) {
	chatID := r.activeChatID(userID)
	if chatID == "" {
		return
	}
	r.dispatch.Dispatch(userID, sessionID, models.Envelope{
		Kind:    models.EvChatMessage,
		Payload: models.ChatMessageIn{ChatID: chatID, Content: content},
	})
}

func (r *BotRunner) endActiveChat(userID, sessionID string) {
	chatID := r.activeChatID(userID)
	if chatID == "" {
		return
	}
	r.dispatch.Dispatch(userID, sessionID, models.Envelope{
		Kind:    models.EvChatEnd,
		Payload: models.ChatEndIn{ChatID: chatID},
	})
}

// relayMedia hands a media message's opaque file reference through as
// chat:message content tagged with its kind, since the router only ever
// treats content as opaque text; the receiving Telegram client recognizes
// the "kind:fileId:caption" shape and calls RelayMedia instead of Send.
func (r *BotRunner) relayMedia(userID, sessionID, kind, fileID, caption string) {
	chatID := r.activeChatID(userID)
	if chatID == "" {
		return
	}
	r.dispatch.Dispatch(userID, sessionID, models.Envelope{
		Kind:    models.EvChatMessage,
		Payload: models.ChatMessageIn{ChatID: chatID, Content: mediaContentTag(kind, fileID, caption)},
	})
}

func mediaContentTag(kind, fileID, caption string) string {
	return "telegram-media:" + kind + ":" + fileID + ":" + caption
}
