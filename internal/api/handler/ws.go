package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"anonchat/internal/apperr"
	"anonchat/internal/auth"
	"anonchat/internal/models"
	wstransport "anonchat/internal/transport/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the HTTP connection, verifies the bearer token,
// registers the session with the ConnectionHub and starts the client pump.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	handshakeToken := c.Query("token")
	tokenString := auth.ExtractToken(handshakeToken, c.Request)

	userID, reconnecting, err := h.Verifier.Verify(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth_error"})
		return
	}

	if blocked, err := h.checkBlocked(c.Request.Context(), userID); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	} else if blocked {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "blocked"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := wstransport.New(userID, conn, h, h.MaxMessageBytes, h.HeartbeatInterval, h.HeartbeatTimeout, h.Log)
	sessionID, _ := h.Hub.Connect(c.Request.Context(), userID, client, reconnecting)
	client.SetSessionID(sessionID)
	client.OnClose(func() { h.Hub.Disconnect(userID, sessionID) })
	client.Run()
}

func (h *Handler) checkBlocked(ctx context.Context, userID string) (bool, error) {
	if h.Directory == nil {
		return false, nil
	}
	return h.Directory.IsBlocked(ctx, userID, time.Now())
}

// Dispatch implements wstransport.Dispatcher, routing a decoded envelope to
// the matcher/chatrouter/stats collaborator that owns its event kind.
func (h *Handler) Dispatch(userID, sessionID string, env models.Envelope) {
	ctx := context.Background()
	raw, _ := json.Marshal(env.Payload)

	switch env.Kind {
	case models.EvConnectionAck:
		return

	case models.EvSearchStart:
		var in models.SearchStartIn
		json.Unmarshal(raw, &in)
		h.handleSearchStart(ctx, userID, in)

	case models.EvSearchCancel:
		h.handleSearchCancel(ctx, userID)

	case models.EvSearchSubscribeStat:
		h.Hub.JoinRoom(userID, sessionID, "search_stats_room")
		rec, _ := h.Matcher.Store.GetActiveSearchForUser(ctx, userID)
		gender := ""
		if rec != nil {
			gender = rec.Gender
		}
		snap := h.Stats.SubscribeSnapshot(ctx, gender, rec != nil)
		h.Hub.SendToUser(userID, models.Envelope{Kind: models.EvSearchStats, Payload: snap})

	case models.EvSearchUnsubStats:
		h.Hub.LeaveRoom(userID, sessionID, "search_stats_room")

	case models.EvChatJoin:
		var in models.ChatJoinIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.Join(ctx, userID, sessionID, in))

	case models.EvChatLeave:
		var in models.ChatLeaveIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.Leave(ctx, userID, sessionID, in))

	case models.EvChatMessage:
		var in models.ChatMessageIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.Message(ctx, userID, sessionID, in))

	case models.EvChatTyping:
		var in models.ChatTypingIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.Typing(ctx, userID, sessionID, in))

	case models.EvChatRead:
		var in models.ChatReadIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.Read(ctx, userID, sessionID, in))

	case models.EvChatEnd:
		var in models.ChatEndIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.End(ctx, userID, sessionID, in))

	case models.EvChatRate:
		var in models.ChatRateIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.Rate(ctx, userID, in))

	case models.EvChatReport:
		var in models.ChatReportIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.Report(ctx, userID, in))

	case models.EvContactRequest:
		var in models.ContactRequestIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.ContactRequest(ctx, userID, in))

	case models.EvContactRespond:
		var in models.ContactRespondIn
		json.Unmarshal(raw, &in)
		h.reportErr(userID, h.Chat.ContactRespond(ctx, userID, in))

	default:
		h.Hub.SendToUser(userID, models.Envelope{Kind: models.EvError, Payload: models.ErrorOut{Message: "unknown event"}})
	}
}

func (h *Handler) handleSearchStart(ctx context.Context, userID string, in models.SearchStartIn) {
	user, err := h.Directory.GetByID(ctx, userID)
	if err != nil || user == nil {
		h.reportErr(userID, err)
		return
	}
	if !user.IsActive {
		h.reportErr(userID, apperr.Precondition("user is not active"))
		return
	}
	result, err := h.Matcher.StartSearch(ctx, userID, user.TelegramID, in.Criteria)
	if err != nil {
		h.reportErr(userID, err)
		return
	}
	h.Hub.SendToUser(userID, models.Envelope{Kind: models.EvSearchStatus, Payload: models.SearchStatusOut{Status: string(result.Status)}})
}

func (h *Handler) handleSearchCancel(ctx context.Context, userID string) {
	if _, err := h.Matcher.CancelSearch(ctx, userID); err != nil {
		h.reportErr(userID, err)
	}
}

func (h *Handler) reportErr(userID string, err error) {
	if err == nil {
		return
	}
	if h.Log != nil {
		h.Log.Debug("handler: dispatch error", zap.String("userId", userID), zap.Error(err))
	}
	h.Hub.SendToUser(userID, models.Envelope{Kind: models.EvError, Payload: models.ErrorOut{Message: apperr.WireMessage(err)}})
}
