// Package telegram adapts tg_client.go's writePump into the presence.Client
// interface, translating the Envelope/EventKind wire protocol into
// tgbotapi messages instead of the teacher's one-type ChatMessage switch.
// Media relay (photo/voice/video) carries the file reference straight
// through as an opaque FileID per SPEC_FULL.md's chat:message extension.
package telegram

import (
	"fmt"
	"strings"

	"anonchat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Client implements presence.Client over a Telegram chat. userID is the
// directory's internal user id; chatID is the Telegram chat id the bot
// actually sends to — the two are resolved once at session creation via
// Directory.GetOrCreate and never conflated past that point.
type Client struct {
	userID string
	chatID int64
	bot    *tgbotapi.BotAPI
	send   chan models.Envelope
	log    *zap.Logger
}

func New(userID string, chatID int64, bot *tgbotapi.BotAPI, log *zap.Logger) *Client {
	return &Client{
		userID: userID,
		chatID: chatID,
		bot:    bot,
		send:   make(chan models.Envelope, 64),
		log:    log,
	}
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) Send(env models.Envelope) error {
	select {
	case c.send <- env:
		return nil
	default:
		c.Close()
		return fmt.Errorf("telegram: client %s send buffer full", c.userID)
	}
}

func (c *Client) Close() {
	defer func() { recover() }()
	close(c.send)
}

// Run starts the write pump; read-side updates arrive centrally through
// the bot's update loop and are routed to a Dispatcher, mirroring the
// teacher's comment that "the read pump is handled centrally".
func (c *Client) Run() {
	go c.writePump()
}

func (c *Client) writePump() {
	for env := range c.send {
		msg := c.render(env)
		if msg == nil {
			continue
		}
		if _, err := c.bot.Send(msg); err != nil && c.log != nil {
			c.log.Warn("telegram: send failed", zap.String("userId", c.userID), zap.Error(err))
		}
	}
}

func (c *Client) render(env models.Envelope) tgbotapi.Chattable {
	switch env.Kind {
	case models.EvSearchStatus:
		return c.text("Still searching for a partner...")
	case models.EvSearchMatched:
		return c.text("A match was found. You can start chatting now.")
	case models.EvSearchExpired:
		return c.text("Search expired. Send /search to try again.")
	case models.EvChatMessageOut:
		out, ok := env.Payload.(models.ChatMessageOut)
		if !ok {
			return nil
		}
		if kind, fileID, caption, ok := parseMediaContentTag(out.Content); ok {
			if err := c.RelayMedia(kind, fileID, caption); err != nil && c.log != nil {
				c.log.Warn("telegram: media relay failed", zap.String("userId", c.userID), zap.Error(err))
			}
			return nil
		}
		return c.text(out.Content)
	case models.EvChatEnded:
		return c.text("Chat ended. Send /search to find someone new.")
	case models.EvChatRated:
		return c.text("You received a new rating.")
	case models.EvError:
		out, ok := env.Payload.(models.ErrorOut)
		if !ok {
			return c.text("Something went wrong.")
		}
		return c.text(out.Message)
	default:
		return nil
	}
}

func (c *Client) text(body string) tgbotapi.Chattable {
	return tgbotapi.NewMessage(c.chatID, body)
}

// RelayMedia forwards an opaque file reference (photo/voice/video) from one
// Telegram chat to another, reusing the FileID rather than round-tripping
// the file through the server per spec.md's media-message Non-goal on
// payload transcoding.
func (c *Client) RelayMedia(kind string, fileID string, caption string) error {
	var msg tgbotapi.Chattable
	switch kind {
	case "photo":
		m := tgbotapi.NewPhoto(c.chatID, tgbotapi.FileID(fileID))
		m.Caption = caption
		msg = m
	case "voice":
		msg = tgbotapi.NewVoice(c.chatID, tgbotapi.FileID(fileID))
	case "video":
		m := tgbotapi.NewVideo(c.chatID, tgbotapi.FileID(fileID))
		m.Caption = caption
		msg = m
	default:
		return fmt.Errorf("telegram: unsupported media kind %q", kind)
	}
	_, err := c.bot.Send(msg)
	return err
}

// parseMediaContentTag recognizes the "telegram-media:kind:fileId:caption"
// shape BotRunner.relayMedia tags chat:message content with, so the
// receiving side knows to relay a file reference rather than send text.
func parseMediaContentTag(content string) (kind, fileID, caption string, ok bool) {
	rest, found := strings.CutPrefix(content, "telegram-media:")
	if !found {
		return "", "", "", false
	}
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 {
		return "", "", "", false
	}
	caption = ""
	if len(parts) == 3 {
		caption = parts[2]
	}
	return parts[0], parts[1], caption, true
}
