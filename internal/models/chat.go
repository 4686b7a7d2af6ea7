package models

import "time"

// ChatRecord is a two-party, ephemeral chat session created atomically with
// a match. All chats in this core are strictly two-party (no group chat).
type ChatRecord struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	User1ID      string    `gorm:"index:idx_chat_participants" json:"user1Id"`
	User2ID      string    `gorm:"index:idx_chat_participants" json:"user2Id"`
	Type         string    `json:"type"` // "anonymous" or "permanent"
	IsActive     bool      `json:"isActive"`
	ExpiresAt    *time.Time `gorm:"index" json:"expiresAt,omitempty"`
	LastMessage  string    `json:"lastMessage"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	EndedBy      string    `json:"endedBy,omitempty"`
	EndReason    string    `json:"endReason,omitempty"`
}

// Participants returns the two participant ids.
func (c *ChatRecord) Participants() [2]string {
	return [2]string{c.User1ID, c.User2ID}
}

// HasParticipant reports whether userID is one of the two participants.
func (c *ChatRecord) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *ChatRecord) OtherParticipant(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ChatMessageRow is one append-only message persisted for a chat. Messages
// are ordered by CreatedAt; concurrent sends in the same millisecond are
// tie-broken by the row's own insertion order (auto-increment ID).
type ChatMessageRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    string    `gorm:"index:idx_msg_chat" json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `gorm:"index:idx_msg_chat" json:"timestamp"`
	IsRead    bool      `json:"isRead"`
}
