package models

import "time"

// Rating is one participant's score of the other at the end of a chat.
// (raterUserId, chatId) is unique: a user may rate a given chat only once.
type Rating struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RatedUserID  string    `gorm:"index" json:"ratedUserId"`
	RaterUserID  string    `gorm:"uniqueIndex:idx_rating_rater_chat" json:"raterUserId"`
	ChatID       string    `gorm:"uniqueIndex:idx_rating_rater_chat" json:"chatId"`
	Score        int       `json:"score"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Report is a user-filed complaint about a chat partner, scoped to one chat.
type Report struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ReporterID string    `gorm:"index" json:"reporterId"`
	ReportedID string    `gorm:"index" json:"reportedId"`
	ChatID     string    `json:"chatId"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}
