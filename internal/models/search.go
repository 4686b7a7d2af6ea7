package models

import (
	"time"

	"github.com/lib/pq"
)

// SearchStatus is the lifecycle state of a SearchRecord.
type SearchStatus string

const (
	SearchSearching SearchStatus = "searching"
	SearchMatched   SearchStatus = "matched"
	SearchCancelled SearchStatus = "cancelled"
	SearchExpired   SearchStatus = "expired"
)

// Point is a longitude/latitude pair.
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// MatchedWith records the partner side of a completed match.
type MatchedWith struct {
	UserID     string `json:"userId"`
	TelegramID string `json:"telegramId"`
	ChatID     string `json:"chatId"`
}

// SearchRecord is one user's declared intent to be paired. At most one
// record per user may be in SearchSearching at a time; once terminal the
// record is immutable.
type SearchRecord struct {
	ID         string       `gorm:"primaryKey" json:"id"`
	UserID     string       `gorm:"index:idx_search_user_status" json:"userId"`
	TelegramID string       `json:"telegramId"`
	Status     SearchStatus `gorm:"index:idx_search_user_status;index:idx_search_status_gender" json:"status"`

	Gender string `gorm:"index:idx_search_status_gender" json:"gender"`
	Age    int    `json:"age"`
	Rating float64 `json:"rating"`

	DesiredGender       pq.StringArray `gorm:"type:text[]" json:"desiredGender"`
	DesiredAgeMin        int            `json:"desiredAgeMin"`
	DesiredAgeMax        int            `json:"desiredAgeMax"`
	MinAcceptableRating  float64        `json:"minAcceptableRating"`

	UseGeolocation bool     `json:"useGeolocation"`
	Location       *Point   `gorm:"embedded;embeddedPrefix:loc_" json:"location,omitempty"`
	MaxDistanceKm  float64  `json:"maxDistanceKm"`

	MatchedUserID     string `json:"-"`
	MatchedTelegramID string `json:"-"`
	MatchedChatID     string `gorm:"index" json:"-"`

	CreatedAt time.Time `gorm:"index:idx_search_created_at" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetMatchedWith returns the populated partner reference, or nil if unmatched.
func (s *SearchRecord) GetMatchedWith() *MatchedWith {
	if s.Status != SearchMatched || s.MatchedChatID == "" {
		return nil
	}
	return &MatchedWith{
		UserID:     s.MatchedUserID,
		TelegramID: s.MatchedTelegramID,
		ChatID:     s.MatchedChatID,
	}
}

// DesiredSet resolves §4.1.1's desiredSet(S): "any" is universal and wins
// over any co-present specific genders (Open Question #1, decided).
func DesiredSet(desired []string) map[string]bool {
	set := map[string]bool{}
	for _, g := range desired {
		if g == "any" {
			return map[string]bool{"male": true, "female": true}
		}
		if g == "male" || g == "female" {
			set[g] = true
		}
	}
	return set
}
