// Package store is the matchmaker's persistence collaborator: durable
// search/chat/rating/report records plus the geospatial and queue indexes
// the Matcher and StatsBroadcaster need. Grounded on the teacher's
// storage.Service (Postgres via GORM + Redis for pub/sub and queueing).
package store

import (
	"context"
	"time"

	"anonchat/internal/models"
)

// Store is the persistence collaborator the core consumes. It is the
// interface Matcher and ChatRouter guard with a CircuitBreaker.
type Store interface {
	// Search
	CreateSearch(ctx context.Context, rec *models.SearchRecord) error
	CancelSearchIfSearching(ctx context.Context, userID string) (*models.SearchRecord, error)
	GetActiveSearchForUser(ctx context.Context, userID string) (*models.SearchRecord, error)
	GetSearchByID(ctx context.Context, id string) (*models.SearchRecord, error)
	FindCandidates(ctx context.Context, self *models.SearchRecord) ([]models.SearchRecord, error)
	TransitionSearchToMatched(ctx context.Context, searchID string, matched models.MatchedWith) (bool, error)
	ResetSearchToSearching(ctx context.Context, searchID string) error
	ExpireStaleSearches(ctx context.Context, olderThan time.Time) ([]models.SearchRecord, error)

	// Chat
	CreateChat(ctx context.Context, chat *models.ChatRecord) error
	DeleteChat(ctx context.Context, chatID string) error
	GetChatByID(ctx context.Context, chatID string) (*models.ChatRecord, error)
	GetActiveChatIDs(ctx context.Context) ([]string, error)
	EndChat(ctx context.Context, chatID, endedBy, reason string) error
	ExpireChats(ctx context.Context, now time.Time) ([]models.ChatRecord, error)
	AppendMessage(ctx context.Context, msg *models.ChatMessageRow) error
	MarkMessagesRead(ctx context.Context, chatID, readerID string, upTo time.Time) error
	SetLastMessage(ctx context.Context, chatID, content string) error
	PruneMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Rating / Report
	HasRated(ctx context.Context, raterID, chatID string) (bool, error)
	CreateRating(ctx context.Context, r *models.Rating) error
	AvgRatingForUser(ctx context.Context, userID string) (float64, error)
	CreateReport(ctx context.Context, r *models.Report) error
	CountReportsSince(ctx context.Context, userID string, since time.Time) (int, error)

	// Stats aggregation
	CountSearchingByGender(ctx context.Context) (models.GenderCounts, error)
	CountOnlineByGender(ctx context.Context, activeSince time.Time) (models.GenderCounts, error)
	AvgSearchTimeStats(ctx context.Context, since time.Time) (models.AvgSearchTime, error)

	// Cross-process fan-out
	PublishToRoom(ctx context.Context, room string, payload []byte) error
	SubscribeRoom(ctx context.Context, room string) (<-chan []byte, func() error)
}
