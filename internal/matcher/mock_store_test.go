package matcher_test

import (
	"context"
	"time"

	"anonchat/internal/models"

	"github.com/stretchr/testify/mock"
)

// mockStore is a comprehensive mock of store.Store, in the teacher's
// MockStorage style (testify/mock with typed arg casts per method).
type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateSearch(ctx context.Context, rec *models.SearchRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) CancelSearchIfSearching(ctx context.Context, userID string) (*models.SearchRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SearchRecord), args.Error(1)
}

func (m *mockStore) GetActiveSearchForUser(ctx context.Context, userID string) (*models.SearchRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SearchRecord), args.Error(1)
}

func (m *mockStore) GetSearchByID(ctx context.Context, id string) (*models.SearchRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SearchRecord), args.Error(1)
}

func (m *mockStore) FindCandidates(ctx context.Context, self *models.SearchRecord) ([]models.SearchRecord, error) {
	args := m.Called(ctx, self)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SearchRecord), args.Error(1)
}

func (m *mockStore) TransitionSearchToMatched(ctx context.Context, searchID string, matched models.MatchedWith) (bool, error) {
	args := m.Called(ctx, searchID, matched)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ResetSearchToSearching(ctx context.Context, searchID string) error {
	args := m.Called(ctx, searchID)
	return args.Error(0)
}

func (m *mockStore) ExpireStaleSearches(ctx context.Context, olderThan time.Time) ([]models.SearchRecord, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SearchRecord), args.Error(1)
}

func (m *mockStore) CreateChat(ctx context.Context, chat *models.ChatRecord) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

func (m *mockStore) DeleteChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *mockStore) GetChatByID(ctx context.Context, chatID string) (*models.ChatRecord, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRecord), args.Error(1)
}

func (m *mockStore) GetActiveChatIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) EndChat(ctx context.Context, chatID, endedBy, reason string) error {
	args := m.Called(ctx, chatID, endedBy, reason)
	return args.Error(0)
}

func (m *mockStore) ExpireChats(ctx context.Context, now time.Time) ([]models.ChatRecord, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatRecord), args.Error(1)
}

func (m *mockStore) AppendMessage(ctx context.Context, msg *models.ChatMessageRow) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockStore) MarkMessagesRead(ctx context.Context, chatID, readerID string, upTo time.Time) error {
	args := m.Called(ctx, chatID, readerID, upTo)
	return args.Error(0)
}

func (m *mockStore) SetLastMessage(ctx context.Context, chatID, content string) error {
	args := m.Called(ctx, chatID, content)
	return args.Error(0)
}

func (m *mockStore) PruneMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) HasRated(ctx context.Context, raterID, chatID string) (bool, error) {
	args := m.Called(ctx, raterID, chatID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CreateRating(ctx context.Context, r *models.Rating) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockStore) AvgRatingForUser(ctx context.Context, userID string) (float64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockStore) CreateReport(ctx context.Context, r *models.Report) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockStore) CountReportsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) CountSearchingByGender(ctx context.Context) (models.GenderCounts, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.GenderCounts), args.Error(1)
}

func (m *mockStore) CountOnlineByGender(ctx context.Context, activeSince time.Time) (models.GenderCounts, error) {
	args := m.Called(ctx, activeSince)
	return args.Get(0).(models.GenderCounts), args.Error(1)
}

func (m *mockStore) AvgSearchTimeStats(ctx context.Context, since time.Time) (models.AvgSearchTime, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(models.AvgSearchTime), args.Error(1)
}

func (m *mockStore) PublishToRoom(ctx context.Context, room string, payload []byte) error {
	args := m.Called(ctx, room, payload)
	return args.Error(0)
}

func (m *mockStore) SubscribeRoom(ctx context.Context, room string) (<-chan []byte, func() error) {
	args := m.Called(ctx, room)
	return args.Get(0).(<-chan []byte), args.Get(1).(func() error)
}

// mockNotifier records match/expiry notifications without any transport.
type mockNotifier struct {
	mock.Mock
}

func (n *mockNotifier) NotifyMatched(ctx context.Context, userID string, out models.SearchMatchedOut) error {
	args := n.Called(ctx, userID, out)
	return args.Error(0)
}

func (n *mockNotifier) NotifyExpired(ctx context.Context, userID string) error {
	args := n.Called(ctx, userID)
	return args.Error(0)
}

// mockStats records incremental delta calls.
type mockStats struct {
	mock.Mock
}

func (s *mockStats) ApplyDelta(action string, gender string) {
	s.Called(action, gender)
}
