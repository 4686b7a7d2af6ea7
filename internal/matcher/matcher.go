// Package matcher implements compatibility evaluation, ranked candidate
// selection, atomic pair creation and expiry — generalized from
// chathub.MatcherService's queue-and-scan loop into a request/response
// service the same shape as storage's Search* methods drive directly.
package matcher

import (
	"context"
	"time"

	"anonchat/internal/apperr"
	"anonchat/internal/breaker"
	"anonchat/internal/geo"
	"anonchat/internal/models"
	"anonchat/internal/store"

	"go.uber.org/zap"
)

// Notifier delivers match/expiry events to a user's live sessions.
// ConnectionHub implements this; Matcher never knows about transports.
type Notifier interface {
	NotifyMatched(ctx context.Context, userID string, out models.SearchMatchedOut) error
	NotifyExpired(ctx context.Context, userID string) error
}

// StatsNotifier receives the incremental deltas §4.3 describes.
type StatsNotifier interface {
	ApplyDelta(action string, gender string)
}

// BlockChecker is the narrow view of directory.Directory the Matcher needs
// to enforce SPEC_FULL.md §4.1's reputation gate on startSearch. Left unset
// (nil), StartSearch skips the check — exercised by matcher_test.go's mocks,
// which predate this field and don't provide one.
type BlockChecker interface {
	IsBlocked(ctx context.Context, userID string, now time.Time) (bool, error)
}

// Service is the Matcher. All exported methods are safe for concurrent use;
// the atomicity of pair creation comes from Store's CAS operations, not
// from locking here.
type Service struct {
	Store   store.Store
	Notify  Notifier
	Stats   StatsNotifier
	Blocked BlockChecker
	Breaker *breaker.CircuitBreaker
	Log     *zap.Logger
}

func New(st store.Store, notify Notifier, stats StatsNotifier, log *zap.Logger) *Service {
	return &Service{
		Store:   st,
		Notify:  notify,
		Stats:   stats,
		Breaker: breaker.New(breaker.MatcherDefaults()),
		Log:     log,
	}
}

// SearchResult is the return value of StartSearch, §4.1's SearchResult.
type SearchResult struct {
	Status      models.SearchStatus
	MatchedWith *models.MatchedWith
	SearchID    string
}

// StartSearch implements §4.1's startSearch procedure.
func (m *Service) StartSearch(ctx context.Context, userID, telegramID string, criteria models.SearchCriteria) (SearchResult, error) {
	if err := validateCriteria(criteria); err != nil {
		return SearchResult{}, err
	}

	if m.Blocked != nil {
		blocked, err := m.Blocked.IsBlocked(ctx, userID, time.Now())
		if err != nil {
			return SearchResult{}, wrapStoreErr(err)
		}
		if blocked {
			return SearchResult{}, apperr.Precondition("user is blocked")
		}
	}

	// Step 1: cancel any existing searching record for this user.
	if err := m.storeCall(func() error {
		_, err := m.Store.CancelSearchIfSearching(ctx, userID)
		return err
	}); err != nil {
		return SearchResult{}, wrapStoreErr(err)
	}

	rec := criteriaToRecord(userID, telegramID, criteria)
	if err := m.storeCall(func() error { return m.Store.CreateSearch(ctx, rec) }); err != nil {
		return SearchResult{}, wrapStoreErr(err)
	}
	if m.Stats != nil {
		m.Stats.ApplyDelta("start", rec.Gender)
	}

	best, err := m.selectBestCandidate(ctx, rec)
	if err != nil {
		return SearchResult{}, err
	}
	if best == nil {
		return SearchResult{Status: models.SearchSearching, SearchID: rec.ID}, nil
	}

	matched, err := m.createPair(ctx, rec, best)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Status: models.SearchMatched, MatchedWith: matched, SearchID: rec.ID}, nil
}

// selectBestCandidate implements §4.1.1's predicate and §4.1.2's scoring.
func (m *Service) selectBestCandidate(ctx context.Context, self *models.SearchRecord) (*models.SearchRecord, error) {
	var loose []models.SearchRecord
	if err := m.storeCall(func() error {
		rows, err := m.Store.FindCandidates(ctx, self)
		loose = rows
		return err
	}); err != nil {
		return nil, wrapStoreErr(err)
	}

	var best *models.SearchRecord
	var bestScore float64 = -1
	for i := range loose {
		cand := loose[i]
		if !candidateMatches(self, &cand) {
			continue
		}
		score := candidateScore(self, &cand)
		if score > bestScore || (score == bestScore && best != nil && cand.CreatedAt.Before(best.CreatedAt)) {
			bestScore = score
			best = &cand
		}
	}
	return best, nil
}

// candidateMatches implements §4.1.1 precisely; Store.FindCandidates only
// applies the cheap status+gender half of this filter.
func candidateMatches(s, p *models.SearchRecord) bool {
	if p.Status != models.SearchSearching || p.UserID == s.UserID {
		return false
	}
	if !models.DesiredSet(s.DesiredGender)[p.Gender] {
		return false
	}
	if !models.DesiredSet(p.DesiredGender)[s.Gender] {
		return false
	}
	if p.Age < s.DesiredAgeMin || p.Age > s.DesiredAgeMax {
		return false
	}
	if s.Age < p.DesiredAgeMin || s.Age > p.DesiredAgeMax {
		return false
	}
	if s.MinAcceptableRating > -1 && p.Rating < s.MinAcceptableRating {
		return false
	}
	if s.UseGeolocation {
		if !p.UseGeolocation || s.Location == nil || p.Location == nil {
			return false
		}
		d := geo.DistanceKm(s.Location.Latitude, s.Location.Longitude, p.Location.Latitude, p.Location.Longitude)
		if d > s.MaxDistanceKm {
			return false
		}
	}
	return true
}

// candidateScore implements §4.1.2's weighted sum, total in [0,100].
func candidateScore(s, p *models.SearchRecord) float64 {
	ratingProximity := max0(40 - 2*absF(s.Rating-p.Rating))
	ageProximity := max0(30 - 2*absF(float64(s.Age-p.Age)))
	var geoProximity float64
	if s.UseGeolocation && p.UseGeolocation && s.Location != nil && p.Location != nil {
		d := geo.DistanceKm(s.Location.Latitude, s.Location.Longitude, p.Location.Latitude, p.Location.Longitude)
		geoProximity = max0(30 - d)
	}
	return ratingProximity + ageProximity + geoProximity
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// createPair implements §4.1.3's atomic pair creation with rollback.
func (m *Service) createPair(ctx context.Context, self, other *models.SearchRecord) (*models.MatchedWith, error) {
	chat := &models.ChatRecord{
		User1ID: self.UserID,
		User2ID: other.UserID,
		Type:    "anonymous",
	}
	expires := time.Now().Add(24 * time.Hour)
	chat.ExpiresAt = &expires

	if err := m.storeCall(func() error { return m.Store.CreateChat(ctx, chat) }); err != nil {
		return nil, wrapStoreErr(err)
	}

	selfOk, err := m.transitionOne(ctx, self.ID, models.MatchedWith{UserID: other.UserID, TelegramID: other.TelegramID, ChatID: chat.ID})
	if err != nil || !selfOk {
		m.rollback(ctx, chat.ID, nil)
		if err != nil {
			return nil, wrapStoreErr(err)
		}
		return nil, apperr.Precondition("search already matched")
	}

	otherOk, err := m.transitionOne(ctx, other.ID, models.MatchedWith{UserID: self.UserID, TelegramID: self.TelegramID, ChatID: chat.ID})
	if err != nil || !otherOk {
		m.rollback(ctx, chat.ID, []string{self.ID})
		if err != nil {
			return nil, wrapStoreErr(err)
		}
		return nil, apperr.Precondition("candidate already matched")
	}

	if m.Stats != nil {
		m.Stats.ApplyDelta("match", self.Gender)
	}

	matchedSelf := models.MatchedWith{UserID: other.UserID, TelegramID: other.TelegramID, ChatID: chat.ID}
	matchedOther := models.MatchedWith{UserID: self.UserID, TelegramID: self.TelegramID, ChatID: chat.ID}

	if m.Notify != nil {
		_ = m.Notify.NotifyMatched(ctx, self.UserID, models.SearchMatchedOut{
			MatchedUser: models.MatchedUserOut{TelegramID: other.TelegramID, Gender: other.Gender, Age: other.Age, ChatID: chat.ID},
		})
		_ = m.Notify.NotifyMatched(ctx, other.UserID, models.SearchMatchedOut{
			MatchedUser: models.MatchedUserOut{TelegramID: self.TelegramID, Gender: self.Gender, Age: self.Age, ChatID: chat.ID},
		})
	}

	_ = matchedOther
	return &matchedSelf, nil
}

func (m *Service) transitionOne(ctx context.Context, searchID string, with models.MatchedWith) (bool, error) {
	var ok bool
	err := m.storeCall(func() error {
		var callErr error
		ok, callErr = m.Store.TransitionSearchToMatched(ctx, searchID, with)
		return callErr
	})
	return ok, err
}

// rollback undoes a partially-committed pair: delete the chat and reset any
// search that did transition back to searching, per §4.1.3.
func (m *Service) rollback(ctx context.Context, chatID string, toReset []string) {
	if err := m.Store.DeleteChat(ctx, chatID); err != nil && m.Log != nil {
		m.Log.Error("rollback: failed to delete chat", zap.String("chatId", chatID), zap.Error(err))
	}
	for _, id := range toReset {
		if err := m.Store.ResetSearchToSearching(ctx, id); err != nil && m.Log != nil {
			m.Log.Error("rollback: failed to reset search", zap.String("searchId", id), zap.Error(err))
		}
	}
}

// CancelSearch implements §4.1's cancelSearch: idempotent, no-op if the
// record is already matched (the double-match race's losing side observes
// this via Store.CancelSearchIfSearching's own race handling).
func (m *Service) CancelSearch(ctx context.Context, userID string) (*models.SearchRecord, error) {
	var rec *models.SearchRecord
	if err := m.storeCall(func() error {
		r, err := m.Store.CancelSearchIfSearching(ctx, userID)
		rec = r
		return err
	}); err != nil {
		return nil, wrapStoreErr(err)
	}
	if rec != nil && m.Stats != nil && rec.Status == models.SearchCancelled {
		m.Stats.ApplyDelta("cancel", rec.Gender)
	}
	return rec, nil
}

// ExpireStale implements JanitorLoop's 30-minute search expiry hook.
func (m *Service) ExpireStale(ctx context.Context, olderThan time.Time) (int, error) {
	var expired []models.SearchRecord
	if err := m.storeCall(func() error {
		rows, err := m.Store.ExpireStaleSearches(ctx, olderThan)
		expired = rows
		return err
	}); err != nil {
		return 0, wrapStoreErr(err)
	}
	for _, rec := range expired {
		if m.Stats != nil {
			m.Stats.ApplyDelta("cancel", rec.Gender)
		}
		if m.Notify != nil {
			_ = m.Notify.NotifyExpired(ctx, rec.UserID)
		}
	}
	return len(expired), nil
}

func (m *Service) storeCall(fn func() error) error {
	return m.Breaker.Do(fn, apperr.CountsAgainstBreaker, nil)
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.TransientStore("matcher store call failed", err)
}

func validateCriteria(c models.SearchCriteria) error {
	if c.Gender != "male" && c.Gender != "female" {
		return apperr.Validation("gender must be male or female")
	}
	if c.Age < 18 || c.Age > 100 {
		return apperr.Validation("age must be in [18,100]")
	}
	if len(c.DesiredGender) == 0 {
		return apperr.Validation("desiredGender must be non-empty")
	}
	if c.DesiredAgeMin < 18 || c.DesiredAgeMax > 100 || c.DesiredAgeMin > c.DesiredAgeMax {
		return apperr.Validation("desiredAgeMin/Max out of range")
	}
	if c.UseGeolocation && c.Location == nil {
		return apperr.Validation("location required when useGeolocation is set")
	}
	if c.MaxDistanceKm != 0 && (c.MaxDistanceKm < 1 || c.MaxDistanceKm > 100) {
		return apperr.Validation("maxDistanceKm must be in [1,100]")
	}
	return nil
}

func criteriaToRecord(userID, telegramID string, c models.SearchCriteria) *models.SearchRecord {
	maxDist := c.MaxDistanceKm
	if c.UseGeolocation && maxDist == 0 {
		maxDist = 10
	}
	minRating := c.MinAcceptableRating
	if minRating == 0 {
		minRating = -1
	}
	return &models.SearchRecord{
		UserID:              userID,
		TelegramID:          telegramID,
		Status:              models.SearchSearching,
		Gender:              c.Gender,
		Age:                 c.Age,
		Rating:              c.Rating,
		DesiredGender:       c.DesiredGender,
		DesiredAgeMin:       c.DesiredAgeMin,
		DesiredAgeMax:       c.DesiredAgeMax,
		MinAcceptableRating: minRating,
		UseGeolocation:      c.UseGeolocation,
		Location:            c.Location,
		MaxDistanceKm:       maxDist,
	}
}
