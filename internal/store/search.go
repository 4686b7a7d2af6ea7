package store

import (
	"context"
	"errors"
	"time"

	"anonchat/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateSearch persists a new searching record, generating an id if needed,
// and mirrors it into the Redis queue/geo indexes (search:queue, search:geo).
func (s *Service) CreateSearch(ctx context.Context, rec *models.SearchRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := withCtx(ctx, s.DB).Create(rec).Error; err != nil {
		return err
	}
	hasLoc := rec.UseGeolocation && rec.Location != nil
	var lon, lat float64
	if hasLoc {
		lon, lat = rec.Location.Longitude, rec.Location.Latitude
	}
	s.indexSearch(ctx, rec.UserID, lon, lat, hasLoc)
	return nil
}

// CancelSearchIfSearching atomically transitions the user's searching record
// (if any) to cancelled. Idempotent: returns nil, nil if the user has none.
func (s *Service) CancelSearchIfSearching(ctx context.Context, userID string) (*models.SearchRecord, error) {
	var rec models.SearchRecord
	err := withCtx(ctx, s.DB).
		Where("user_id = ? AND status = ?", userID, models.SearchSearching).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := withCtx(ctx, s.DB).Model(&models.SearchRecord{}).
		Where("id = ? AND status = ?", rec.ID, models.SearchSearching).
		Updates(map[string]interface{}{"status": models.SearchCancelled, "updated_at": time.Now()})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Someone else (the matcher) raced us into matched — cancel is then
		// a no-op per spec.md §4.1: "Cancel vs. match" race.
		return s.GetSearchByID(ctx, rec.ID)
	}
	rec.Status = models.SearchCancelled
	s.unindexSearch(ctx, rec.UserID)
	return &rec, nil
}

// GetActiveSearchForUser returns the user's current searching record, if any.
func (s *Service) GetActiveSearchForUser(ctx context.Context, userID string) (*models.SearchRecord, error) {
	var rec models.SearchRecord
	err := withCtx(ctx, s.DB).
		Where("user_id = ? AND status = ?", userID, models.SearchSearching).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetSearchByID loads a record by id, regardless of status.
func (s *Service) GetSearchByID(ctx context.Context, id string) (*models.SearchRecord, error) {
	var rec models.SearchRecord
	err := withCtx(ctx, s.DB).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindCandidates returns every other searching record whose gender lies in
// self's desired set — a deliberately loose Postgres filter; the rest of
// §4.1.1's predicate (age bounds, rating, geofence) is evaluated in-process
// by the Matcher so the scoring/haversine logic stays in one place and is
// unit-testable without a database.
//
// Before querying Postgres, the candidate pool is narrowed by the Redis
// mirror (search:geo when self wants geolocation, search:queue otherwise):
// an O(log n) pre-filter ahead of the authoritative SQL/in-process predicate,
// per SPEC_FULL.md §6's searches index. If the Redis lookup fails or comes
// back empty, FindCandidates falls back to the unfiltered query rather than
// risk dropping real candidates over an index hiccup.
func (s *Service) FindCandidates(ctx context.Context, self *models.SearchRecord) ([]models.SearchRecord, error) {
	desired := models.DesiredSet(self.DesiredGender)
	genders := make([]string, 0, len(desired))
	for g := range desired {
		genders = append(genders, g)
	}
	if len(genders) == 0 {
		return nil, nil
	}

	q := withCtx(ctx, s.DB).
		Where("status = ? AND user_id <> ? AND gender IN ?", models.SearchSearching, self.UserID, genders)

	if ids, ok := s.candidatePoolIDs(ctx, self); ok && len(ids) > 0 {
		q = q.Where("user_id IN ?", ids)
	}

	var rows []models.SearchRecord
	if err := q.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// candidatePoolIDs consults the Redis mirror, preferring a geo pre-filter
// when self carries a location and distance bound.
func (s *Service) candidatePoolIDs(ctx context.Context, self *models.SearchRecord) ([]string, bool) {
	if self.UseGeolocation && self.Location != nil && self.MaxDistanceKm > 0 {
		return s.nearbyUserIDs(ctx, self.Location.Longitude, self.Location.Latitude, self.MaxDistanceKm)
	}
	return s.queuedUserIDs(ctx)
}

// TransitionSearchToMatched performs the CAS half of atomic pair creation:
// it only succeeds if the record is still "searching". The second concurrent
// attempt to match an already-matched record must fail here so the caller
// can roll back (spec.md §5's double-match race hazard).
func (s *Service) TransitionSearchToMatched(ctx context.Context, searchID string, matched models.MatchedWith) (bool, error) {
	var rec models.SearchRecord
	if err := withCtx(ctx, s.DB).Where("id = ?", searchID).First(&rec).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	result := withCtx(ctx, s.DB).Model(&models.SearchRecord{}).
		Where("id = ? AND status = ?", searchID, models.SearchSearching).
		Updates(map[string]interface{}{
			"status":              models.SearchMatched,
			"matched_user_id":     matched.UserID,
			"matched_telegram_id": matched.TelegramID,
			"matched_chat_id":     matched.ChatID,
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	ok := result.RowsAffected == 1
	if ok && rec.UserID != "" {
		s.unindexSearch(ctx, rec.UserID)
	}
	return ok, nil
}

// ResetSearchToSearching rolls back a partially-committed match: the record
// returns to searching with matchedWith cleared, and is re-added to the
// Redis queue/geo indexes since the earlier transition removed it.
func (s *Service) ResetSearchToSearching(ctx context.Context, searchID string) error {
	var rec models.SearchRecord
	if err := withCtx(ctx, s.DB).Where("id = ?", searchID).First(&rec).Error; err != nil {
		return err
	}

	if err := withCtx(ctx, s.DB).Model(&models.SearchRecord{}).
		Where("id = ?", searchID).
		Updates(map[string]interface{}{
			"status":              models.SearchSearching,
			"matched_user_id":     "",
			"matched_telegram_id": "",
			"matched_chat_id":     "",
			"updated_at":          time.Now(),
		}).Error; err != nil {
		return err
	}

	hasLoc := rec.UseGeolocation && rec.Location != nil
	var lon, lat float64
	if hasLoc {
		lon, lat = rec.Location.Longitude, rec.Location.Latitude
	}
	s.indexSearch(ctx, rec.UserID, lon, lat, hasLoc)
	return nil
}

// ExpireStaleSearches transitions every searching record older than
// olderThan to expired, returning the records that were expired so the
// janitor can notify their owners.
func (s *Service) ExpireStaleSearches(ctx context.Context, olderThan time.Time) ([]models.SearchRecord, error) {
	var rows []models.SearchRecord
	if err := withCtx(ctx, s.DB).
		Where("status = ? AND created_at < ?", models.SearchSearching, olderThan).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	if err := withCtx(ctx, s.DB).Model(&models.SearchRecord{}).
		Where("id IN ? AND status = ?", ids, models.SearchSearching).
		Updates(map[string]interface{}{"status": models.SearchExpired, "updated_at": time.Now()}).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		s.unindexSearch(ctx, r.UserID)
	}
	return rows, nil
}
