package store

import (
	"context"
	"errors"
	"time"

	"anonchat/internal/models"

	"gorm.io/gorm"
)

// HasRated reports whether raterID has already rated chatID.
func (s *Service) HasRated(ctx context.Context, raterID, chatID string) (bool, error) {
	var count int64
	err := withCtx(ctx, s.DB).Model(&models.Rating{}).
		Where("rater_user_id = ? AND chat_id = ?", raterID, chatID).
		Count(&count).Error
	return count > 0, err
}

// CreateRating inserts a rating. The unique index on (raterUserId, chatId)
// is the durable enforcement of the one-rating-per-rater-per-chat invariant.
func (s *Service) CreateRating(ctx context.Context, r *models.Rating) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return withCtx(ctx, s.DB).Create(r).Error
}

// AvgRatingForUser computes the arithmetic mean of every rating the user
// has received, or 0 if they have none yet.
func (s *Service) AvgRatingForUser(ctx context.Context, userID string) (float64, error) {
	var avg float64
	row := withCtx(ctx, s.DB).Model(&models.Rating{}).
		Select("COALESCE(AVG(score), 0)").
		Where("rated_user_id = ?", userID).
		Row()
	if err := row.Scan(&avg); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	return avg, nil
}

// CreateReport inserts a report.
func (s *Service) CreateReport(ctx context.Context, r *models.Report) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return withCtx(ctx, s.DB).Create(r).Error
}

// CountReportsSince counts reports filed against userID since the given
// time, used by the reputation frequency-ban check.
func (s *Service) CountReportsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int64
	err := withCtx(ctx, s.DB).Model(&models.Report{}).
		Where("reported_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return int(count), err
}
