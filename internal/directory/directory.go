// Package directory manages the durable user registry: identity lookup,
// presence-affecting fields (isActive, lastActive) and the reputation
// counters other packages read. It generalizes storage.Service's
// SaveUser/SaveUserIfNotExists into a narrow read-through interface.
package directory

import (
	"context"
	"time"

	"anonchat/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Directory is the user registry every other package depends on.
type Directory interface {
	// GetOrCreate returns the user for telegramID, creating one with
	// default fields if none exists yet (grounded on SaveUserIfNotExists).
	GetOrCreate(ctx context.Context, telegramID string) (*models.User, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error

	// Touch refreshes lastActive and sets isActive true; presence calls it
	// on connect and then every 10s for the life of each session.
	Touch(ctx context.Context, userID string, at time.Time) error
	// MarkOffline clears isActive, called by presence as soon as the last
	// session for a user disconnects, before the reconnection grace period.
	MarkOffline(ctx context.Context, userID string, at time.Time) error

	// ReputationScore reads back the cached score; AdjustReputation applies
	// a signed delta and returns the resulting score, clamped by the
	// reputation package's configured bounds.
	ReputationScore(ctx context.Context, userID string) (int, error)
	AdjustReputation(ctx context.Context, userID string, delta, min, max int) (int, error)
	SetBlock(ctx context.Context, userID string, blocked bool, until time.Time, level int) error
	IsBlocked(ctx context.Context, userID string, now time.Time) (bool, error)
}

type gormDirectory struct {
	db *gorm.DB
}

// New builds a GORM-backed Directory, grounded on storage.Service's
// plain *gorm.DB-driven methods.
func New(db *gorm.DB) Directory {
	return &gormDirectory{db: db}
}

func (d *gormDirectory) GetOrCreate(ctx context.Context, telegramID string) (*models.User, error) {
	var u models.User
	err := d.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	u = models.User{
		ID:         uuid.New().String(),
		TelegramID: telegramID,
		IsActive:   true,
		LastActive: time.Now(),
		Rating:     0,
	}
	if createErr := d.db.WithContext(ctx).Create(&u).Error; createErr != nil {
		return nil, createErr
	}
	return &u, nil
}

func (d *gormDirectory) GetByID(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := d.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *gormDirectory) Update(ctx context.Context, user *models.User) error {
	return d.db.WithContext(ctx).Save(user).Error
}

func (d *gormDirectory) Touch(ctx context.Context, userID string, at time.Time) error {
	return d.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_active": true, "last_active": at}).Error
}

func (d *gormDirectory) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	return d.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_active": false, "last_active": at}).Error
}

func (d *gormDirectory) ReputationScore(ctx context.Context, userID string) (int, error) {
	var score int
	row := d.db.WithContext(ctx).Model(&models.User{}).Select("reputation_score").Where("id = ?", userID).Row()
	if err := row.Scan(&score); err != nil {
		return 0, err
	}
	return score, nil
}

// AdjustReputation applies delta atomically via a single UPDATE so two
// concurrent reports can't lose an update to a read-modify-write race, then
// clamps the stored value into [min, max].
func (d *gormDirectory) AdjustReputation(ctx context.Context, userID string, delta, min, max int) (int, error) {
	err := d.db.WithContext(ctx).Exec(
		`UPDATE users SET reputation_score = LEAST(?, GREATEST(?, reputation_score + ?)) WHERE id = ?`,
		max, min, delta, userID,
	).Error
	if err != nil {
		return 0, err
	}
	return d.ReputationScore(ctx, userID)
}

func (d *gormDirectory) SetBlock(ctx context.Context, userID string, blocked bool, until time.Time, level int) error {
	return d.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"blocked":       blocked,
			"blocked_until": until,
			"block_level":   level,
		}).Error
}

func (d *gormDirectory) IsBlocked(ctx context.Context, userID string, now time.Time) (bool, error) {
	var u models.User
	err := d.db.WithContext(ctx).Select("blocked", "blocked_until").Where("id = ?", userID).First(&u).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !u.Blocked {
		return false, nil
	}
	if !u.BlockedUntil.IsZero() && now.After(u.BlockedUntil) {
		return false, nil
	}
	return true, nil
}
