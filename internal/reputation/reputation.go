// Package reputation adapts complaint.Service's reputation-and-ban logic
// from profile-level complaints into the matchmaker's per-chat report flow:
// a report weights against the reported user's score, and the service
// checks both a score threshold and a frequency threshold for escalating
// blocks — kept structurally close to the teacher's HandleComplaint /
// CheckForBan / applyBan split.
package reputation

import (
	"context"
	"time"

	"anonchat/internal/config"
	"anonchat/internal/directory"
	"anonchat/internal/models"

	"go.uber.org/zap"
)

// ReportStore is the narrow slice of store.Store the Service needs.
type ReportStore interface {
	CreateReport(ctx context.Context, r *models.Report) error
	CountReportsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

type Service struct {
	cfg       config.ReputationConfig
	store     ReportStore
	directory directory.Directory
	log       *zap.Logger
}

func New(cfg config.ReputationConfig, st ReportStore, dir directory.Directory, log *zap.Logger) *Service {
	return &Service{cfg: cfg, store: st, directory: dir, log: log}
}

// Report records a report against reportedID and applies its weight to
// their reputation score, then checks whether a ban threshold was crossed.
func (s *Service) Report(ctx context.Context, reporterID, reportedID, chatID, reason string) error {
	rep := &models.Report{ReporterID: reporterID, ReportedID: reportedID, ChatID: chatID, Reason: reason}
	if err := s.store.CreateReport(ctx, rep); err != nil {
		return err
	}

	weight := s.cfg.ReportWeights[reason]
	if weight == 0 {
		weight = s.cfg.ReportWeights["spam"]
	}

	if _, err := s.directory.AdjustReputation(ctx, reportedID, -weight, s.cfg.MinScore, s.cfg.MaxScore); err != nil {
		return err
	}

	return s.checkForBan(ctx, reportedID)
}

// checkForBan applies either a score-threshold or a frequency-threshold
// ban, escalating the block level if the user was already blocked
// recently.
func (s *Service) checkForBan(ctx context.Context, userID string) error {
	score, err := s.directory.ReputationScore(ctx, userID)
	if err != nil {
		return err
	}
	if score < s.cfg.BanThresholdScore {
		return s.applyBan(ctx, userID)
	}

	count, err := s.store.CountReportsSince(ctx, userID, time.Now().Add(-s.cfg.BanFrequencyWindow))
	if err != nil {
		return err
	}
	if count > s.cfg.BanThresholdFrequency {
		return s.applyBan(ctx, userID)
	}
	return nil
}

func (s *Service) applyBan(ctx context.Context, userID string) error {
	user, err := s.directory.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	level := 1
	if user.Blocked {
		switch {
		case time.Since(user.BlockedUntil) < 0:
			level = user.BlockLevel + 1
		}
	}
	if level > 3 {
		level = 3
	}

	until := time.Now().Add(s.banDuration(level))
	return s.directory.SetBlock(ctx, userID, true, until, level)
}

func (s *Service) banDuration(level int) time.Duration {
	switch level {
	case 1:
		return s.cfg.BanLevel1Duration
	case 2:
		return s.cfg.BanLevel2Duration
	default:
		return s.cfg.BanLevel3Duration
	}
}

// IsBlocked reports whether userID is currently blocked.
func (s *Service) IsBlocked(ctx context.Context, userID string) (bool, error) {
	return s.directory.IsBlocked(ctx, userID, time.Now())
}
