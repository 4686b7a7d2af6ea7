package store

import (
	"context"
	"time"

	"anonchat/internal/models"
)

// CountSearchingByGender aggregates the live "searching" population.
func (s *Service) CountSearchingByGender(ctx context.Context) (models.GenderCounts, error) {
	return s.countByGender(ctx, "searches", "status = 'searching'")
}

// CountOnlineByGender aggregates users whose lastActive falls within the
// liveness window.
func (s *Service) CountOnlineByGender(ctx context.Context, activeSince time.Time) (models.GenderCounts, error) {
	var rows []struct {
		Gender string
		N      int
	}
	err := withCtx(ctx, s.DB).Table("users").
		Select("gender, count(*) as n").
		Where("is_active = ? AND last_active >= ?", true, activeSince).
		Group("gender").
		Scan(&rows).Error
	if err != nil {
		return models.GenderCounts{}, err
	}
	var gc models.GenderCounts
	for _, r := range rows {
		gc.Total += r.N
		switch r.Gender {
		case "male":
			gc.Male += r.N
		case "female":
			gc.Female += r.N
		}
	}
	return gc, nil
}

func (s *Service) countByGender(ctx context.Context, table, where string) (models.GenderCounts, error) {
	var rows []struct {
		Gender string
		N      int
	}
	err := withCtx(ctx, s.DB).Table(table).
		Select("gender, count(*) as n").
		Where(where).
		Group("gender").
		Scan(&rows).Error
	if err != nil {
		return models.GenderCounts{}, err
	}
	var gc models.GenderCounts
	for _, r := range rows {
		gc.Total += r.N
		switch r.Gender {
		case "male":
			gc.Male += r.N
		case "female":
			gc.Female += r.N
		}
	}
	return gc, nil
}

// AvgSearchTimeStats computes the mean searching→matched duration and the
// count of matches within the last 24h, split by the matched user's gender.
func (s *Service) AvgSearchTimeStats(ctx context.Context, since time.Time) (models.AvgSearchTime, error) {
	var rows []struct {
		Gender  string
		AvgSecs float64
		N       int
	}
	err := withCtx(ctx, s.DB).Table("searches").
		Select("gender, AVG(EXTRACT(EPOCH FROM (updated_at - created_at))) as avg_secs, count(*) as n").
		Where("status = 'matched' AND updated_at >= ?", since).
		Group("gender").
		Scan(&rows).Error
	if err != nil {
		return models.AvgSearchTime{}, err
	}

	var out models.AvgSearchTime
	var totalSecs float64
	var totalN int
	for _, r := range rows {
		switch r.Gender {
		case "male":
			out.Male = r.AvgSecs
		case "female":
			out.Female = r.AvgSecs
		}
		totalSecs += r.AvgSecs * float64(r.N)
		totalN += r.N
	}
	out.Matches24h = totalN
	if totalN > 0 {
		out.Total = totalSecs / float64(totalN)
	}
	return out, nil
}
