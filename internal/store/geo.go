package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// searchQueueKey and searchGeoKey back SPEC_FULL.md §6's "searches ... plus a
// live Redis GEO set (search:geo) and Redis SET (search:queue)": a mirror of
// every currently-searching user kept alongside the Postgres row, queried by
// FindCandidates as a cheap pre-filter before the authoritative Postgres/
// in-process predicate runs. Grounded on the teacher's own Redis SETs for
// search_queue, generalized into a real geospatial index since GORM/Postgres
// has no PostGIS dependency in the retrieval pack but go-redis exposes GEO
// commands directly.
const (
	searchQueueKey = "search:queue"
	searchGeoKey   = "search:geo"
)

// indexSearch adds userID to the queue set, and to the geo set too if the
// record carries a location. Best-effort: a failure here never blocks
// CreateSearch, since the Postgres row remains authoritative and
// FindCandidates falls back to a full scan when the mirror lookup errors or
// returns no IDs. A mirror missing some entries still narrows the scan, and
// those users are not considered.
func (s *Service) indexSearch(ctx context.Context, userID string, lon, lat float64, hasLocation bool) {
	pipe := s.RDB.Pipeline()
	pipe.SAdd(ctx, searchQueueKey, userID)
	if hasLocation {
		pipe.GeoAdd(ctx, searchGeoKey, &redis.GeoLocation{Name: userID, Longitude: lon, Latitude: lat})
	}
	if _, err := pipe.Exec(ctx); err != nil && s.Log != nil {
		s.Log.Warn("store: search index add failed", zap.Error(err))
	}
}

// unindexSearch removes userID from both the queue and geo sets, called
// whenever a searching record leaves the "searching" status (matched,
// cancelled, or expired).
func (s *Service) unindexSearch(ctx context.Context, userID string) {
	pipe := s.RDB.Pipeline()
	pipe.SRem(ctx, searchQueueKey, userID)
	pipe.ZRem(ctx, searchGeoKey, userID)
	if _, err := pipe.Exec(ctx); err != nil && s.Log != nil {
		s.Log.Warn("store: search index remove failed", zap.Error(err))
	}
}

// nearbyUserIDs returns the user IDs within radiusKm of (lon, lat) per
// search:geo, nearest first. Returns (nil, false) if the geo set can't be
// queried (a Redis error) so callers can fall back to the unfiltered Postgres
// predicate rather than wrongly returning zero candidates; an empty set or no
// member in range yields an empty slice and true.
func (s *Service) nearbyUserIDs(ctx context.Context, lon, lat, radiusKm float64) ([]string, bool) {
	res, err := s.RDB.GeoSearch(ctx, searchGeoKey, &redis.GeoSearchQuery{
		Longitude:  lon,
		Latitude:   lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("store: geo search failed", zap.Error(err))
		}
		return nil, false
	}
	return res, true
}

// queuedUserIDs returns every userID currently marked as searching in
// search:queue. Returns (nil, false) on Redis error so FindCandidates can
// fall back to the plain Postgres scan.
func (s *Service) queuedUserIDs(ctx context.Context) ([]string, bool) {
	res, err := s.RDB.SMembers(ctx, searchQueueKey).Result()
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("store: queue read failed", zap.Error(err))
		}
		return nil, false
	}
	return res, true
}
