package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the Postgres + Redis backed implementation of Store. It mirrors
// the teacher's storage.Service{DB, Redis, Ctx} shape.
type Service struct {
	DB  *gorm.DB
	RDB *redis.Client
	Log *zap.Logger
}

// NewService constructs a Service over an already-connected DB and Redis
// client.
func NewService(db *gorm.DB, rdb *redis.Client, log *zap.Logger) *Service {
	return &Service{DB: db, RDB: rdb, Log: log}
}

var _ Store = (*Service)(nil)

// Ping verifies both the Postgres and Redis connections are reachable,
// used by the /health endpoint.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	return s.RDB.Ping(ctx).Err()
}

func withCtx(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx)
}
