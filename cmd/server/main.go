package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"anonchat/internal/api/handler"
	"anonchat/internal/auth"
	"anonchat/internal/chatrouter"
	"anonchat/internal/config"
	"anonchat/internal/directory"
	"anonchat/internal/janitor"
	"anonchat/internal/logging"
	"anonchat/internal/matcher"
	"anonchat/internal/models"
	"anonchat/internal/presence"
	"anonchat/internal/reputation"
	"anonchat/internal/stats"
	"anonchat/internal/store"
	"anonchat/internal/transport/telegram"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config, log *zap.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.SearchRecord{},
		&models.ChatRecord{},
		&models.ChatMessageRow{},
		&models.Rating{},
		&models.Report{},
	); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	log.Info("database and redis connections established, migrations complete")
	return db, rdb
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logging.New("development")
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer zlog.Sync()

	db, rdb := setupDependencies(cfg, zlog)

	st := store.NewService(db, rdb, logging.Component(zlog, "store"))
	dir := directory.New(db)

	statsBroadcaster := stats.New(st, nil, cfg.StatsCacheTTL, cfg.StatsDebounce, logging.Component(zlog, "stats"))

	presenceCfg := presence.Config{
		DisconnectCancelGrace: cfg.DisconnectCancelGrace,
		RoomMemoryRetention:   cfg.RoomMemoryRetention,
		ReconnectWindow:       cfg.ReconnectWindow,
	}

	matcherSvc := matcher.New(st, nil, statsBroadcaster, logging.Component(zlog, "matcher"))
	matcherSvc.Blocked = dir
	hub := presence.New(presenceCfg, dir, matcherSvc, statsBroadcaster, logging.Component(zlog, "presence"))
	hub.SetPubSub(st)
	matcherSvc.Notify = hub
	statsBroadcaster.SetHub(hub)

	reputationSvc := reputation.New(cfg.Reputation, st, dir, logging.Component(zlog, "reputation"))
	chatRouter := chatrouter.New(st, dir, reputationSvc, hub, logging.Component(zlog, "chatrouter"))

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	h := handler.New(hub, matcherSvc, chatRouter, statsBroadcaster, dir, verifier, cfg.MaxMessageBytes, cfg.HeartbeatInterval, cfg.HeartbeatTimeout, logging.Component(zlog, "handler"))

	janitorCfg := janitor.DefaultConfig(cfg.SearchExpiry)
	jloop, err := janitor.New(janitorCfg, matcherSvc, st, hub, st, logging.Component(zlog, "janitor"))
	if err != nil {
		zlog.Fatal("failed to build janitor", zap.Error(err))
	}
	if err := jloop.Start(); err != nil {
		zlog.Fatal("failed to start janitor", zap.Error(err))
	}
	defer jloop.Stop()

	if cfg.TelegramBotToken != "" {
		botRunner, err := telegram.NewBotRunner(cfg.TelegramBotToken, hub, dir, h, logging.Component(zlog, "telegram"))
		if err != nil {
			zlog.Error("failed to start telegram bot, continuing without it", zap.Error(err))
		} else {
			go botRunner.Run()
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", h.Health(st))
	r.GET("/ws", h.ServeWebSocket)

	server := &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	zlog.Info("starting anonchat matchmaker", zap.String("addr", cfg.ListenAddr))
	zlog.Fatal("server stopped", zap.Error(server.ListenAndServe()))
}
