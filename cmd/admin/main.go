// admin is the operator CLI, replacing the teacher's ban/unban/confirm-complaint
// subcommands with the matchmaker's equivalents: forcing a stale search to
// expire, ending a stuck chat, inspecting a user's reputation, and forcing an
// immediate stats recomputation. It opens its own Postgres/Redis connections
// rather than reusing cmd/server's wiring, same as the teacher's admin tool.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"anonchat/internal/config"
	"anonchat/internal/directory"
	"anonchat/internal/logging"
	"anonchat/internal/matcher"
	"anonchat/internal/stats"
	"anonchat/internal/store"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})

	zlog, err := logging.New("production")
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer zlog.Sync()

	st := store.NewService(db, rdb, logging.Component(zlog, "store"))
	dir := directory.New(db)

	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		os.Exit(1)
	}

	ctx := context.Background()
	command := os.Args[1]

	switch command {
	case "expire-search":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin expire-search <older_than_minutes>")
			os.Exit(1)
		}
		minutes, err := time.ParseDuration(os.Args[2] + "m")
		if err != nil {
			fmt.Println("Invalid duration. Please provide an integer number of minutes.")
			os.Exit(1)
		}
		m := matcher.New(st, nil, nil, logging.Component(zlog, "admin"))
		count, err := m.ExpireStale(ctx, time.Now().Add(-minutes))
		if err != nil {
			log.Fatalf("Error expiring searches: %v", err)
		}
		fmt.Printf("Expired %d stale search(es).\n", count)

	case "end-chat":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin end-chat <chat_id>")
			os.Exit(1)
		}
		chatID := os.Args[2]
		if err := st.EndChat(ctx, chatID, "system", "admin_terminated"); err != nil {
			log.Fatalf("Error ending chat: %v", err)
		}
		fmt.Printf("Chat %s has been ended.\n", chatID)

	case "show-reputation":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin show-reputation <user_id>")
			os.Exit(1)
		}
		userID := os.Args[2]
		user, err := dir.GetByID(ctx, userID)
		if err != nil {
			log.Fatalf("Error loading user: %v", err)
		}
		if user == nil {
			fmt.Printf("No such user: %s\n", userID)
			os.Exit(1)
		}
		fmt.Printf("user=%s score=%d blocked=%v blockedUntil=%s blockLevel=%d\n",
			user.ID, user.ReputationScore, user.Blocked, user.BlockedUntil.Format(time.RFC3339), user.BlockLevel)

	case "recompute-stats":
		broadcaster := stats.New(st, nil, 0, 0, logging.Component(zlog, "admin"))
		snap := broadcaster.Snapshot(ctx)
		fmt.Printf("searching: total=%d male=%d female=%d\n", snap.Searching.Total, snap.Searching.Male, snap.Searching.Female)
		fmt.Printf("online: male=%d female=%d\n", snap.Online.Male, snap.Online.Female)
		fmt.Printf("avgSearchTime: %+v\n", snap.AvgSearchTime)

	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}
