package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cheqr/internal/clock"
	"cheqr/internal/config"
	"cheqr/internal/ledger"
	"cheqr/internal/poll"
	"cheqr/internal/queue"
	"cheqr/internal/store"
)

// Worker folds accepted scans into the Redis trailing-window counters
// that back the lecturer badge endpoint, and optionally polls watched
// courses to log their recent activity.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "cheqr:scans")
	}

	// WATCH_COURSES is a comma-separated list of course ids whose badge
	// counts get logged every poll interval, handy when smoke-testing a
	// lecture without the mobile client.
	if watched := os.Getenv("WATCH_COURSES"); watched != "" {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer db.Close()
		led := ledger.NewPostgres(db.Client)
		clk := clock.System{}
		for _, courseID := range strings.Split(watched, ",") {
			courseID = strings.TrimSpace(courseID)
			if courseID == "" {
				continue
			}
			id := courseID
			p := poll.New(cfg.PollInterval, cfg.PollFloor, clk, func(ctx context.Context) (int, error) {
				return led.CountRecentScans(ctx, id, cfg.RecentWindow, clk.Now())
			}, func(n int) {
				log.Printf("course %s: %d scans in last %s", id, n, cfg.RecentWindow)
			})
			go p.Run(ctx)
		}
	}

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for scan events...")
	for evt := range events {
		if err := redisClient.RecordScan(ctx, evt.CourseID, evt.ScannedAt, cfg.RecentWindow); err != nil {
			log.Printf("record scan for course %s failed: %v", evt.CourseID, err)
			continue
		}
		log.Printf("recorded scan: course=%s session=%s student=%s", evt.CourseID, evt.SessionID, evt.StudentID)
	}

	log.Println("worker stopped")
}
