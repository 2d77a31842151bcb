package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the redis client plus the per-course recent-scan counters
// the worker maintains for badge polling. Each course keeps a sorted
// set of scan timestamps; trimming on write keeps lookups bounded by
// the trailing window instead of full history.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func scanKey(courseID string) string {
	return "cheqr:recent:" + courseID
}

// RecordScan adds one scan timestamp to the course's trailing counter
// and drops entries older than keep.
func (r *Redis) RecordScan(ctx context.Context, courseID string, at time.Time, keep time.Duration) error {
	key := scanKey(courseID)
	member := strconv.FormatInt(at.UnixNano(), 10)
	pipe := r.Client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.Unix()), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(at.Add(-keep).Unix(), 10))
	pipe.Expire(ctx, key, keep*2)
	_, err := pipe.Exec(ctx)
	return err
}

// RecentScanCount returns how many scans the course saw inside the
// trailing window ending at now.
func (r *Redis) RecentScanCount(ctx context.Context, courseID string, window time.Duration, now time.Time) (int, error) {
	n, err := r.Client.ZCount(ctx, scanKey(courseID),
		strconv.FormatInt(now.Add(-window).Unix(), 10),
		strconv.FormatInt(now.Unix(), 10)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
