package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
)

const leaderboardKey = "gatewarden:xp:leaderboard"

// Leaderboard provides the Redis-backed realtime total-XP leaderboard. It is
// a derived view over the Postgres event log; the sync worker rebuilds it on
// startup and reconciles it periodically.
type Leaderboard struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLeaderboard creates a Redis leaderboard service
func NewLeaderboard(cfg *config.RedisConfig, logger *slog.Logger) (*Leaderboard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Leaderboard{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (l *Leaderboard) Close() error {
	return l.client.Close()
}

// Client returns the underlying Redis client
func (l *Leaderboard) Client() *redis.Client {
	return l.client
}

// AddXP increments a player's leaderboard score and returns the new total
func (l *Leaderboard) AddXP(ctx context.Context, playerKey string, xp int64) (int64, error) {
	total, err := l.client.ZIncrBy(ctx, leaderboardKey, float64(xp), playerKey).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing xp: %w", err)
	}
	return int64(total), nil
}

// SetXP sets a player's leaderboard score outright
func (l *Leaderboard) SetXP(ctx context.Context, playerKey string, xp int64) error {
	err := l.client.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(xp),
		Member: playerKey,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting xp: %w", err)
	}
	return nil
}

// GetTopN returns the top N players by total XP
func (l *Leaderboard) GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	results, err := l.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		entries[i] = domain.LeaderboardEntry{
			Rank:      int64(i + 1),
			PlayerKey: result.Member.(string),
			XP:        int64(result.Score),
		}
	}
	return entries, nil
}

// GetPlayerRank returns a player's leaderboard position and total XP
func (l *Leaderboard) GetPlayerRank(ctx context.Context, playerKey string) (*domain.LeaderboardEntry, error) {
	pipe := l.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, leaderboardKey, playerKey)
	scoreCmd := pipe.ZScore(ctx, leaderboardKey, playerKey)
	_, err := pipe.Exec(ctx)

	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrNotWhitelisted
		}
		return nil, fmt.Errorf("getting player rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrNotWhitelisted
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.LeaderboardEntry{
		Rank:      rank + 1, // Convert 0-indexed to 1-indexed
		PlayerKey: playerKey,
		XP:        int64(score),
	}, nil
}

// GetCount returns the number of players on the leaderboard
func (l *Leaderboard) GetCount(ctx context.Context) (int64, error) {
	count, err := l.client.ZCard(ctx, leaderboardKey).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// BatchSetXP sets multiple players' scores using pipelining
func (l *Leaderboard) BatchSetXP(ctx context.Context, totals map[string]int64) error {
	pipe := l.client.Pipeline()

	for playerKey, xp := range totals {
		pipe.ZAdd(ctx, leaderboardKey, redis.Z{
			Score:  float64(xp),
			Member: playerKey,
		})
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch setting xp: %w", err)
	}
	return nil
}

// Reset clears the leaderboard
func (l *Leaderboard) Reset(ctx context.Context) error {
	err := l.client.Del(ctx, leaderboardKey).Err()
	if err != nil {
		return fmt.Errorf("resetting leaderboard: %w", err)
	}
	return nil
}
