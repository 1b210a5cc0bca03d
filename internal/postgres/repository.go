package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS whitelist (
			player_key VARCHAR(64) PRIMARY KEY,
			name VARCHAR(32) NOT NULL,
			discord_id VARCHAR(32) NOT NULL,
			discord_name VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_whitelist_name ON whitelist(LOWER(name))`,
		`CREATE TABLE IF NOT EXISTS xp_events (
			id BIGSERIAL PRIMARY KEY,
			player_key VARCHAR(64) NOT NULL,
			event_type VARCHAR(20) NOT NULL,
			event_source VARCHAR(128) NOT NULL,
			xp BIGINT NOT NULL,
			origin_server VARCHAR(64),
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_events_player ON xp_events(player_key, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_events_window ON xp_events(player_key, event_type, event_source, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS player_progress (
			player_key VARCHAR(64) PRIMARY KEY,
			name VARCHAR(32) NOT NULL DEFAULT '',
			total_xp BIGINT NOT NULL DEFAULT 0,
			playtime_minutes BIGINT NOT NULL DEFAULT 0,
			achievements BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateEntry inserts a permanent whitelist entry. Colliding with an existing
// row (same player key or same name) reports domain.ErrAlreadyWhitelisted.
func (r *Repository) CreateEntry(ctx context.Context, entry domain.WhitelistEntry) error {
	query := `
		INSERT INTO whitelist (player_key, name, discord_id, discord_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.PlayerKey,
		entry.Name,
		entry.DiscordID,
		entry.DiscordName,
		entry.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyWhitelisted
		}
		return fmt.Errorf("creating whitelist entry: %w", err)
	}
	return nil
}

// EntryByName retrieves a whitelist entry by player name
func (r *Repository) EntryByName(ctx context.Context, name string) (*domain.WhitelistEntry, error) {
	query := `
		SELECT player_key, name, discord_id, discord_name, created_at
		FROM whitelist
		WHERE LOWER(name) = LOWER($1)
	`
	return r.scanEntry(r.pool.QueryRow(ctx, query, name))
}

// EntryByKey retrieves a whitelist entry by player key
func (r *Repository) EntryByKey(ctx context.Context, playerKey string) (*domain.WhitelistEntry, error) {
	query := `
		SELECT player_key, name, discord_id, discord_name, created_at
		FROM whitelist
		WHERE player_key = $1
	`
	return r.scanEntry(r.pool.QueryRow(ctx, query, playerKey))
}

func (r *Repository) scanEntry(row pgx.Row) (*domain.WhitelistEntry, error) {
	var entry domain.WhitelistEntry
	err := row.Scan(
		&entry.PlayerKey,
		&entry.Name,
		&entry.DiscordID,
		&entry.DiscordName,
		&entry.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotWhitelisted
		}
		return nil, fmt.Errorf("getting whitelist entry: %w", err)
	}
	return &entry, nil
}

// UpdateEntryName updates the stored display name for a player key in place
func (r *Repository) UpdateEntryName(ctx context.Context, playerKey, name string) error {
	query := `UPDATE whitelist SET name = $2 WHERE player_key = $1`
	result, err := r.pool.Exec(ctx, query, playerKey, name)
	if err != nil {
		return fmt.Errorf("updating whitelist name: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotWhitelisted
	}
	return nil
}

// RemoveEntry deletes a whitelist entry by player key
func (r *Repository) RemoveEntry(ctx context.Context, playerKey string) error {
	query := `DELETE FROM whitelist WHERE player_key = $1`
	result, err := r.pool.Exec(ctx, query, playerKey)
	if err != nil {
		return fmt.Errorf("removing whitelist entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotWhitelisted
	}
	return nil
}

// ListEntries retrieves all whitelist entries ordered by creation time
func (r *Repository) ListEntries(ctx context.Context) ([]domain.WhitelistEntry, error) {
	query := `
		SELECT player_key, name, discord_id, discord_name, created_at
		FROM whitelist
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing whitelist: %w", err)
	}
	defer rows.Close()

	var entries []domain.WhitelistEntry
	for rows.Next() {
		var entry domain.WhitelistEntry
		err := rows.Scan(
			&entry.PlayerKey,
			&entry.Name,
			&entry.DiscordID,
			&entry.DiscordName,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning whitelist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// InsertEvent appends an event to the immutable XP log
func (r *Repository) InsertEvent(ctx context.Context, event domain.XPEvent) error {
	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	query := `
		INSERT INTO xp_events (player_key, event_type, event_source, xp, origin_server, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		event.PlayerKey,
		string(event.EventType),
		event.EventSource,
		event.XP,
		event.OriginServer,
		metadataJSON,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording xp event: %w", err)
	}
	return nil
}

// EventWindowCounts returns the number of matching events in the trailing
// minute, hour and day windows with a single query.
func (r *Repository) EventWindowCounts(ctx context.Context, playerKey string, eventType domain.EventType, eventSource string, now time.Time) (domain.WindowCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE created_at > $4),
			COUNT(*) FILTER (WHERE created_at > $5),
			COUNT(*)
		FROM xp_events
		WHERE player_key = $1 AND event_type = $2 AND event_source = $3 AND created_at > $6
	`
	var counts domain.WindowCounts
	err := r.pool.QueryRow(ctx, query,
		playerKey,
		string(eventType),
		eventSource,
		now.Add(-time.Minute),
		now.Add(-time.Hour),
		now.Add(-24*time.Hour),
	).Scan(&counts.Minute, &counts.Hour, &counts.Day)
	if err != nil {
		return domain.WindowCounts{}, fmt.Errorf("counting events: %w", err)
	}
	return counts, nil
}

// ApplyProgress atomically bumps a player's aggregate row and returns the
// updated totals.
func (r *Repository) ApplyProgress(ctx context.Context, playerKey, name string, xpDelta, playtimeDelta, achievementsDelta int64) (*domain.PlayerProgress, error) {
	query := `
		INSERT INTO player_progress (player_key, name, total_xp, playtime_minutes, achievements, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (player_key)
		DO UPDATE SET
			name = CASE WHEN $2 <> '' THEN $2 ELSE player_progress.name END,
			total_xp = player_progress.total_xp + $3,
			playtime_minutes = player_progress.playtime_minutes + $4,
			achievements = player_progress.achievements + $5,
			updated_at = $6
		RETURNING player_key, name, total_xp, playtime_minutes, achievements, updated_at
	`
	now := time.Now()
	var progress domain.PlayerProgress
	err := r.pool.QueryRow(ctx, query, playerKey, name, xpDelta, playtimeDelta, achievementsDelta, now).Scan(
		&progress.PlayerKey,
		&progress.Name,
		&progress.TotalXP,
		&progress.PlaytimeMinutes,
		&progress.Achievements,
		&progress.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("applying progress: %w", err)
	}
	return &progress, nil
}

// Progress retrieves a player's aggregate progress row. Players with no
// recorded events resolve to a zero-valued row.
func (r *Repository) Progress(ctx context.Context, playerKey string) (*domain.PlayerProgress, error) {
	query := `
		SELECT player_key, name, total_xp, playtime_minutes, achievements, updated_at
		FROM player_progress
		WHERE player_key = $1
	`
	var progress domain.PlayerProgress
	err := r.pool.QueryRow(ctx, query, playerKey).Scan(
		&progress.PlayerKey,
		&progress.Name,
		&progress.TotalXP,
		&progress.PlaytimeMinutes,
		&progress.Achievements,
		&progress.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &domain.PlayerProgress{PlayerKey: playerKey}, nil
		}
		return nil, fmt.Errorf("getting progress: %w", err)
	}
	return &progress, nil
}

// XPBySource aggregates a player's XP grouped by event source
func (r *Repository) XPBySource(ctx context.Context, playerKey string) ([]domain.SourceXP, error) {
	query := `
		SELECT event_source, COALESCE(SUM(xp), 0), COUNT(*)
		FROM xp_events
		WHERE player_key = $1
		GROUP BY event_source
		ORDER BY SUM(xp) DESC
	`
	rows, err := r.pool.Query(ctx, query, playerKey)
	if err != nil {
		return nil, fmt.Errorf("aggregating xp by source: %w", err)
	}
	defer rows.Close()

	var sources []domain.SourceXP
	for rows.Next() {
		var s domain.SourceXP
		if err := rows.Scan(&s.EventSource, &s.XP, &s.Events); err != nil {
			return nil, fmt.Errorf("scanning source xp: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// DailyXP aggregates a player's XP per day over the trailing N days
func (r *Repository) DailyXP(ctx context.Context, playerKey string, days int) ([]domain.DailyXP, error) {
	query := `
		SELECT DATE_TRUNC('day', created_at) AS day, COALESCE(SUM(xp), 0)
		FROM xp_events
		WHERE player_key = $1 AND created_at > NOW() - make_interval(days => $2)
		GROUP BY day
		ORDER BY day DESC
	`
	rows, err := r.pool.Query(ctx, query, playerKey, days)
	if err != nil {
		return nil, fmt.Errorf("aggregating daily xp: %w", err)
	}
	defer rows.Close()

	var daily []domain.DailyXP
	for rows.Next() {
		var d domain.DailyXP
		if err := rows.Scan(&d.Day, &d.XP); err != nil {
			return nil, fmt.Errorf("scanning daily xp: %w", err)
		}
		daily = append(daily, d)
	}
	return daily, nil
}

// AllProgress retrieves every player's aggregate row, for leaderboard
// reconciliation.
func (r *Repository) AllProgress(ctx context.Context) ([]domain.PlayerProgress, error) {
	query := `
		SELECT player_key, name, total_xp, playtime_minutes, achievements, updated_at
		FROM player_progress
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing progress: %w", err)
	}
	defer rows.Close()

	var all []domain.PlayerProgress
	for rows.Next() {
		var p domain.PlayerProgress
		err := rows.Scan(
			&p.PlayerKey,
			&p.Name,
			&p.TotalXP,
			&p.PlaytimeMinutes,
			&p.Achievements,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning progress: %w", err)
		}
		all = append(all, p)
	}
	return all, nil
}
