package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studyplus/tracker/internal/tracing"
	"github.com/studyplus/tracker/internal/video"
)

// PostgresStore implements Store on the watch_history and user_analytics tables.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a store backed by db. logger may be nil.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// WithinTx implements Store with a READ COMMITTED transaction. The video row
// lock taken by LockVideo is what serializes concurrent reports.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockVideo(ctx context.Context, videoID string) (*video.Video, error) {
	if _, err := uuid.Parse(videoID); err != nil {
		return nil, ErrVideoNotFound
	}

	v := &video.Video{ID: videoID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT user_id, youtube_id, duration, progress, completed, completion_counted
		FROM videos
		WHERE id = $1
		FOR UPDATE`, videoID).Scan(&v.UserID, &v.YouTubeID, &v.Duration, &v.Progress, &v.Completed, &v.CompletionCounted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock video: %w", err)
	}
	return v, nil
}

func (t *pgTx) LatestEntrySince(ctx context.Context, userID, videoID string, since time.Time) (*HistoryEntry, error) {
	e := &HistoryEntry{}
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, video_id, watch_time, watched_at
		FROM watch_history
		WHERE user_id = $1 AND video_id = $2 AND watched_at >= $3
		ORDER BY watched_at DESC
		LIMIT 1`, userID, videoID, since).Scan(&e.ID, &e.UserID, &e.VideoID, &e.WatchTime, &e.WatchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recent entry: %w", err)
	}
	return e, nil
}

func (t *pgTx) InsertEntry(ctx context.Context, e *HistoryEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO watch_history (id, user_id, video_id, watch_time, watched_at)
		VALUES ($1, $2, $3, $4, $5)`, e.ID, e.UserID, e.VideoID, e.WatchTime, e.WatchedAt)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateEntry(ctx context.Context, id string, watchTime int64, watchedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE watch_history SET watch_time = $2, watched_at = $3 WHERE id = $1`, id, watchTime, watchedAt)
	if err != nil {
		return fmt.Errorf("failed to update history entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (t *pgTx) SumWatchTime(ctx context.Context, userID, videoID string) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(watch_time), 0)
		FROM watch_history
		WHERE user_id = $1 AND video_id = $2`, userID, videoID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum watch time: %w", err)
	}
	return total, nil
}

func (t *pgTx) UpdateVideoProgress(ctx context.Context, videoID string, progress int, completed, counted bool) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE videos
		SET progress = $2, completed = $3, completion_counted = $4, updated_at = NOW()
		WHERE id = $1`,
		videoID, progress, completed, counted)
	if err != nil {
		return fmt.Errorf("failed to update video progress: %w", err)
	}
	return nil
}

// AddToAnalytics increments inside the upsert itself, so reports for different
// videos of the same user cannot overwrite each other's totals.
func (t *pgTx) AddToAnalytics(ctx context.Context, userID string, seconds int64, completed int, at time.Time) (*UserAnalytics, error) {
	a, err := scanAnalytics(t.tx.QueryRowContext(ctx, `
		INSERT INTO user_analytics (user_id, total_watch_time, videos_completed, current_streak,
			longest_streak, last_watch_date, updated_at)
		VALUES ($1, $2, $3, 1, 1, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_watch_time = user_analytics.total_watch_time + EXCLUDED.total_watch_time,
			videos_completed = user_analytics.videos_completed + EXCLUDED.videos_completed,
			last_watch_date = EXCLUDED.last_watch_date,
			updated_at = NOW()
		RETURNING user_id, total_watch_time, videos_completed, current_streak, longest_streak, last_watch_date`,
		userID, seconds, completed, at))
	if err != nil {
		return nil, fmt.Errorf("failed to update analytics: %w", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalytics(row rowScanner) (*UserAnalytics, error) {
	a := &UserAnalytics{}
	var last sql.NullTime
	if err := row.Scan(&a.UserID, &a.TotalWatchTime, &a.VideosCompleted, &a.CurrentStreak, &a.LongestStreak, &last); err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		a.LastWatchDate = &t
	}
	return a, nil
}

// ListHistory implements Store.
func (s *PostgresStore) ListHistory(ctx context.Context, userID string, limit int) (out []*HistoryEntry, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "watch_history", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.user_id, h.video_id, h.watch_time, h.watched_at,
		       v.youtube_id, v.title, v.thumbnail, v.channel, v.duration, v.progress, v.completed,
		       v.in_library, v.created_at, v.updated_at
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id
		WHERE h.user_id = $1
		ORDER BY h.watched_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e := &HistoryEntry{Video: &video.Video{}}
		v := e.Video
		if err := rows.Scan(&e.ID, &e.UserID, &e.VideoID, &e.WatchTime, &e.WatchedAt,
			&v.YouTubeID, &v.Title, &v.Thumbnail, &v.Channel, &v.Duration, &v.Progress, &v.Completed,
			&v.InLibrary, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		v.ID, v.UserID = e.VideoID, e.UserID
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return out, nil
}

// ListAllHistory implements Store.
func (s *PostgresStore) ListAllHistory(ctx context.Context, userID string) (out []*HistoryEntry, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "watch_history", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, video_id, watch_time, watched_at
		FROM watch_history
		WHERE user_id = $1
		ORDER BY watched_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e := &HistoryEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.VideoID, &e.WatchTime, &e.WatchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return out, nil
}

// GetEntry implements Store.
func (s *PostgresStore) GetEntry(ctx context.Context, id string) (*HistoryEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrEntryNotFound
	}
	e := &HistoryEntry{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, video_id, watch_time, watched_at
		FROM watch_history WHERE id = $1`, id).Scan(&e.ID, &e.UserID, &e.VideoID, &e.WatchTime, &e.WatchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	return e, nil
}

// DeleteEntry implements Store.
func (s *PostgresStore) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watch_history WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ClearHistory implements Store.
func (s *PostgresStore) ClearHistory(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watch_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return res.RowsAffected()
}

// EnsureAnalytics implements Store.
func (s *PostgresStore) EnsureAnalytics(ctx context.Context, userID string) (a *UserAnalytics, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_analytics", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	// The no-op update makes RETURNING yield the existing row on conflict.
	a, err = scanAnalytics(s.db.QueryRowContext(ctx, `
		INSERT INTO user_analytics (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, total_watch_time, videos_completed, current_streak, longest_streak, last_watch_date`,
		userID))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure analytics: %w", err)
	}
	return a, nil
}

// UpdateStreaks implements Store.
func (s *PostgresStore) UpdateStreaks(ctx context.Context, userID string, current, longest int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_analytics
		SET current_streak = $2, longest_streak = $3, updated_at = NOW()
		WHERE user_id = $1`, userID, current, longest)
	if err != nil {
		return fmt.Errorf("failed to update streaks: %w", err)
	}
	return nil
}
