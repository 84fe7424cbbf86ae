package video

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/studyplus/tracker/internal/tracing"
)

const videoColumns = `id, user_id, youtube_id, title, description, thumbnail, channel,
	duration, progress, completed, completion_counted, in_library, created_at, updated_at`

// PostgresRepository implements Repository on the videos table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*Video, error) {
	v := &Video{}
	err := row.Scan(
		&v.ID, &v.UserID, &v.YouTubeID, &v.Title, &v.Description, &v.Thumbnail, &v.Channel,
		&v.Duration, &v.Progress, &v.Completed, &v.CompletionCounted, &v.InLibrary, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *PostgresRepository) queryVideos(ctx context.Context, query string, args ...any) ([]*Video, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating videos: %w", err)
	}
	return out, nil
}

// Save implements Repository. The upsert restores a cleared video and reports
// whether the row was inserted (xmax is 0 only for fresh tuples).
func (r *PostgresRepository) Save(ctx context.Context, v *Video) (created bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if v.YouTubeID == "" {
		return false, ErrMissingYouTubeID
	}

	query := `
		INSERT INTO videos (id, user_id, youtube_id, title, description, thumbnail, channel,
			duration, in_library, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $9)
		ON CONFLICT (user_id, youtube_id) DO UPDATE SET
			in_library = TRUE,
			updated_at = CASE WHEN videos.in_library THEN videos.updated_at ELSE EXCLUDED.updated_at END
		RETURNING ` + videoColumns + `, (xmax = 0) AS inserted`

	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, query,
		uuid.New().String(), v.UserID, v.YouTubeID, v.Title, v.Description, v.Thumbnail, v.Channel,
		v.Duration, now,
	)

	saved := &Video{}
	err = row.Scan(
		&saved.ID, &saved.UserID, &saved.YouTubeID, &saved.Title, &saved.Description, &saved.Thumbnail, &saved.Channel,
		&saved.Duration, &saved.Progress, &saved.Completed, &saved.CompletionCounted, &saved.InLibrary, &saved.CreatedAt, &saved.UpdatedAt,
		&created,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save video: %w", err)
	}
	*v = *saved
	return created, nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (v *Video, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return nil, ErrVideoNotFound
	}

	v, err = scanVideo(r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

// FindByYouTubeID implements Repository.
func (r *PostgresRepository) FindByYouTubeID(ctx context.Context, userID, youtubeID string) (v *Video, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	v, err = scanVideo(r.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE user_id = $1 AND youtube_id = $2`, userID, youtubeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find video: %w", err)
	}
	return v, nil
}

// ListLibrary implements Repository.
func (r *PostgresRepository) ListLibrary(ctx context.Context, userID string) (out []*Video, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	out, err = r.queryVideos(ctx, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE user_id = $1 AND in_library
		ORDER BY updated_at DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list library: %w", err)
	}
	return out, nil
}

// ListByUser implements Repository.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) (out []*Video, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	out, err = r.queryVideos(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return out, nil
}

// ListByIDs implements Repository.
func (r *PostgresRepository) ListByIDs(ctx context.Context, ids []string) (out []*Video, err error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	out, err = r.queryVideos(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list videos by id: %w", err)
	}
	return out, nil
}

// ListMissingDuration implements Repository.
func (r *PostgresRepository) ListMissingDuration(ctx context.Context, userID string, limit int) (out []*Video, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if limit <= 0 {
		limit = 1000
	}
	out, err = r.queryVideos(ctx, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE duration = 0 AND ($1 = '' OR user_id = $1)
		ORDER BY created_at ASC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos missing duration: %w", err)
	}
	return out, nil
}

// UpdateProgress implements Repository.
func (r *PostgresRepository) UpdateProgress(ctx context.Context, id string, u ProgressUpdate) (v *Video, err error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	var progress sql.NullInt64
	if u.Progress != nil {
		progress = sql.NullInt64{Int64: int64(*u.Progress), Valid: true}
	}
	var completed sql.NullBool
	if u.Completed != nil {
		completed = sql.NullBool{Bool: *u.Completed, Valid: true}
	}
	var counted sql.NullBool
	if u.CompletionCounted != nil {
		counted = sql.NullBool{Bool: *u.CompletionCounted, Valid: true}
	}

	v, err = scanVideo(r.db.QueryRowContext(ctx, `
		UPDATE videos SET
			progress = COALESCE($2, progress),
			completed = COALESCE($3, completed),
			completion_counted = COALESCE($4, completion_counted),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+videoColumns, id, progress, completed, counted))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update progress: %w", err)
	}
	return v, nil
}

// SetDuration implements Repository.
func (r *PostgresRepository) SetDuration(ctx context.Context, id string, seconds int) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := r.db.ExecContext(ctx,
		`UPDATE videos SET duration = $2, updated_at = NOW() WHERE id = $1`, id, seconds)
	if err != nil {
		return fmt.Errorf("failed to set duration: %w", err)
	}
	return requireOneRow(res)
}

// Delete implements Repository.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return requireOneRow(res)
}

// ClearLibrary implements Repository.
func (r *PostgresRepository) ClearLibrary(ctx context.Context, userID string) (n int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "videos", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := r.db.ExecContext(ctx,
		`UPDATE videos SET in_library = FALSE, updated_at = NOW() WHERE user_id = $1 AND in_library`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear library: %w", err)
	}
	return res.RowsAffected()
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrVideoNotFound
	}
	return nil
}
