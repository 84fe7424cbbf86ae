package playlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studyplus/tracker/internal/tracing"
)

const playlistColumns = `id, user_id, name, description, created_at, updated_at`

// PostgresRepository implements Repository on the playlists and playlist_items tables.
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

func scanPlaylist(row rowScanner) (*Playlist, error) {
	p := &Playlist{}
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, p *Playlist) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "playlists", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO playlists (`+playlistColumns+`)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		p.ID, p.UserID, p.Name, p.Description, now)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}
	return nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (p *Playlist, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "playlists", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if !validID(id) {
		return nil, ErrPlaylistNotFound
	}
	p, err = scanPlaylist(r.db.QueryRowContext(ctx, `SELECT `+playlistColumns+` FROM playlists WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	return p, nil
}

// ListByUser implements Repository.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) (out []*Playlist, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "playlists", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+playlistColumns+` FROM playlists
		WHERE user_id = $1
		ORDER BY created_at DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	defer rows.Close()

	out = make([]*Playlist, 0)
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlists: %w", err)
	}
	return out, nil
}

// Update implements Repository.
func (r *PostgresRepository) Update(ctx context.Context, id string, u Update) (p *Playlist, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "playlists", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	if !validID(id) {
		return nil, ErrPlaylistNotFound
	}
	var name, description sql.NullString
	if u.Name != nil {
		name = sql.NullString{String: *u.Name, Valid: true}
	}
	if u.Description != nil {
		description = sql.NullString{String: *u.Description, Valid: true}
	}

	p, err = scanPlaylist(r.db.QueryRowContext(ctx, `
		UPDATE playlists SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+playlistColumns, id, name, description))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update playlist: %w", err)
	}
	return p, nil
}

// Delete implements Repository. Items go with the playlist through ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "playlists", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	if !validID(id) {
		return ErrPlaylistNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}

// ListItems implements Repository.
func (r *PostgresRepository) ListItems(ctx context.Context, playlistID string) (out []*Item, err error) {
	if _, err := r.GetByID(ctx, playlistID); err != nil {
		return nil, err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "playlist_items", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT playlist_id, video_id, position, added_at
		FROM playlist_items
		WHERE playlist_id = $1
		ORDER BY position ASC`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist items: %w", err)
	}
	defer rows.Close()

	out = make([]*Item, 0)
	for rows.Next() {
		it := &Item{}
		if err := rows.Scan(&it.PlaylistID, &it.VideoID, &it.Position, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playlist item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlist items: %w", err)
	}
	return out, nil
}

// AddItem implements Repository. The playlist row lock serializes appends so
// positions stay unique.
func (r *PostgresRepository) AddItem(ctx context.Context, playlistID, videoID string) (it *Item, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "playlist_items", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if !validID(playlistID) {
		return nil, ErrPlaylistNotFound
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM playlists WHERE id = $1 FOR UPDATE`, playlistID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock playlist: %w", err)
	}

	it = &Item{PlaylistID: playlistID, VideoID: videoID}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO playlist_items (playlist_id, video_id, position, added_at)
		SELECT $1, $2, COALESCE(MAX(position) + 1, 0), NOW()
		FROM playlist_items WHERE playlist_id = $1
		ON CONFLICT (playlist_id, video_id) DO NOTHING
		RETURNING position, added_at`, playlistID, videoID).Scan(&it.Position, &it.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDuplicateItem
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add playlist item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE playlists SET updated_at = NOW() WHERE id = $1`, playlistID); err != nil {
		return nil, fmt.Errorf("failed to touch playlist: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return it, nil
}

// RemoveItem implements Repository.
func (r *PostgresRepository) RemoveItem(ctx context.Context, playlistID, videoID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "playlist_items", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	if !validID(playlistID) || !validID(videoID) {
		return ErrItemNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM playlist_items WHERE playlist_id = $1 AND video_id = $2`, playlistID, videoID)
	if err != nil {
		return fmt.Errorf("failed to remove playlist item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}
