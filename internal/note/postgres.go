package note

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

const noteColumns = `id, user_id, video_id, content, timestamp, created_at, updated_at`

// PostgresRepository implements Repository on the notes table.
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

func scanNote(row rowScanner) (*Note, error) {
	n := &Note{}
	if err := row.Scan(&n.ID, &n.UserID, &n.VideoID, &n.Content, &n.Timestamp, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *PostgresRepository) queryNotes(ctx context.Context, query string, args ...any) ([]*Note, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return out, nil
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, n *Note) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "notes", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if n.Timestamp < 0 {
		return ErrInvalidTimestamp
	}

	now := time.Now().UTC()
	n.ID = uuid.New().String()
	n.CreatedAt, n.UpdatedAt = now, now
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		n.ID, n.UserID, n.VideoID, n.Content, n.Timestamp, now)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (n *Note, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "notes", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return nil, ErrNoteNotFound
	}
	n, err = scanNote(r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return n, nil
}

// List implements Repository.
func (r *PostgresRepository) List(ctx context.Context, userID, videoID string) (out []*Note, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "notes", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if videoID == "" {
		out, err = r.queryNotes(ctx, `
			SELECT `+noteColumns+` FROM notes
			WHERE user_id = $1
			ORDER BY created_at DESC, id ASC`, userID)
	} else {
		if _, perr := uuid.Parse(videoID); perr != nil {
			return []*Note{}, nil
		}
		out, err = r.queryNotes(ctx, `
			SELECT `+noteColumns+` FROM notes
			WHERE user_id = $1 AND video_id = $2
			ORDER BY created_at DESC, id ASC`, userID, videoID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return out, nil
}

// ListByVideos implements Repository.
func (r *PostgresRepository) ListByVideos(ctx context.Context, videoIDs []string) (out map[string][]*Note, err error) {
	out = make(map[string][]*Note)
	if len(videoIDs) == 0 {
		return out, nil
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "notes", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	notes, err := r.queryNotes(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE video_id = ANY($1::uuid[])
		ORDER BY timestamp ASC, created_at ASC`, pq.Array(videoIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list notes by video: %w", err)
	}
	for _, n := range notes {
		out[n.VideoID] = append(out[n.VideoID], n)
	}
	return out, nil
}

// UpdateContent implements Repository.
func (r *PostgresRepository) UpdateContent(ctx context.Context, id, content string) (n *Note, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "notes", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return nil, ErrNoteNotFound
	}
	n, err = scanNote(r.db.QueryRowContext(ctx, `
		UPDATE notes SET content = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+noteColumns, id, content))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return n, nil
}

// Delete implements Repository.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "notes", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return ErrNoteNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoteNotFound
	}
	return nil
}
