package watch

import (
	"context"
)

// History returns the user's most recent viewing sessions with their videos.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error) {
	return e.store.ListHistory(ctx, userID, limit)
}

// DeleteEntry removes one history entry owned by userID. Totals already
// accumulated in the user's analytics are not reduced.
func (e *Engine) DeleteEntry(ctx context.Context, userID, entryID string) error {
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return ErrForbidden
	}
	return e.store.DeleteEntry(ctx, entryID)
}

// ClearHistory removes all of the user's history entries.
func (e *Engine) ClearHistory(ctx context.Context, userID string) (int64, error) {
	return e.store.ClearHistory(ctx, userID)
}
