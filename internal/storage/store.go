package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"nemochat/internal/models"
)

// Store persists conversation turns. Turns are immutable once written;
// (user_id, created_at) is unique.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AddTurn inserts one request/response exchange and returns the stored record.
func (s *Store) AddTurn(ctx context.Context, userID, message, response string, metadata json.RawMessage) (*models.Turn, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	now := time.Now().UTC()
	var meta any
	if len(metadata) > 0 {
		meta = string(metadata)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, message, response, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, message, response, meta, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("turn id: %w", err)
	}
	return &models.Turn{
		ID:        id,
		UserID:    userID,
		Message:   message,
		Response:  response,
		Metadata:  metadata,
		CreatedAt: now,
	}, nil
}

// GetRecent returns the most recent turns for a user, newest first.
func (s *Store) GetRecent(ctx context.Context, userID string, limit int) ([]models.Turn, error) {
	return s.queryTurns(ctx, userID, 0, limit)
}

// GetHistory returns historical turns for a user, newest first, skipping the
// given number of most recent entries.
func (s *Store) GetHistory(ctx context.Context, userID string, skip, limit int) ([]models.Turn, error) {
	return s.queryTurns(ctx, userID, skip, limit)
}

func (s *Store) queryTurns(ctx context.Context, userID string, skip, limit int) ([]models.Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, message, response, metadata, created_at
		FROM conversations WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var (
			t    models.Turn
			meta sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Message, &t.Response, &meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if meta.Valid {
			t.Metadata = json.RawMessage(meta.String)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// CleanOldTurns deletes turns older than the provided age and reports how many
// rows were removed.
func (s *Store) CleanOldTurns(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE created_at < ?`, threshold,
	)
	if err != nil {
		return 0, fmt.Errorf("clean old turns: %w", err)
	}
	return res.RowsAffected()
}
