package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db), db
}

func seedTurns(t *testing.T, store *Store, userID string, messages ...string) {
	t.Helper()
	for _, msg := range messages {
		if _, err := store.AddTurn(context.Background(), userID, msg, "re: "+msg, nil); err != nil {
			t.Fatalf("AddTurn(%q): %v", msg, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestAddTurnAndGetRecent(t *testing.T) {
	store, db := openTestStore(t)
	defer db.Close()

	meta := json.RawMessage(`{"summary_used":true,"retrieved":2}`)
	turn, err := store.AddTurn(context.Background(), "u1", "hello", "hi there", meta)
	if err != nil {
		t.Fatalf("AddTurn error: %v", err)
	}
	if turn.ID == 0 || turn.CreatedAt.IsZero() {
		t.Fatalf("turn not populated: %+v", turn)
	}

	turns, err := store.GetRecent(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("GetRecent error: %v", err)
	}
	if len(turns) != 1 || turns[0].Message != "hello" || turns[0].Response != "hi there" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
	if string(turns[0].Metadata) != string(meta) {
		t.Fatalf("metadata not round-tripped: %s", turns[0].Metadata)
	}
}

func TestGetRecentOrderAndLimit(t *testing.T) {
	store, db := openTestStore(t)
	defer db.Close()

	seedTurns(t, store, "u1", "one", "two", "three", "four")
	seedTurns(t, store, "u2", "other")

	turns, err := store.GetRecent(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("GetRecent error: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	// Newest first.
	if turns[0].Message != "four" || turns[1].Message != "three" || turns[2].Message != "two" {
		t.Fatalf("wrong order: %q %q %q", turns[0].Message, turns[1].Message, turns[2].Message)
	}
	for _, turn := range turns {
		if turn.UserID != "u1" {
			t.Fatalf("leaked turn for user %s", turn.UserID)
		}
	}
}

func TestGetHistorySkip(t *testing.T) {
	store, db := openTestStore(t)
	defer db.Close()

	seedTurns(t, store, "u1", "one", "two", "three")

	turns, err := store.GetHistory(context.Background(), "u1", 1, 10)
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(turns) != 2 || turns[0].Message != "two" || turns[1].Message != "one" {
		t.Fatalf("unexpected history: %+v", turns)
	}
}

func TestGetRecentEmptyHistory(t *testing.T) {
	store, db := openTestStore(t)
	defer db.Close()

	turns, err := store.GetRecent(context.Background(), "missing", 5)
	if err != nil {
		t.Fatalf("GetRecent error: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected no turns, got %d", len(turns))
	}
}

func TestAddTurnRequiresUser(t *testing.T) {
	store, db := openTestStore(t)
	defer db.Close()

	if _, err := store.AddTurn(context.Background(), "", "m", "r", nil); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestCleanOldTurns(t *testing.T) {
	store, db := openTestStore(t)
	defer db.Close()

	old := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := db.Exec(
		`INSERT INTO conversations (user_id, message, response, created_at) VALUES (?, ?, ?, ?)`,
		"u1", "stale", "stale", old,
	); err != nil {
		t.Fatalf("seed old turn: %v", err)
	}
	seedTurns(t, store, "u1", "fresh")

	removed, err := store.CleanOldTurns(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanOldTurns error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	turns, err := store.GetRecent(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("GetRecent error: %v", err)
	}
	if len(turns) != 1 || turns[0].Message != "fresh" {
		t.Fatalf("unexpected survivors: %+v", turns)
	}
}
