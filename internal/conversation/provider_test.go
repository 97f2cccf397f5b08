package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"nemochat/internal/config"
	"nemochat/internal/models"
)

type fakeStore struct {
	turns []models.Turn // newest first, as the real store returns them
	err   error
}

func (f *fakeStore) GetHistory(ctx context.Context, userID string, skip, limit int) ([]models.Turn, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.turns) {
		return f.turns[:limit], nil
	}
	return f.turns, nil
}

type fakeSummarizer struct {
	summary string
	seen    []models.Turn
}

func (f *fakeSummarizer) Summarize(ctx context.Context, turns []models.Turn) string {
	f.seen = turns
	return f.summary
}

func providerConfig() *config.Config {
	return &config.Config{
		Memory: config.MemoryConfig{RecentWindow: 3, SummaryWindow: 10},
	}
}

func newestFirst(n int) []models.Turn {
	turns := make([]models.Turn, n)
	for i := range turns {
		turns[i] = models.Turn{
			Message:  fmt.Sprintf("m%d", n-i),
			Response: fmt.Sprintf("r%d", n-i),
		}
	}
	return turns
}

func TestGetContextEmptyHistory(t *testing.T) {
	p := NewProvider(&fakeStore{}, &fakeSummarizer{summary: "unused"}, providerConfig())

	got := p.GetContext(context.Background(), "u1")
	if got.Summary != "" || len(got.RecentTurns) != 0 {
		t.Fatalf("expected empty context, got %+v", got)
	}
}

func TestGetContextFailsSoftOnStoreError(t *testing.T) {
	p := NewProvider(&fakeStore{err: errors.New("db down")}, &fakeSummarizer{summary: "unused"}, providerConfig())

	got := p.GetContext(context.Background(), "u1")
	if got.Summary != "" || len(got.RecentTurns) != 0 {
		t.Fatalf("expected empty context on error, got %+v", got)
	}
}

func TestGetContextWindowAndOrder(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "five turns so far"}
	p := NewProvider(&fakeStore{turns: newestFirst(5)}, summarizer, providerConfig())

	got := p.GetContext(context.Background(), "u1")
	if got.Summary != "five turns so far" {
		t.Fatalf("summary not propagated: %q", got.Summary)
	}
	if len(got.RecentTurns) != 3 {
		t.Fatalf("expected window of 3, got %d", len(got.RecentTurns))
	}
	// Oldest first within the window.
	if got.RecentTurns[0].Message != "m3" || got.RecentTurns[2].Message != "m5" {
		t.Fatalf("wrong window order: %+v", got.RecentTurns)
	}
	// The summarizer sees the full fetched history, chronological.
	if len(summarizer.seen) != 5 || summarizer.seen[0].Message != "m1" {
		t.Fatalf("summarizer saw wrong turns: %+v", summarizer.seen)
	}
}

func TestGetContextShortHistory(t *testing.T) {
	p := NewProvider(&fakeStore{turns: newestFirst(2)}, &fakeSummarizer{summary: "s"}, providerConfig())

	got := p.GetContext(context.Background(), "u1")
	if len(got.RecentTurns) != 2 {
		t.Fatalf("expected min(len,3)=2 turns, got %d", len(got.RecentTurns))
	}
	if got.RecentTurns[0].Message != "m1" || got.RecentTurns[1].Message != "m2" {
		t.Fatalf("wrong order: %+v", got.RecentTurns)
	}
}
