package conversation

import (
	"context"
	"log"

	"nemochat/internal/config"
	"nemochat/internal/models"
)

// HistoryStore is the slice of the persistence store the provider reads.
// Turns come back newest first.
type HistoryStore interface {
	GetHistory(ctx context.Context, userID string, skip, limit int) ([]models.Turn, error)
}

// Summarizer produces a rolling summary for an ordered turn sequence. It never
// fails; degraded summaries are its own concern.
type Summarizer interface {
	Summarize(ctx context.Context, turns []models.Turn) string
}

// Provider reconstructs a user's short-term conversational context from
// persisted history: the last few turns plus a cached rolling summary.
type Provider struct {
	store         HistoryStore
	summarizer    Summarizer
	recentWindow  int
	summaryWindow int
}

func NewProvider(store HistoryStore, summarizer Summarizer, cfg *config.Config) *Provider {
	return &Provider{
		store:         store,
		summarizer:    summarizer,
		recentWindow:  cfg.Memory.RecentWindow,
		summaryWindow: cfg.Memory.SummaryWindow,
	}
}

// GetContext returns the context for one request. It fails soft: any store
// error degrades to an empty context rather than aborting the user's turn.
func (p *Provider) GetContext(ctx context.Context, userID string) models.ConversationContext {
	history, err := p.store.GetHistory(ctx, userID, 0, p.summaryWindow)
	if err != nil {
		log.Printf("conversation: get history for %s: %v", userID, err)
		return models.ConversationContext{}
	}
	if len(history) == 0 {
		return models.ConversationContext{}
	}

	// The store returns newest first; the prompt wants oldest first.
	chronological := make([]models.Turn, len(history))
	for i, turn := range history {
		chronological[len(history)-1-i] = turn
	}

	recent := chronological
	if len(recent) > p.recentWindow {
		recent = recent[len(recent)-p.recentWindow:]
	}

	return models.ConversationContext{
		Summary:     p.summarizer.Summarize(ctx, chronological),
		RecentTurns: recent,
	}
}
