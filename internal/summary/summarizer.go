package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"

	"nemochat/internal/config"
	"nemochat/internal/models"
)

// FallbackSummary replaces the rolling summary whenever summarization fails.
// A summary is a quality enhancement, never a hard dependency of the turn.
const FallbackSummary = "Error generating conversation summary."

const (
	summarySystemPrompt = "Create a brief, focused summary of the key points in this conversation."
	summaryMaxTokens    = 200
)

// Generator is the slice of the generation client the summarizer needs.
type Generator interface {
	GenerateWith(ctx context.Context, messages []models.PromptMessage, temperature float64, maxTokens int) (string, error)
}

// Summarizer computes rolling conversation summaries through the bounded
// cache, using cooler and shorter sampling than the main conversation.
type Summarizer struct {
	generator   Generator
	cache       *Cache
	temperature float64
}

func NewSummarizer(generator Generator, cfg *config.Config) *Summarizer {
	return &Summarizer{
		generator:   generator,
		cache:       NewCache(cfg.Memory.MaxCacheItems, cfg.Memory.CacheCleanupThreshold),
		temperature: cfg.ModelParams.SummaryTemperature,
	}
}

// Cache exposes the underlying summary cache.
func (s *Summarizer) Cache() *Cache {
	return s.cache
}

// Summarize returns a natural-language summary of the given turns. Errors are
// swallowed here: on any failure the fallback string is returned instead.
func (s *Summarizer) Summarize(ctx context.Context, turns []models.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	result, err := s.cache.GetOrCompute(Fingerprint(turns), func() (string, error) {
		return s.generate(ctx, turns)
	})
	if err != nil {
		log.Printf("summary: generate failed: %v", err)
		return FallbackSummary
	}
	return result
}

func (s *Summarizer) generate(ctx context.Context, turns []models.Turn) (string, error) {
	messages := []models.PromptMessage{
		{Role: models.RoleSystem, Content: summarySystemPrompt},
		{Role: models.RoleUser, Content: FormatTranscript(turns)},
	}
	return s.generator.GenerateWith(ctx, messages, s.temperature, summaryMaxTokens)
}

// Fingerprint derives a deterministic cache key from an ordered turn sequence.
func Fingerprint(turns []models.Turn) string {
	sum := sha256.Sum256([]byte(FormatTranscript(turns)))
	return hex.EncodeToString(sum[:])
}

// FormatTranscript renders turns as alternating "User:"/"Assistant:" lines.
func FormatTranscript(turns []models.Turn) string {
	lines := make([]string, 0, 2*len(turns))
	for _, turn := range turns {
		lines = append(lines, "User: "+turn.Message, "Assistant: "+turn.Response)
	}
	return strings.Join(lines, "\n")
}
