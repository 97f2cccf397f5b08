package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"nemochat/internal/models"
)

// DefaultErrorReply is the only failure text an end user ever sees.
const DefaultErrorReply = "I apologize, but I encountered an error processing your request."

// ErrNotInitialized is returned by Process before Initialize has completed.
var ErrNotInitialized = errors.New("chat: orchestrator not initialized")

// ContextProvider reconstructs a user's short-term context. It never fails;
// degraded context is its own concern.
type ContextProvider interface {
	GetContext(ctx context.Context, userID string) models.ConversationContext
}

// VectorIndex is the retrieval collaborator: one-time index setup plus
// per-query similarity search.
type VectorIndex interface {
	Init(ctx context.Context) error
	SimilaritySearch(ctx context.Context, query string) ([]models.RetrievalResult, error)
}

// Generator is the generation collaborator.
type Generator interface {
	Initialize(ctx context.Context) error
	Generate(ctx context.Context, messages []models.PromptMessage) (string, error)
	Close() error
}

// TurnStore persists completed exchanges.
type TurnStore interface {
	AddTurn(ctx context.Context, userID, message, response string, metadata json.RawMessage) (*models.Turn, error)
}

// Orchestrator drives one end-to-end turn: context and retrieval in parallel,
// prompt assembly, generation, then best-effort persistence. All collaborators
// are injected; the orchestrator owns no global state.
type Orchestrator struct {
	contexts  ContextProvider
	index     VectorIndex
	generator Generator
	store     TurnStore
	policies  PolicyTable

	mu          sync.Mutex
	initialized bool
}

func New(contexts ContextProvider, index VectorIndex, generator Generator, store TurnStore, policies PolicyTable) *Orchestrator {
	return &Orchestrator{
		contexts:  contexts,
		index:     index,
		generator: generator,
		store:     store,
		policies:  policies,
	}
}

// Initialize sets up the collaborators, vector index first, then the
// generation client. On a partial failure the already-initialized resources
// are released before the error propagates.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return nil
	}

	log.Printf("chat: initializing vector index...")
	if err := o.index.Init(ctx); err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}

	log.Printf("chat: initializing generation client...")
	if err := o.generator.Initialize(ctx); err != nil {
		o.generator.Close()
		return fmt.Errorf("init generation client: %w", err)
	}

	o.initialized = true
	log.Printf("chat: initialization complete")
	return nil
}

// Close releases the generation client. Safe to call multiple times.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.initialized = false
	return o.generator.Close()
}

func (o *Orchestrator) isInitialized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized
}

// Process runs one turn and returns the assistant's reply. Apart from the
// not-initialized programming error, the caller receives either a real answer
// or DefaultErrorReply, never a raw internal error.
func (o *Orchestrator) Process(ctx context.Context, userID, message string) (string, error) {
	if !o.isInitialized() {
		return "", ErrNotInitialized
	}

	requestID := uuid.NewString()
	log.Printf("chat: [%s] processing message for user %s", requestID, userID)

	// Context reconstruction and similarity search are independent remote
	// calls; overlap their latencies.
	var (
		wg           sync.WaitGroup
		convCtx      models.ConversationContext
		results      []models.RetrievalResult
		retrievalErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		convCtx = o.contexts.GetContext(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		results, retrievalErr = o.index.SimilaritySearch(ctx, message)
	}()
	wg.Wait()

	if retrievalErr != nil {
		log.Printf("chat: [%s] retrieval failed: %v", requestID, retrievalErr)
		if o.policies.ActionFor(StageRetrieval) == Apologize {
			return DefaultErrorReply, nil
		}
		results = nil
	}

	response, err := o.generator.Generate(ctx, buildPrompt(convCtx, results, message))
	if err != nil {
		log.Printf("chat: [%s] generation failed: %v", requestID, err)
		return DefaultErrorReply, nil
	}

	if err := o.persistTurn(ctx, requestID, userID, message, response, convCtx, results); err != nil {
		log.Printf("chat: [%s] persist turn: %v", requestID, err)
		if o.policies.ActionFor(StagePersistence) == Apologize {
			return DefaultErrorReply, nil
		}
	}

	log.Printf("chat: [%s] turn completed", requestID)
	return response, nil
}

// buildPrompt assembles the model input: one system message carrying the
// rolling summary and the flattened retrieved passages, one user/assistant
// pair per recent turn in chronological order, then the new user message.
func buildPrompt(convCtx models.ConversationContext, results []models.RetrievalResult, message string) []models.PromptMessage {
	passages := make([]string, 0, len(results))
	for _, r := range results {
		passages = append(passages, r.Text)
	}
	system := fmt.Sprintf(
		"You are a helpful assistant.\nPrevious conversation summary: %s\nRelevant context: %s",
		convCtx.Summary, strings.Join(passages, " "),
	)

	messages := make([]models.PromptMessage, 0, 2+2*len(convCtx.RecentTurns))
	messages = append(messages, models.PromptMessage{Role: models.RoleSystem, Content: system})
	for _, turn := range convCtx.RecentTurns {
		messages = append(messages,
			models.PromptMessage{Role: models.RoleUser, Content: turn.Message},
			models.PromptMessage{Role: models.RoleAssistant, Content: turn.Response},
		)
	}
	return append(messages, models.PromptMessage{Role: models.RoleUser, Content: message})
}

// persistTurn saves the exchange. It is always attempted; what a failure means
// for the response is the policy table's call, not this function's.
func (o *Orchestrator) persistTurn(ctx context.Context, requestID, userID, message, response string, convCtx models.ConversationContext, results []models.RetrievalResult) error {
	metadata, err := json.Marshal(map[string]any{
		"request_id":   requestID,
		"retrieved":    len(results),
		"summary_used": convCtx.Summary != "",
	})
	if err != nil {
		log.Printf("chat: [%s] marshal metadata: %v", requestID, err)
		metadata = nil
	}
	_, err = o.store.AddTurn(ctx, userID, message, response, metadata)
	return err
}
