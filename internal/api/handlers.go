package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nemochat/internal/models"
)

// Chatter runs one conversational turn, typically the per-user dispatcher.
type Chatter interface {
	Submit(ctx context.Context, userID, message string) (string, error)
}

// HistoryReader serves persisted turns.
type HistoryReader interface {
	GetRecent(ctx context.Context, userID string, limit int) ([]models.Turn, error)
}

// DocumentWriter ingests passages into the vector index.
type DocumentWriter interface {
	AddDocument(ctx context.Context, id, text string) error
}

// Handler wires HTTP routes to the chat pipeline.
type Handler struct {
	chat    Chatter
	history HistoryReader
	docs    DocumentWriter
}

func NewHandler(chat Chatter, history HistoryReader, docs DocumentWriter) *Handler {
	return &Handler{chat: chat, history: history, docs: docs}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/chat", h.postChat)
	api.GET("/history/:user_id", h.getHistory)
	api.POST("/documents", h.postDocument)
}

func (h *Handler) postChat(c *gin.Context) {
	var req struct {
		UserID  string `json:"user_id"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and message are required"})
		return
	}

	response, err := h.chat.Submit(c.Request.Context(), req.UserID, req.Message)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": response})
}

func (h *Handler) getHistory(c *gin.Context) {
	userID := c.Param("user_id")
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	turns, err := h.history.GetRecent(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

func (h *Handler) postDocument(c *gin.Context) {
	var req struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and text are required"})
		return
	}

	if err := h.docs.AddDocument(c.Request.Context(), req.ID, req.Text); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}
