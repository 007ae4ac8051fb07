package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coach-chat/internal/feed"
	"coach-chat/internal/middleware"
	"coach-chat/internal/models"
)

const maxHistoryLimit = 200

// ConversationSource is the read side of the message gateway used by REST endpoints.
type ConversationSource interface {
	Conversations(ctx context.Context, userID string) ([]models.Message, error)
	FetchMessages(ctx context.Context, scope models.Scope, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, scope models.Scope, readerID string) error
}

// ConversationHandler serves conversation lists, unread counts and feed history.
type ConversationHandler struct {
	source ConversationSource
	limit  int
}

// NewConversationHandler builds a ConversationHandler. limit is the default history size.
func NewConversationHandler(source ConversationSource, limit int) *ConversationHandler {
	if limit <= 0 {
		limit = feed.DefaultLimit
	}
	return &ConversationHandler{source: source, limit: limit}
}

// ListConversations returns one summary per direct conversation, newest first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)

	msgs, err := h.source.Conversations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to load conversations")
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": feed.BuildConversationSummaries(userID, msgs)})
}

// UnreadCount returns the number of unread direct messages addressed to the user.
func (h *ConversationHandler) UnreadCount(c *gin.Context) {
	userID := middleware.UserID(c)

	msgs, err := h.source.Conversations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to load conversations")
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": feed.UnreadTotal(userID, msgs)})
}

// MarkRead marks everything the peer sent to the user as read.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID := middleware.UserID(c)
	scope := models.DirectConversation(userID, c.Param("peer_id"))
	if err := scope.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.source.MarkRead(c.Request.Context(), scope, userID); err != nil {
		respondError(c, err, "failed to mark conversation read")
		return
	}
	c.Status(http.StatusNoContent)
}

// History returns the latest messages of a feed oldest first, grouped by day in the
// time zone given by tz (UTC by default).
func (h *ConversationHandler) History(c *gin.Context) {
	userID := middleware.UserID(c)
	scope, err := models.ParseScope(c.Param("scope"), userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := h.limit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	loc := time.UTC
	if tz := c.Query("tz"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time zone"})
			return
		}
	}

	records, err := h.source.FetchMessages(c.Request.Context(), scope, limit)
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}
	ordered := make([]models.Message, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		ordered = append(ordered, records[i])
	}
	store := feed.NewStore()
	store.Initialize(ordered)

	days := feed.GroupByDay(store.Snapshot(), loc)
	if days == nil {
		days = []models.DayGroup{}
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "days": days})
}
