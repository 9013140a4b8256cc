package api

import (
	"net/http"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/service"
	"campus_quest_engine/pkg/auth"
	"campus_quest_engine/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type interactionRoutes struct {
	il service.InteractionLoggerI
	a  *auth.JWTAuth
}

func NewInteractionRoutes(handler *gin.RouterGroup, il service.InteractionLoggerI, a *auth.JWTAuth) {
	r := &interactionRoutes{il: il, a: a}

	h := handler.Group("/recommendations")
	h.Use(a.Middleware())
	{
		h.GET("/quests", r.RecommendedQuests)
		h.POST("/interactions", r.LogInteraction)
	}
}

type logInteractionRequest struct {
	QuestID string `json:"quest_id" binding:"required"`
	Event   string `json:"event" binding:"required"`
}

// LogInteraction accepts client-side funnel events (impressions and
// detail clicks; start/complete are recorded by the engine itself).
// Always 202: logging is fire-and-forget.
func (r *interactionRoutes) LogInteraction(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req logInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := model.InteractionEvent(req.Event)
	if !event.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event"})
		return
	}

	r.il.LogInteraction(userID, req.QuestID, event)
	c.JSON(http.StatusAccepted, gin.H{})
}

type recommendedQuestResponse struct {
	QuestID   string   `json:"quest_id"`
	IsClick   bool     `json:"is_click"`
	IsCleared bool     `json:"is_cleared"`
	Events    []string `json:"events"`
}

func (r *interactionRoutes) RecommendedQuests(c *gin.Context) {
	log := logger.Logger()

	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	quests, err := r.il.RecommendedQuests(c.Request.Context(), userID)
	if err != nil {
		log.Error("failed to get recommended quests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get recommended quests"})
		return
	}

	items := make([]recommendedQuestResponse, len(quests))
	for i, q := range quests {
		events := make([]string, len(q.Events))
		for j, e := range q.Events {
			events[j] = string(e)
		}
		items[i] = recommendedQuestResponse{
			QuestID:   q.QuestID,
			IsClick:   q.IsClick,
			IsCleared: q.IsCleared,
			Events:    events,
		}
	}

	c.JSON(http.StatusOK, gin.H{"quests": items})
}
