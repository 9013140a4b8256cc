package api

import (
	"errors"
	"net/http"
	"time"

	"campus_quest_engine/internal/middleware"
	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/quest"
	"campus_quest_engine/internal/service"
	"campus_quest_engine/pkg/auth"
	"campus_quest_engine/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type questRoutes struct {
	qs service.AttemptServiceI
	a  *auth.JWTAuth
}

func NewQuestRoutes(handler *gin.RouterGroup, qs service.AttemptServiceI, a *auth.JWTAuth) {
	r := &questRoutes{qs: qs, a: a}

	quests := handler.Group("/quests")
	quests.Use(a.Middleware())
	{
		quests.GET("", r.ListQuests)
		quests.POST("/:quest_id/start", r.StartAttempt)

		admin := quests.Group("/admin")
		admin.Use(middleware.AdminOnly())
		{
			admin.POST("/new", r.CreateQuest)
			admin.PATCH("/:quest_id/active", r.SetQuestActive)
		}
	}

	attempts := handler.Group("/attempts")
	attempts.Use(a.Middleware())
	{
		attempts.POST("/:attempt_id/verify", r.Verify)
		attempts.POST("/:attempt_id/submit", r.Submit)
		attempts.POST("/:attempt_id/approve", middleware.AdminOnly(), r.Approve)
	}
}

type attemptResponse struct {
	AttemptID     string     `json:"attempt_id"`
	QuestID       string     `json:"quest_id"`
	Status        string     `json:"status"`
	ProgressCount int        `json:"progress_count"`
	TargetCount   int        `json:"target_count"`
	ProofURL      *string    `json:"proof_url,omitempty"`
	PeriodScope   string     `json:"period_scope"`
	PeriodKey     string     `json:"period_key"`
	StartedAt     time.Time  `json:"started_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
}

type questListItem struct {
	QuestID      string `json:"quest_id"`
	Kind         string `json:"kind"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	VerifyMethod string `json:"verify_method"`
	VerifyParams string `json:"verify_params,omitempty"`
	RewardExp    int    `json:"reward_exp"`
	TargetCount  int    `json:"target_count"`
	PeriodScope  string `json:"period_scope"`

	UserStatus    string `json:"user_status"`
	AttemptID     string `json:"attempt_id,omitempty"`
	ProgressCount int    `json:"progress_count"`
}

func toAttemptResponse(a *model.QuestAttempt) attemptResponse {
	return attemptResponse{
		AttemptID:     a.ID,
		QuestID:       a.QuestID,
		Status:        string(a.Status),
		ProgressCount: a.ProgressCount,
		TargetCount:   a.TargetCount,
		ProofURL:      a.ProofURL,
		PeriodScope:   string(a.PeriodScope),
		PeriodKey:     a.PeriodKey,
		StartedAt:     a.StartedAt,
		SubmittedAt:   a.SubmittedAt,
		ApprovedAt:    a.ApprovedAt,
	}
}

func (r *questRoutes) ListQuests(c *gin.Context) {
	log := logger.Logger()

	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rows, err := r.qs.ListQuests(c.Request.Context(), userID)
	if err != nil {
		log.Error("failed to list quests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list quests"})
		return
	}

	items := make([]questListItem, len(rows))
	for i, row := range rows {
		item := questListItem{
			QuestID:      row.Quest.ID,
			Kind:         string(row.Quest.Kind),
			Title:        row.Quest.Title,
			Description:  row.Quest.Description,
			Category:     string(row.Quest.Category),
			VerifyMethod: string(row.Quest.VerifyMethod),
			VerifyParams: row.Quest.VerifyParams,
			RewardExp:    row.Quest.RewardExp,
			TargetCount:  row.Quest.TargetCount,
			PeriodScope:  string(row.Quest.PeriodScope),
			UserStatus:   string(model.StatusDeactive),
		}
		if row.Attempt != nil {
			item.UserStatus = string(row.Attempt.Status)
			item.AttemptID = row.Attempt.ID
			item.ProgressCount = row.Attempt.ProgressCount
		}
		items[i] = item
	}

	c.JSON(http.StatusOK, gin.H{"quests": items})
}

func (r *questRoutes) StartAttempt(c *gin.Context) {
	log := logger.Logger()

	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	questID := c.Param("quest_id")

	attempt, err := r.qs.StartAttempt(c.Request.Context(), userID, questID)
	if err != nil {
		log.Error("failed to start attempt",
			zap.String("quest_id", questID), zap.Error(err))
		switch {
		case errors.Is(err, service.ErrQuestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		case errors.Is(err, service.ErrQuestInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": "quest is not active"})
		case errors.Is(err, service.ErrAttemptAlreadyActive):
			c.JSON(http.StatusConflict, gin.H{"error": "attempt already exists for this period"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start attempt"})
		}
		return
	}

	c.JSON(http.StatusCreated, toAttemptResponse(attempt))
}

func (r *questRoutes) Verify(c *gin.Context) {
	log := logger.Logger()

	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	attemptID := c.Param("attempt_id")

	var proof quest.Proof
	if err := c.ShouldBindJSON(&proof); err != nil {
		log.Info("invalid proof payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proof payload"})
		return
	}

	attempt, err := r.qs.Verify(c.Request.Context(), userID, attemptID, proof)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		case errors.Is(err, service.ErrInvalidStateTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "attempt is not in progress"})
		case errors.Is(err, service.ErrVerificationRejected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrVerificationPending):
			c.JSON(http.StatusAccepted, gin.H{"error": err.Error(), "retry": true})
		default:
			log.Error("failed to verify attempt",
				zap.String("attempt_id", attemptID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify attempt"})
		}
		return
	}

	c.JSON(http.StatusOK, toAttemptResponse(attempt))
}

func (r *questRoutes) Submit(c *gin.Context) {
	log := logger.Logger()

	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	attemptID := c.Param("attempt_id")

	attempt, err := r.qs.Submit(c.Request.Context(), userID, attemptID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		case errors.Is(err, service.ErrInvalidStateTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "attempt is not cleared"})
		case errors.Is(err, service.ErrProofRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "proof url is required"})
		case errors.Is(err, service.ErrAlreadyCredited):
			c.JSON(http.StatusConflict, gin.H{"error": "reward already credited"})
		default:
			log.Error("failed to submit attempt",
				zap.String("attempt_id", attemptID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit attempt"})
		}
		return
	}

	c.JSON(http.StatusOK, toAttemptResponse(attempt))
}

func (r *questRoutes) Approve(c *gin.Context) {
	log := logger.Logger()

	attemptID := c.Param("attempt_id")

	attempt, err := r.qs.Approve(c.Request.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		case errors.Is(err, service.ErrInvalidStateTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "attempt is not submitted"})
		case errors.Is(err, service.ErrAlreadyCredited):
			c.JSON(http.StatusConflict, gin.H{"error": "reward already credited"})
		default:
			log.Error("failed to approve attempt",
				zap.String("attempt_id", attemptID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve attempt"})
		}
		return
	}

	c.JSON(http.StatusOK, toAttemptResponse(attempt))
}

type createQuestRequest struct {
	Kind         string `json:"kind" binding:"required"`
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description"`
	Category     string `json:"category" binding:"required"`
	VerifyMethod string `json:"verify_method" binding:"required"`
	VerifyParams string `json:"verify_params"`
	RewardExp    int    `json:"reward_exp" binding:"required"`
	TargetCount  int    `json:"target_count" binding:"required"`
	PeriodScope  string `json:"period_scope" binding:"required"`
}

func (r *questRoutes) CreateQuest(c *gin.Context) {
	log := logger.Logger()

	var req createQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	questID, err := r.qs.CreateQuest(c.Request.Context(), &model.Quest{
		Kind:         model.QuestKind(req.Kind),
		Title:        req.Title,
		Description:  req.Description,
		Category:     model.QuestCategory(req.Category),
		VerifyMethod: model.VerifyMethod(req.VerifyMethod),
		VerifyParams: req.VerifyParams,
		RewardExp:    req.RewardExp,
		TargetCount:  req.TargetCount,
		PeriodScope:  model.PeriodScope(req.PeriodScope),
		Active:       true,
	})
	if err != nil {
		log.Error("failed to create quest", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"quest_id": questID})
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (r *questRoutes) SetQuestActive(c *gin.Context) {
	log := logger.Logger()

	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	questID := c.Param("quest_id")
	if err := r.qs.SetQuestActive(c.Request.Context(), questID, *req.Active); err != nil {
		if errors.Is(err, service.ErrQuestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
			return
		}
		log.Error("failed to update quest", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update quest"})
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}
