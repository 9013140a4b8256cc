package service

import (
	"context"
	"errors"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/quest"
)

var (
	ErrQuestNotFound   = errors.New("quest not found")
	ErrQuestInactive   = errors.New("quest is not active")
	ErrAttemptNotFound = errors.New("attempt not found")

	// ErrAttemptAlreadyActive: an attempt (running or terminal) already
	// exists for this user/quest/period key.
	ErrAttemptAlreadyActive = errors.New("attempt already exists for this period")

	ErrInvalidStateTransition = errors.New("invalid attempt state transition")
	ErrVerificationRejected   = errors.New("verification rejected")
	ErrVerificationPending    = errors.New("verification pending, retry later")
	ErrProofRequired          = errors.New("proof url is required before submit")
	ErrAlreadyCredited        = errors.New("reward already credited for this attempt")
)

type Service struct {
	*AttemptService
	*InteractionLogger
}

func NewService(attemptService *AttemptService, interactionLogger *InteractionLogger) *Service {
	return &Service{
		AttemptService:    attemptService,
		InteractionLogger: interactionLogger,
	}
}

type AttemptServiceI interface {
	ListQuests(ctx context.Context, userID string) ([]*model.QuestWithAttempt, error)
	StartAttempt(ctx context.Context, userID, questID string) (*model.QuestAttempt, error)
	Verify(ctx context.Context, userID, attemptID string, proof quest.Proof) (*model.QuestAttempt, error)
	Submit(ctx context.Context, userID, attemptID string) (*model.QuestAttempt, error)
	Approve(ctx context.Context, attemptID string) (*model.QuestAttempt, error)
	CreateQuest(ctx context.Context, q *model.Quest) (string, error)
	SetQuestActive(ctx context.Context, questID string, active bool) error
}

type InteractionLoggerI interface {
	LogInteraction(userID, questID string, event model.InteractionEvent)
	RecommendedQuests(ctx context.Context, userID string) ([]*model.RecommendedQuest, error)
}

type QuestRepository interface {
	GetQuestByID(ctx context.Context, questID string) (*model.Quest, error)
	ListQuestsWithLatestAttempt(ctx context.Context, userID string) ([]*model.QuestWithAttempt, error)
	CreateQuest(ctx context.Context, q *model.Quest) error
	SetQuestActive(ctx context.Context, questID string, active bool) error
}

type AttemptRepository interface {
	GetAttemptByID(ctx context.Context, attemptID string) (*model.QuestAttempt, error)
	GetLatestAttempt(ctx context.Context, userID, questID, periodKey string) (*model.QuestAttempt, error)
	CreateAttempt(ctx context.Context, attempt *model.QuestAttempt) error
	// UpdateAttempt runs apply against the exclusively locked attempt
	// row and commits the returned mutation atomically, including the
	// mutation's reward dispatch record when present. An apply error
	// rolls everything back and is returned unchanged.
	UpdateAttempt(ctx context.Context, attemptID string, apply func(current *model.QuestAttempt) (*model.AttemptMutation, error)) (*model.QuestAttempt, error)
}

type InteractionRepository interface {
	CreateInteraction(ctx context.Context, interaction *model.QuestRecoInteraction) error
	MarkRecommendationClicked(ctx context.Context, userID, questID, date string) error
	MarkRecommendationCleared(ctx context.Context, userID, questID, date string) error
	GetRecommendedQuests(ctx context.Context, userID, date string) ([]*model.RecommendedQuest, error)
}

// External collaborators. Implemented elsewhere; the engine depends on
// these contracts only.
type (
	StepSource interface {
		GetCumulativeSteps(ctx context.Context, userID string) (int, error)
	}

	PaymentStatusService interface {
		GetPaymentStatus(ctx context.Context, paymentID string) (*quest.PaymentStatus, error)
	}

	AttendanceService interface {
		HasCheckedIn(ctx context.Context, userID, date string) (bool, error)
	}

	GamificationLedger interface {
		CreditExp(ctx context.Context, userID string, amount int, idempotencyKey string) (model.CreditResult, error)
	}

	EventPublisher interface {
		Publish(ctx context.Context, topic string, data interface{}) error
	}
)
