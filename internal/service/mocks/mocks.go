// Package mocks provides test doubles for the service layer: testify
// mocks for repositories and collaborators, and an in-memory attempt
// store that reproduces the per-attempt locking semantics of the real
// repository.
package mocks

import (
	"context"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/quest"

	"github.com/stretchr/testify/mock"
)

type MockQuestRepository struct {
	mock.Mock
}

func (m *MockQuestRepository) GetQuestByID(ctx context.Context, questID string) (*model.Quest, error) {
	args := m.Called(ctx, questID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Quest), args.Error(1)
}

func (m *MockQuestRepository) ListQuestsWithLatestAttempt(ctx context.Context, userID string) ([]*model.QuestWithAttempt, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.QuestWithAttempt), args.Error(1)
}

func (m *MockQuestRepository) CreateQuest(ctx context.Context, q *model.Quest) error {
	args := m.Called(ctx, q)
	return args.Error(0)
}

func (m *MockQuestRepository) SetQuestActive(ctx context.Context, questID string, active bool) error {
	args := m.Called(ctx, questID, active)
	return args.Error(0)
}

type MockInteractionRepository struct {
	mock.Mock
}

func (m *MockInteractionRepository) CreateInteraction(ctx context.Context, interaction *model.QuestRecoInteraction) error {
	args := m.Called(ctx, interaction)
	return args.Error(0)
}

func (m *MockInteractionRepository) MarkRecommendationClicked(ctx context.Context, userID, questID, date string) error {
	args := m.Called(ctx, userID, questID, date)
	return args.Error(0)
}

func (m *MockInteractionRepository) MarkRecommendationCleared(ctx context.Context, userID, questID, date string) error {
	args := m.Called(ctx, userID, questID, date)
	return args.Error(0)
}

func (m *MockInteractionRepository) GetRecommendedQuests(ctx context.Context, userID, date string) ([]*model.RecommendedQuest, error) {
	args := m.Called(ctx, userID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.RecommendedQuest), args.Error(1)
}

type MockStepSource struct {
	mock.Mock
}

func (m *MockStepSource) GetCumulativeSteps(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type MockPaymentStatusService struct {
	mock.Mock
}

func (m *MockPaymentStatusService) GetPaymentStatus(ctx context.Context, paymentID string) (*quest.PaymentStatus, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quest.PaymentStatus), args.Error(1)
}

type MockAttendanceService struct {
	mock.Mock
}

func (m *MockAttendanceService) HasCheckedIn(ctx context.Context, userID, date string) (bool, error) {
	args := m.Called(ctx, userID, date)
	return args.Bool(0), args.Error(1)
}

type MockGamificationLedger struct {
	mock.Mock
}

func (m *MockGamificationLedger) CreditExp(ctx context.Context, userID string, amount int, idempotencyKey string) (model.CreditResult, error) {
	args := m.Called(ctx, userID, amount, idempotencyKey)
	return args.Get(0).(model.CreditResult), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, topic string, data interface{}) error {
	args := m.Called(ctx, topic, data)
	return args.Error(0)
}
