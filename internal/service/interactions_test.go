package service

import (
	"context"
	"testing"
	"time"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInteractionLogger(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	t.Run("Records events and flips recommendation flags", func(t *testing.T) {
		repo := new(mocks.MockInteractionRepository)
		pub := new(mocks.MockEventPublisher)

		repo.On("CreateInteraction", mock.Anything, mock.Anything).Return(nil).Times(3)
		repo.On("MarkRecommendationClicked", mock.Anything, "U1", "Q1", mock.Anything).Return(nil).Once()
		repo.On("MarkRecommendationCleared", mock.Anything, "U1", "Q1", mock.Anything).Return(nil).Once()
		pub.On("Publish", mock.Anything, "quest.interactions", mock.Anything).Return(nil).Times(3)

		l := NewInteractionLogger(repo, pub, loc)
		l.Start(context.Background())

		l.LogInteraction("U1", "Q1", model.EventImpression)
		l.LogInteraction("U1", "Q1", model.EventDetailClick)
		l.LogInteraction("U1", "Q1", model.EventComplete)
		l.Stop()

		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("Repository failure never surfaces", func(t *testing.T) {
		repo := new(mocks.MockInteractionRepository)

		repo.On("CreateInteraction", mock.Anything, mock.Anything).
			Return(assert.AnError).Once()

		l := NewInteractionLogger(repo, nil, loc)
		l.Start(context.Background())

		l.LogInteraction("U1", "Q1", model.EventImpression)
		l.Stop()

		repo.AssertExpectations(t)
	})

	t.Run("Recommended quests for today", func(t *testing.T) {
		repo := new(mocks.MockInteractionRepository)
		expected := []*model.RecommendedQuest{
			{QuestID: "Q1", IsClick: true},
			{QuestID: "Q2"},
		}
		repo.On("GetRecommendedQuests", mock.Anything, "U1", mock.Anything).Return(expected, nil)

		l := NewInteractionLogger(repo, nil, loc)

		got, err := l.RecommendedQuests(context.Background(), "U1")
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	})
}
