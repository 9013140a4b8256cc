package mocks

import (
	"context"
	"sync"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/repository"
)

// AttemptStore is an in-memory AttemptRepository. UpdateAttempt holds a
// store-wide mutex across the apply callback, mirroring the row lock
// the Postgres implementation takes, so tests can race transitions and
// see real serialization.
type AttemptStore struct {
	mu         sync.Mutex
	attempts   map[string]model.QuestAttempt
	dispatches map[string]model.RewardDispatch
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:   make(map[string]model.QuestAttempt),
		dispatches: make(map[string]model.RewardDispatch),
	}
}

func (s *AttemptStore) GetAttemptByID(_ context.Context, attemptID string) (*model.QuestAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := a
	return &copied, nil
}

func (s *AttemptStore) GetLatestAttempt(_ context.Context, userID, questID, periodKey string) (*model.QuestAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *model.QuestAttempt
	for id := range s.attempts {
		a := s.attempts[id]
		if a.UserID != userID || a.QuestID != questID || a.PeriodKey != periodKey {
			continue
		}
		if latest == nil || a.StartedAt.After(latest.StartedAt) {
			copied := a
			latest = &copied
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt *model.QuestAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.attempts {
		if a.UserID == attempt.UserID && a.QuestID == attempt.QuestID && a.PeriodKey == attempt.PeriodKey {
			return repository.ErrAttemptExists
		}
	}
	s.attempts[attempt.ID] = *attempt
	return nil
}

func (s *AttemptStore) UpdateAttempt(_ context.Context, attemptID string, apply func(current *model.QuestAttempt) (*model.AttemptMutation, error)) (*model.QuestAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	current := a
	m, err := apply(&current)
	if err != nil {
		return nil, err
	}

	if m.Reward != nil {
		if _, exists := s.dispatches[m.Reward.AttemptID]; exists {
			return nil, repository.ErrRewardAlreadyDispatched
		}
		s.dispatches[m.Reward.AttemptID] = *m.Reward
	}

	a.Status = m.Status
	a.ProgressCount = m.ProgressCount
	a.ProofURL = m.ProofURL
	a.SubmittedAt = m.SubmittedAt
	a.ApprovedAt = m.ApprovedAt
	s.attempts[attemptID] = a

	updated := a
	return &updated, nil
}

// Dispatches returns the recorded reward dispatches, keyed by attempt.
func (s *AttemptStore) Dispatches() map[string]model.RewardDispatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.RewardDispatch, len(s.dispatches))
	for k, v := range s.dispatches {
		out[k] = v
	}
	return out
}
