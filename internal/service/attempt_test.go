package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/quest"
	"campus_quest_engine/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sinkStub struct {
	mu     sync.Mutex
	events []model.InteractionEvent
}

func (s *sinkStub) LogInteraction(_, _ string, event model.InteractionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *sinkStub) logged() []model.InteractionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.InteractionEvent, len(s.events))
	copy(out, s.events)
	return out
}

type testEnv struct {
	svc        *AttemptService
	quests     *mocks.MockQuestRepository
	attempts   *mocks.AttemptStore
	steps      *mocks.MockStepSource
	payments   *mocks.MockPaymentStatusService
	attendance *mocks.MockAttendanceService
	ledger     *mocks.MockGamificationLedger
	sink       *sinkStub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	env := &testEnv{
		quests:     new(mocks.MockQuestRepository),
		attempts:   mocks.NewAttemptStore(),
		steps:      new(mocks.MockStepSource),
		payments:   new(mocks.MockPaymentStatusService),
		attendance: new(mocks.MockAttendanceService),
		ledger:     new(mocks.MockGamificationLedger),
		sink:       &sinkStub{},
	}
	env.svc = NewAttemptService(
		env.quests,
		env.attempts,
		NewRewardDispatcher(env.ledger),
		Collaborators{
			Steps:      env.steps,
			Payments:   env.payments,
			Attendance: env.attendance,
		},
		env.sink,
		loc,
	)
	return env
}

func stepsQuest() *model.Quest {
	return &model.Quest{
		ID:           "Q-STEPS",
		Title:        "Walk 10,000 steps",
		VerifyMethod: model.VerifySteps,
		RewardExp:    50,
		TargetCount:  10000,
		PeriodScope:  model.ScopeDaily,
		Active:       true,
	}
}

func gpsQuest() *model.Quest {
	return &model.Quest{
		ID:           "Q-GPS",
		Title:        "Visit the library",
		VerifyMethod: model.VerifyGPS,
		VerifyParams: `{"lat": 37.5665, "lng": 126.9780, "radius_m": 100}`,
		RewardExp:    30,
		TargetCount:  1,
		PeriodScope:  model.ScopeAny,
		Active:       true,
	}
}

func uploadQuest() *model.Quest {
	return &model.Quest{
		ID:           "Q-UPLOAD",
		Title:        "Share your study plan",
		VerifyMethod: model.VerifyUpload,
		RewardExp:    100,
		TargetCount:  1,
		PeriodScope:  model.ScopeAny,
		Active:       true,
	}
}

func TestStartAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates in_progress attempt with step baseline", func(t *testing.T) {
		env := newTestEnv(t)
		q := stepsQuest()
		env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)
		env.steps.On("GetCumulativeSteps", mock.Anything, "U1").Return(50000, nil)

		attempt, err := env.svc.StartAttempt(ctx, "U1", q.ID)
		require.NoError(t, err)

		assert.Equal(t, model.StatusInProgress, attempt.Status)
		assert.Equal(t, 0, attempt.ProgressCount)
		assert.Equal(t, 10000, attempt.TargetCount)
		assert.Equal(t, 50000, attempt.StepBaseline)
		assert.Len(t, attempt.ID, 26)
		assert.Equal(t, []model.InteractionEvent{model.EventStart}, env.sink.logged())
	})

	t.Run("Inactive quest", func(t *testing.T) {
		env := newTestEnv(t)
		q := gpsQuest()
		q.Active = false
		env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)

		_, err := env.svc.StartAttempt(ctx, "U1", q.ID)
		assert.ErrorIs(t, err, ErrQuestInactive)
	})

	t.Run("Daily re-attempt denied same day, allowed next day", func(t *testing.T) {
		env := newTestEnv(t)
		q := stepsQuest()
		env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)
		env.steps.On("GetCumulativeSteps", mock.Anything, "U1").Return(50000, nil)

		loc := env.svc.loc
		env.svc.now = func() time.Time { return time.Date(2026, 4, 10, 9, 0, 0, 0, loc) }

		first, err := env.svc.StartAttempt(ctx, "U1", q.ID)
		require.NoError(t, err)
		assert.Equal(t, "2026-04-10", first.PeriodKey)

		_, err = env.svc.StartAttempt(ctx, "U1", q.ID)
		assert.ErrorIs(t, err, ErrAttemptAlreadyActive)

		env.svc.now = func() time.Time { return time.Date(2026, 4, 11, 9, 0, 0, 0, loc) }

		second, err := env.svc.StartAttempt(ctx, "U1", q.ID)
		require.NoError(t, err)
		assert.Equal(t, "2026-04-11", second.PeriodKey)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("Lifetime quest never restarts", func(t *testing.T) {
		env := newTestEnv(t)
		q := gpsQuest()
		env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)

		loc := env.svc.loc
		env.svc.now = func() time.Time { return time.Date(2026, 4, 10, 9, 0, 0, 0, loc) }

		_, err := env.svc.StartAttempt(ctx, "U1", q.ID)
		require.NoError(t, err)

		env.svc.now = func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, loc) }

		_, err = env.svc.StartAttempt(ctx, "U1", q.ID)
		assert.ErrorIs(t, err, ErrAttemptAlreadyActive)
	})
}

func TestVerify_Steps(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := stepsQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)
	env.steps.On("GetCumulativeSteps", mock.Anything, "U1").Return(50000, nil).Once()

	attempt, err := env.svc.StartAttempt(ctx, "U1", q.ID)
	require.NoError(t, err)

	// Sensor moved 50000 → 53000: 3000 counted.
	env.steps.On("GetCumulativeSteps", mock.Anything, "U1").Return(53000, nil).Once()
	updated, err := env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{})
	require.NoError(t, err)
	assert.Equal(t, 3000, updated.ProgressCount)
	assert.Equal(t, model.StatusInProgress, updated.Status)

	// Same reading again: nothing new to count.
	env.steps.On("GetCumulativeSteps", mock.Anything, "U1").Return(53000, nil).Once()
	_, err = env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{})
	assert.ErrorIs(t, err, ErrVerificationPending)

	// 61000 overshoots the target: delta clamps at 7000 and the
	// attempt clears.
	env.steps.On("GetCumulativeSteps", mock.Anything, "U1").Return(61000, nil).Once()
	updated, err = env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{})
	require.NoError(t, err)
	assert.Equal(t, 10000, updated.ProgressCount)
	assert.Equal(t, model.StatusClear, updated.Status)
}

func TestVerify_GPS(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := gpsQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)

	attempt, err := env.svc.StartAttempt(ctx, "U1", q.ID)
	require.NoError(t, err)

	// ~200m north of the target.
	_, err = env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{
		Location: &quest.LocationReading{Latitude: 37.5683, Longitude: 126.9780, AccuracyM: 10},
	})
	assert.ErrorIs(t, err, ErrVerificationPending)

	updated, err := env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{
		Location: &quest.LocationReading{Latitude: 37.5665, Longitude: 126.9780, AccuracyM: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusClear, updated.Status)
}

func TestVerify_WrongUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := gpsQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)

	attempt, err := env.svc.StartAttempt(ctx, "U1", q.ID)
	require.NoError(t, err)

	_, err = env.svc.Verify(ctx, "U2", attempt.ID, quest.Proof{})
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestVerify_TerminalAttempt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := gpsQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)

	attempt, err := env.svc.StartAttempt(ctx, "U1", q.ID)
	require.NoError(t, err)

	_, err = env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{
		Location: &quest.LocationReading{Latitude: 37.5665, Longitude: 126.9780, AccuracyM: 10},
	})
	require.NoError(t, err)

	_, err = env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{
		Location: &quest.LocationReading{Latitude: 37.5665, Longitude: 126.9780, AccuracyM: 10},
	})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestSubmit_AutoApprovesSelfVerifying(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := gpsQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)
	env.ledger.On("CreditExp", mock.Anything, "U1", 30, mock.Anything).
		Return(model.CreditOK, nil).Once()

	attempt, err := env.svc.StartAttempt(ctx, "U1", q.ID)
	require.NoError(t, err)

	_, err = env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{
		Location: &quest.LocationReading{Latitude: 37.5665, Longitude: 126.9780, AccuracyM: 10},
	})
	require.NoError(t, err)

	submitted, err := env.svc.Submit(ctx, "U1", attempt.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusApproved, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	require.NotNil(t, submitted.ApprovedAt)
	env.ledger.AssertExpectations(t)
	assert.Len(t, env.attempts.Dispatches(), 1)
	assert.Equal(t, []model.InteractionEvent{model.EventStart, model.EventComplete}, env.sink.logged())
}

func TestSubmit_NotCleared(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := stepsQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)
	env.steps.On("GetCumulativeSteps", mock.Anything, "U1").Return(50000, nil)

	attempt, err := env.svc.StartAttempt(ctx, "U1", q.ID)
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, "U1", attempt.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestSubmit_ProofRequired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := uploadQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)

	// Clear state without a proof reference reproduces an attempt whose
	// proof was lost or stripped; submit must refuse it.
	cleared := &model.QuestAttempt{
		ID:          model.NewID(),
		QuestID:     q.ID,
		UserID:      "U1",
		Status:      model.StatusClear,
		TargetCount: 1, ProgressCount: 1,
		PeriodScope: model.ScopeAny,
		PeriodKey:   "-",
		StartedAt:   time.Now(),
	}
	require.NoError(t, env.attempts.CreateAttempt(ctx, cleared))

	_, err := env.svc.Submit(ctx, "U1", cleared.ID)
	assert.ErrorIs(t, err, ErrProofRequired)
}

func TestUploadReviewFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := uploadQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)
	env.ledger.On("CreditExp", mock.Anything, "U1", 100, mock.Anything).
		Return(model.CreditOK, nil).Once()

	attempt, err := env.svc.StartAttempt(ctx, "U1", q.ID)
	require.NoError(t, err)

	cleared, err := env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{
		ProofURL: "https://cdn.example.com/plan.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusClear, cleared.Status)
	require.NotNil(t, cleared.ProofURL)
	assert.Equal(t, "https://cdn.example.com/plan.pdf", *cleared.ProofURL)

	// Upload quests wait for review: submit does not auto-approve.
	submitted, err := env.svc.Submit(ctx, "U1", attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, submitted.Status)
	assert.Nil(t, submitted.ApprovedAt)
	assert.Empty(t, env.attempts.Dispatches())

	approved, err := env.svc.Approve(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)

	env.ledger.AssertExpectations(t)
	assert.Len(t, env.attempts.Dispatches(), 1)
}

func TestApprove_Idempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := uploadQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)
	env.ledger.On("CreditExp", mock.Anything, "U1", 100, mock.Anything).
		Return(model.CreditOK, nil)

	attempt := submittedUploadAttempt(t, env, q)

	_, err := env.svc.Approve(ctx, attempt.ID)
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, attempt.ID)
	assert.ErrorIs(t, err, ErrAlreadyCredited)

	env.ledger.AssertNumberOfCalls(t, "CreditExp", 1)
	assert.Len(t, env.attempts.Dispatches(), 1)
}

func TestApprove_ConcurrentDoubleApproval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	q := uploadQuest()
	env.quests.On("GetQuestByID", mock.Anything, q.ID).Return(q, nil)
	env.ledger.On("CreditExp", mock.Anything, "U1", 100, mock.Anything).
		Return(model.CreditOK, nil)

	attempt := submittedUploadAttempt(t, env, q)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Approve(ctx, attempt.ID)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case assert.ErrorIs(t, err, ErrAlreadyCredited):
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	env.ledger.AssertNumberOfCalls(t, "CreditExp", 1)
	assert.Len(t, env.attempts.Dispatches(), 1)
}

func submittedUploadAttempt(t *testing.T, env *testEnv, q *model.Quest) *model.QuestAttempt {
	t.Helper()
	ctx := context.Background()

	attempt, err := env.svc.StartAttempt(ctx, "U1", q.ID)
	require.NoError(t, err)
	_, err = env.svc.Verify(ctx, "U1", attempt.ID, quest.Proof{
		ProofURL: "https://cdn.example.com/plan.pdf",
	})
	require.NoError(t, err)
	submitted, err := env.svc.Submit(ctx, "U1", attempt.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusSubmitted, submitted.Status)
	return submitted
}

func TestCreateQuest(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid quest gets an id", func(t *testing.T) {
		env := newTestEnv(t)
		env.quests.On("CreateQuest", mock.Anything, mock.Anything).Return(nil)

		id, err := env.svc.CreateQuest(ctx, gpsQuest())
		require.NoError(t, err)
		assert.Len(t, id, 26)
	})

	t.Run("Rejects bad verify params", func(t *testing.T) {
		env := newTestEnv(t)
		q := gpsQuest()
		q.VerifyParams = `{"lat": 37.5665, "lng": 126.9780}`

		_, err := env.svc.CreateQuest(ctx, q)
		assert.Error(t, err)
	})

	t.Run("Rejects non-positive reward", func(t *testing.T) {
		env := newTestEnv(t)
		q := gpsQuest()
		q.RewardExp = 0

		_, err := env.svc.CreateQuest(ctx, q)
		assert.Error(t, err)
	})
}
