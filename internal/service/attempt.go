package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/quest"
	"campus_quest_engine/internal/repository"
	"campus_quest_engine/pkg/logger"

	"go.uber.org/zap"
)

// interactionSink is the narrow slice of the interaction logger the
// state machine feeds. Calls never block and never fail.
type interactionSink interface {
	LogInteraction(userID, questID string, event model.InteractionEvent)
}

// Collaborators bundles the external services verification strategies
// need input from.
type Collaborators struct {
	Steps      StepSource
	Payments   PaymentStatusService
	Attendance AttendanceService
}

// AttemptService owns the quest attempt state machine:
// deactive → in_progress → clear → submitted → approved.
type AttemptService struct {
	quests   QuestRepository
	attempts AttemptRepository
	rewards  *RewardDispatcher
	collab   Collaborators
	sink     interactionSink
	loc      *time.Location

	now func() time.Time
}

func NewAttemptService(
	quests QuestRepository,
	attempts AttemptRepository,
	rewards *RewardDispatcher,
	collab Collaborators,
	sink interactionSink,
	loc *time.Location,
) *AttemptService {
	return &AttemptService{
		quests:   quests,
		attempts: attempts,
		rewards:  rewards,
		collab:   collab,
		sink:     sink,
		loc:      loc,
		now:      time.Now,
	}
}

// ListQuests returns every active quest paired with the user's latest
// attempt, if any. Quests never started carry a nil attempt, which the
// API layer renders as the virtual deactive state.
func (s *AttemptService) ListQuests(ctx context.Context, userID string) ([]*model.QuestWithAttempt, error) {
	rows, err := s.quests.ListQuestsWithLatestAttempt(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	return rows, nil
}

// StartAttempt creates an in_progress attempt for the current period
// key. One attempt per (user, quest, period key) — a terminal attempt
// from earlier in the same period also blocks a restart.
func (s *AttemptService) StartAttempt(ctx context.Context, userID, questID string) (*model.QuestAttempt, error) {
	q, err := s.getQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if !q.Active {
		return nil, ErrQuestInactive
	}

	now := s.now()
	periodKey, err := quest.ResolveKey(q.PeriodScope, now, s.loc)
	if err != nil {
		return nil, err
	}

	_, err = s.attempts.GetLatestAttempt(ctx, userID, questID, periodKey)
	if err == nil {
		return nil, ErrAttemptAlreadyActive
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing attempt: %w", err)
	}

	baseline := 0
	if q.VerifyMethod == model.VerifySteps {
		baseline, err = s.collab.Steps.GetCumulativeSteps(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read step baseline: %w", err)
		}
	}

	attempt := &model.QuestAttempt{
		ID:            model.NewID(),
		QuestID:       questID,
		UserID:        userID,
		Status:        model.StatusInProgress,
		ProgressCount: 0,
		TargetCount:   q.TargetCount,
		PeriodScope:   q.PeriodScope,
		PeriodKey:     periodKey,
		StepBaseline:  baseline,
		StartedAt:     now,
	}

	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrAttemptExists) {
			return nil, ErrAttemptAlreadyActive
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.sink.LogInteraction(userID, questID, model.EventStart)
	return attempt, nil
}

// Verify evaluates submitted proof against the quest's strategy and
// applies the resulting progress. Collaborator lookups run before the
// attempt row is locked; the pure strategy is re-evaluated against the
// locked row's counters, so a concurrent writer can never double-credit
// progress.
func (s *AttemptService) Verify(ctx context.Context, userID, attemptID string, proof quest.Proof) (*model.QuestAttempt, error) {
	attempt, err := s.getOwnedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.StatusInProgress {
		return nil, ErrInvalidStateTransition
	}

	q, err := s.getQuest(ctx, attempt.QuestID)
	if err != nil {
		return nil, err
	}
	strategy, err := quest.StrategyFor(q)
	if err != nil {
		return nil, err
	}

	in, err := s.gatherInput(ctx, q, attempt, proof)
	if err != nil {
		return nil, err
	}

	updated, err := s.attempts.UpdateAttempt(ctx, attemptID, func(current *model.QuestAttempt) (*model.AttemptMutation, error) {
		if current.Status != model.StatusInProgress {
			return nil, ErrInvalidStateTransition
		}

		in.Progress = current.ProgressCount
		in.Target = current.TargetCount
		in.StepBaseline = current.StepBaseline

		outcome := strategy.Evaluate(in)
		switch outcome.Kind {
		case quest.Rejected:
			return nil, fmt.Errorf("%w: %s", ErrVerificationRejected, outcome.Reason)
		case quest.Pending:
			return nil, fmt.Errorf("%w: %s", ErrVerificationPending, outcome.Reason)
		}

		newCount, reached, err := quest.ApplyProgress(current.ProgressCount, current.TargetCount, outcome.Delta)
		if err != nil {
			// Strategies never produce a negative delta; reaching this
			// is a bug and nothing may be written.
			logger.Logger().Error("invariant violation applying progress",
				zap.String("attempt_id", attemptID), zap.Error(err))
			return nil, err
		}

		m := &model.AttemptMutation{
			Status:        model.StatusInProgress,
			ProgressCount: newCount,
			ProofURL:      current.ProofURL,
		}
		if outcome.ProofURL != "" {
			m.ProofURL = &outcome.ProofURL
		}
		if reached {
			m.Status = model.StatusClear
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Submit moves a cleared attempt to submitted. Self-verifying methods
// auto-run the approval path in the same transition; manual-review
// methods stay submitted until an external actor approves.
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID string) (*model.QuestAttempt, error) {
	attempt, err := s.getOwnedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	q, err := s.getQuest(ctx, attempt.QuestID)
	if err != nil {
		return nil, err
	}

	autoApprove := q.VerifyMethod.SelfVerifying()

	updated, err := s.attempts.UpdateAttempt(ctx, attemptID, func(current *model.QuestAttempt) (*model.AttemptMutation, error) {
		if current.Status != model.StatusClear {
			return nil, ErrInvalidStateTransition
		}
		if q.VerifyMethod.RequiresProofURL() && (current.ProofURL == nil || *current.ProofURL == "") {
			return nil, ErrProofRequired
		}

		now := s.now()
		m := &model.AttemptMutation{
			Status:        model.StatusSubmitted,
			ProgressCount: current.ProgressCount,
			ProofURL:      current.ProofURL,
			SubmittedAt:   &now,
		}
		if autoApprove {
			s.fillApproval(m, current, q, now)
		}
		return m, nil
	})
	if err != nil {
		return nil, mapDispatchErr(err)
	}

	if updated.Status == model.StatusApproved {
		s.afterApproval(ctx, updated, q)
	}
	return updated, nil
}

// Approve grants the reward for a submitted attempt. Invoked by a
// manual-review actor for upload-style methods; the self-verifying
// methods run the same transition from inside Submit. Idempotent per
// attempt: a repeat call reports ErrAlreadyCredited and credits nothing.
func (s *AttemptService) Approve(ctx context.Context, attemptID string) (*model.QuestAttempt, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	q, err := s.getQuest(ctx, attempt.QuestID)
	if err != nil {
		return nil, err
	}

	updated, err := s.attempts.UpdateAttempt(ctx, attemptID, func(current *model.QuestAttempt) (*model.AttemptMutation, error) {
		if current.Status == model.StatusApproved {
			return nil, ErrAlreadyCredited
		}
		if current.Status != model.StatusSubmitted {
			return nil, ErrInvalidStateTransition
		}

		now := s.now()
		m := &model.AttemptMutation{
			Status:        model.StatusSubmitted,
			ProgressCount: current.ProgressCount,
			ProofURL:      current.ProofURL,
			SubmittedAt:   current.SubmittedAt,
		}
		s.fillApproval(m, current, q, now)
		return m, nil
	})
	if err != nil {
		return nil, mapDispatchErr(err)
	}

	s.afterApproval(ctx, updated, q)
	return updated, nil
}

func (s *AttemptService) CreateQuest(ctx context.Context, q *model.Quest) (string, error) {
	if q.RewardExp <= 0 {
		return "", fmt.Errorf("reward exp must be positive")
	}
	if q.TargetCount <= 0 {
		return "", fmt.Errorf("target count must be positive")
	}
	if _, err := quest.StrategyFor(q); err != nil {
		return "", err
	}

	q.ID = model.NewID()
	q.CreatedAt = s.now()
	if err := s.quests.CreateQuest(ctx, q); err != nil {
		return "", fmt.Errorf("failed to create quest: %w", err)
	}
	return q.ID, nil
}

func (s *AttemptService) SetQuestActive(ctx context.Context, questID string, active bool) error {
	if err := s.quests.SetQuestActive(ctx, questID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestNotFound
		}
		return fmt.Errorf("failed to update quest active flag: %w", err)
	}
	return nil
}

// fillApproval stamps the approval fields and attaches the dispatch
// record that the repository inserts atomically with the row update.
func (s *AttemptService) fillApproval(m *model.AttemptMutation, current *model.QuestAttempt, q *model.Quest, now time.Time) {
	m.Status = model.StatusApproved
	if m.SubmittedAt == nil {
		m.SubmittedAt = &now
	}
	m.ApprovedAt = &now
	m.Reward = &model.RewardDispatch{
		AttemptID:    current.ID,
		UserID:       current.UserID,
		QuestID:      current.QuestID,
		Amount:       q.RewardExp,
		DispatchedAt: now,
	}
}

// afterApproval runs the side effects of a committed approval: the
// ledger credit (guarded by the dispatch record already inserted) and
// the completion funnel event.
func (s *AttemptService) afterApproval(ctx context.Context, attempt *model.QuestAttempt, q *model.Quest) {
	if err := s.rewards.Dispatch(ctx, &model.RewardDispatch{
		AttemptID: attempt.ID,
		UserID:    attempt.UserID,
		QuestID:   attempt.QuestID,
		Amount:    q.RewardExp,
	}); err != nil {
		// The dispatch record is committed, so a ledger retry with the
		// same idempotency key is safe to run out of band.
		logger.Logger().Error("reward credit failed",
			zap.String("attempt_id", attempt.ID),
			zap.String("user_id", attempt.UserID),
			zap.Error(err))
	}

	s.sink.LogInteraction(attempt.UserID, attempt.QuestID, model.EventComplete)
}

// gatherInput performs the collaborator I/O a strategy needs, before
// any row lock is taken. Lookup failures are left as nil inputs, which
// the strategies surface as pending outcomes.
func (s *AttemptService) gatherInput(ctx context.Context, q *model.Quest, attempt *model.QuestAttempt, proof quest.Proof) (quest.Input, error) {
	in := quest.Input{Proof: proof}
	log := logger.Logger()

	switch q.VerifyMethod {
	case model.VerifySteps:
		steps, err := s.collab.Steps.GetCumulativeSteps(ctx, attempt.UserID)
		if err != nil {
			return in, fmt.Errorf("%w: step telemetry unavailable", ErrVerificationPending)
		}
		in.CumulativeSteps = steps

	case model.VerifyPayment:
		if proof.PaymentID == "" {
			break // strategy rejects
		}
		status, err := s.collab.Payments.GetPaymentStatus(ctx, proof.PaymentID)
		if err != nil {
			log.Warn("payment status lookup failed",
				zap.String("payment_id", proof.PaymentID), zap.Error(err))
			break // nil status → pending
		}
		in.Payment = status

	case model.VerifyAttendance:
		date := attempt.PeriodKey
		if attempt.PeriodScope != model.ScopeDaily {
			date = quest.DateOf(s.now(), s.loc)
		}
		checkedIn, err := s.collab.Attendance.HasCheckedIn(ctx, attempt.UserID, date)
		if err != nil {
			log.Warn("attendance lookup failed",
				zap.String("user_id", attempt.UserID), zap.Error(err))
			break // nil → pending
		}
		in.CheckedIn = &checkedIn
	}

	return in, nil
}

func (s *AttemptService) getQuest(ctx context.Context, questID string) (*model.Quest, error) {
	q, err := s.quests.GetQuestByID(ctx, questID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return q, nil
}

func (s *AttemptService) getAttempt(ctx context.Context, attemptID string) (*model.QuestAttempt, error) {
	attempt, err := s.attempts.GetAttemptByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

func (s *AttemptService) getOwnedAttempt(ctx context.Context, userID, attemptID string) (*model.QuestAttempt, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

func mapDispatchErr(err error) error {
	if errors.Is(err, repository.ErrRewardAlreadyDispatched) {
		return ErrAlreadyCredited
	}
	return err
}
