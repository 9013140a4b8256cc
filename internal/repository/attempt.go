package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campus_quest_engine/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const pgUniqueViolation = "23505"

type questAttempt struct {
	ID            string     `db:"id"`
	QuestID       string     `db:"quest_id"`
	UserID        string     `db:"user_id"`
	Status        string     `db:"status"`
	ProgressCount int        `db:"progress_count"`
	TargetCount   int        `db:"target_count"`
	ProofURL      *string    `db:"proof_url"`
	PeriodScope   string     `db:"period_scope"`
	PeriodKey     string     `db:"period_key"`
	StepBaseline  int        `db:"step_baseline"`
	StartedAt     time.Time  `db:"started_at"`
	SubmittedAt   *time.Time `db:"submitted_at"`
	ApprovedAt    *time.Time `db:"approved_at"`
}

func (a *questAttempt) toModel() *model.QuestAttempt {
	return &model.QuestAttempt{
		ID:            a.ID,
		QuestID:       a.QuestID,
		UserID:        a.UserID,
		Status:        model.AttemptStatus(a.Status),
		ProgressCount: a.ProgressCount,
		TargetCount:   a.TargetCount,
		ProofURL:      a.ProofURL,
		PeriodScope:   model.PeriodScope(a.PeriodScope),
		PeriodKey:     a.PeriodKey,
		StepBaseline:  a.StepBaseline,
		StartedAt:     a.StartedAt,
		SubmittedAt:   a.SubmittedAt,
		ApprovedAt:    a.ApprovedAt,
	}
}

var attemptColumns = []string{
	"id", "quest_id", "user_id", "status", "progress_count", "target_count",
	"proof_url", "period_scope", "period_key", "step_baseline",
	"started_at", "submitted_at", "approved_at",
}

func (r *Repository) GetAttemptByID(ctx context.Context, attemptID string) (*model.QuestAttempt, error) {
	query, args, err := squirrel.
		Select(attemptColumns...).
		From("quest_attempts").
		Where(squirrel.Eq{"id": attemptID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var a questAttempt
	err = r.db.GetContext(ctx, &a, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a.toModel(), nil
}

func (r *Repository) GetLatestAttempt(ctx context.Context, userID, questID, periodKey string) (*model.QuestAttempt, error) {
	query, args, err := squirrel.
		Select(attemptColumns...).
		From("quest_attempts").
		Where(squirrel.Eq{
			"user_id":    userID,
			"quest_id":   questID,
			"period_key": periodKey,
		}).
		OrderBy("started_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var a questAttempt
	err = r.db.GetContext(ctx, &a, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest attempt: %w", err)
	}
	return a.toModel(), nil
}

func (r *Repository) CreateAttempt(ctx context.Context, attempt *model.QuestAttempt) error {
	query, args, err := squirrel.
		Insert("quest_attempts").
		SetMap(map[string]interface{}{
			"id":             attempt.ID,
			"quest_id":       attempt.QuestID,
			"user_id":        attempt.UserID,
			"status":         string(attempt.Status),
			"progress_count": attempt.ProgressCount,
			"target_count":   attempt.TargetCount,
			"proof_url":      attempt.ProofURL,
			"period_scope":   string(attempt.PeriodScope),
			"period_key":     attempt.PeriodKey,
			"step_baseline":  attempt.StepBaseline,
			"started_at":     attempt.StartedAt,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build attempt insert query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		// Partial unique index on (user_id, quest_id, period_key)
		// closes the check-then-insert race between two starts.
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAttemptExists
		}
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// UpdateAttempt serializes one state transition: the attempt row is
// locked FOR UPDATE, apply judges the transition against the fresh
// state, and the returned mutation commits together with its reward
// dispatch record. Anything apply returns as an error rolls back with
// no writes.
func (r *Repository) UpdateAttempt(ctx context.Context, attemptID string, apply func(current *model.QuestAttempt) (*model.AttemptMutation, error)) (*model.QuestAttempt, error) {
	var updated *model.QuestAttempt

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		query, args, err := squirrel.
			Select(attemptColumns...).
			From("quest_attempts").
			Where(squirrel.Eq{"id": attemptID}).
			Suffix("FOR UPDATE").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var a questAttempt
		err = tx.GetContext(ctx, &a, query, args...)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock attempt: %w", err)
		}

		current := a.toModel()
		m, err := apply(current)
		if err != nil {
			return err
		}

		updateQuery, updateArgs, err := squirrel.
			Update("quest_attempts").
			SetMap(map[string]interface{}{
				"status":         string(m.Status),
				"progress_count": m.ProgressCount,
				"proof_url":      m.ProofURL,
				"submitted_at":   m.SubmittedAt,
				"approved_at":    m.ApprovedAt,
			}).
			Where(squirrel.Eq{"id": attemptID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build attempt update query: %w", err)
		}

		if _, err := tx.ExecContext(ctx, updateQuery, updateArgs...); err != nil {
			return fmt.Errorf("failed to update attempt: %w", err)
		}

		if m.Reward != nil {
			if err := insertDispatch(ctx, tx, m.Reward); err != nil {
				return err
			}
		}

		current.Status = m.Status
		current.ProgressCount = m.ProgressCount
		current.ProofURL = m.ProofURL
		current.SubmittedAt = m.SubmittedAt
		current.ApprovedAt = m.ApprovedAt
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// insertDispatch is the atomic half of reward idempotency: the primary
// key on attempt_id decides the winner of concurrent approvals inside
// the same transaction that flips the status.
func insertDispatch(ctx context.Context, tx *sqlx.Tx, d *model.RewardDispatch) error {
	query, args, err := squirrel.
		Insert("reward_dispatches").
		SetMap(map[string]interface{}{
			"attempt_id":    d.AttemptID,
			"user_id":       d.UserID,
			"quest_id":      d.QuestID,
			"amount":        d.Amount,
			"dispatched_at": d.DispatchedAt,
		}).
		Suffix("ON CONFLICT (attempt_id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build dispatch insert query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRewardAlreadyDispatched
	}
	return nil
}
