package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campus_quest_engine/internal/model"

	"github.com/Masterminds/squirrel"
)

type quest struct {
	ID           string    `db:"id"`
	Kind         string    `db:"kind"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	Category     string    `db:"category"`
	VerifyMethod string    `db:"verify_method"`
	VerifyParams string    `db:"verify_params"`
	RewardExp    int       `db:"reward_exp"`
	TargetCount  int       `db:"target_count"`
	PeriodScope  string    `db:"period_scope"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
}

type questWithAttempt struct {
	quest

	AttemptID     *string    `db:"attempt_id"`
	Status        *string    `db:"status"`
	ProgressCount *int       `db:"progress_count"`
	UserTarget    *int       `db:"user_target_count"`
	ProofURL      *string    `db:"proof_url"`
	PeriodKey     *string    `db:"period_key"`
	StepBaseline  *int       `db:"step_baseline"`
	StartedAt     *time.Time `db:"started_at"`
	SubmittedAt   *time.Time `db:"submitted_at"`
	ApprovedAt    *time.Time `db:"approved_at"`
}

func (q *quest) toModel() model.Quest {
	return model.Quest{
		ID:           q.ID,
		Kind:         model.QuestKind(q.Kind),
		Title:        q.Title,
		Description:  q.Description,
		Category:     model.QuestCategory(q.Category),
		VerifyMethod: model.VerifyMethod(q.VerifyMethod),
		VerifyParams: q.VerifyParams,
		RewardExp:    q.RewardExp,
		TargetCount:  q.TargetCount,
		PeriodScope:  model.PeriodScope(q.PeriodScope),
		Active:       q.Active,
		CreatedAt:    q.CreatedAt,
	}
}

func (r *Repository) GetQuestByID(ctx context.Context, questID string) (*model.Quest, error) {
	query, args, err := squirrel.
		Select("id", "kind", "title", "description", "category", "verify_method",
			"verify_params", "reward_exp", "target_count", "period_scope", "active", "created_at").
		From("quests").
		Where(squirrel.Eq{"id": questID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var q quest
	err = r.db.GetContext(ctx, &q, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}

	m := q.toModel()
	return &m, nil
}

// ListQuestsWithLatestAttempt returns all active quests, each joined
// with the user's most recent attempt regardless of period key.
func (r *Repository) ListQuestsWithLatestAttempt(ctx context.Context, userID string) ([]*model.QuestWithAttempt, error) {
	query := squirrel.
		Select(
			"q.id", "q.kind", "q.title", "q.description", "q.category", "q.verify_method",
			"q.verify_params", "q.reward_exp", "q.target_count", "q.period_scope", "q.active", "q.created_at",
			"a.id AS attempt_id",
			"a.status AS status",
			"a.progress_count AS progress_count",
			"a.target_count AS user_target_count",
			"a.proof_url AS proof_url",
			"a.period_key AS period_key",
			"a.step_baseline AS step_baseline",
			"a.started_at AS started_at",
			"a.submitted_at AS submitted_at",
			"a.approved_at AS approved_at",
		).
		From("quests q").
		JoinClause(`LEFT JOIN LATERAL (
			SELECT * FROM quest_attempts
			WHERE quest_id = q.id AND user_id = ?
			ORDER BY started_at DESC
			LIMIT 1
		) a ON true`, userID).
		Where(squirrel.Eq{"q.active": true}).
		OrderBy("q.created_at").
		PlaceholderFormat(squirrel.Dollar)

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []*questWithAttempt
	err = r.db.SelectContext(ctx, &rows, sqlQuery, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*model.QuestWithAttempt{}, nil
		}
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}

	result := make([]*model.QuestWithAttempt, len(rows))
	for i, row := range rows {
		item := &model.QuestWithAttempt{Quest: row.toModel()}
		if row.AttemptID != nil {
			item.Attempt = &model.QuestAttempt{
				ID:            *row.AttemptID,
				QuestID:       row.ID,
				UserID:        userID,
				Status:        model.AttemptStatus(*row.Status),
				ProgressCount: *row.ProgressCount,
				TargetCount:   *row.UserTarget,
				ProofURL:      row.ProofURL,
				PeriodScope:   model.PeriodScope(row.PeriodScope),
				PeriodKey:     *row.PeriodKey,
				StepBaseline:  *row.StepBaseline,
				StartedAt:     *row.StartedAt,
				SubmittedAt:   row.SubmittedAt,
				ApprovedAt:    row.ApprovedAt,
			}
		}
		result[i] = item
	}

	return result, nil
}

func (r *Repository) CreateQuest(ctx context.Context, q *model.Quest) error {
	query, args, err := squirrel.
		Insert("quests").
		SetMap(map[string]interface{}{
			"id":            q.ID,
			"kind":          string(q.Kind),
			"title":         q.Title,
			"description":   q.Description,
			"category":      string(q.Category),
			"verify_method": string(q.VerifyMethod),
			"verify_params": q.VerifyParams,
			"reward_exp":    q.RewardExp,
			"target_count":  q.TargetCount,
			"period_scope":  string(q.PeriodScope),
			"active":        q.Active,
			"created_at":    q.CreatedAt,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build quest insert query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert quest: %w", err)
	}
	return nil
}

func (r *Repository) SetQuestActive(ctx context.Context, questID string, active bool) error {
	query, args, err := squirrel.
		Update("quests").
		Set("active", active).
		Where(squirrel.Eq{"id": questID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update quest: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
