package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campus_quest_engine/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

func (r *Repository) CreateInteraction(ctx context.Context, interaction *model.QuestRecoInteraction) error {
	query, args, err := squirrel.
		Insert("quest_reco_interactions").
		SetMap(map[string]interface{}{
			"id":         interaction.ID,
			"user_id":    interaction.UserID,
			"quest_id":   interaction.QuestID,
			"event":      string(interaction.Event),
			"created_at": interaction.CreatedAt,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build interaction insert query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

func (r *Repository) MarkRecommendationClicked(ctx context.Context, userID, questID, date string) error {
	return r.setRecommendationFlag(ctx, userID, questID, date, "is_click")
}

func (r *Repository) MarkRecommendationCleared(ctx context.Context, userID, questID, date string) error {
	return r.setRecommendationFlag(ctx, userID, questID, date, "is_cleared")
}

// setRecommendationFlag is an idempotent upsert of a funnel flag on the
// day's recommendation row. Zero affected rows just means the quest was
// not recommended that day, which is not an error.
func (r *Repository) setRecommendationFlag(ctx context.Context, userID, questID, date, column string) error {
	query, args, err := squirrel.
		Update("quest_recommendations").
		Set(column, true).
		Where(squirrel.Eq{
			"user_id":             userID,
			"quest_id":            questID,
			"recommendation_date": date,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build recommendation update query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update recommendation flag: %w", err)
	}
	return nil
}

type recommendedQuest struct {
	QuestID   string         `db:"quest_id"`
	IsClick   bool           `db:"is_click"`
	IsCleared bool           `db:"is_cleared"`
	Events    pq.StringArray `db:"events"`
}

// GetRecommendedQuests returns the user's recommendation rows for a
// date with their interaction events aggregated.
func (r *Repository) GetRecommendedQuests(ctx context.Context, userID, date string) ([]*model.RecommendedQuest, error) {
	query := squirrel.
		Select(
			"qr.quest_id",
			"qr.is_click",
			"qr.is_cleared",
			"array_agg(qi.event ORDER BY qi.created_at) FILTER (WHERE qi.event IS NOT NULL) AS events",
		).
		From("quest_recommendations qr").
		LeftJoin(`quest_reco_interactions qi
			ON qi.quest_id = qr.quest_id
			AND qi.user_id = qr.user_id
			AND qi.created_at::date = qr.recommendation_date`).
		Where(squirrel.Eq{
			"qr.user_id":             userID,
			"qr.recommendation_date": date,
			"qr.expired":             false,
		}).
		GroupBy("qr.quest_id", "qr.is_click", "qr.is_cleared").
		OrderBy("qr.quest_id").
		PlaceholderFormat(squirrel.Dollar)

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build recommendations query: %w", err)
	}

	var rows []*recommendedQuest
	err = r.db.SelectContext(ctx, &rows, sqlQuery, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*model.RecommendedQuest{}, nil
		}
		return nil, fmt.Errorf("failed to get recommended quests: %w", err)
	}

	result := make([]*model.RecommendedQuest, len(rows))
	for i, row := range rows {
		events := make([]model.InteractionEvent, len(row.Events))
		for j, e := range row.Events {
			events[j] = model.InteractionEvent(e)
		}
		result[i] = &model.RecommendedQuest{
			QuestID:   row.QuestID,
			IsClick:   row.IsClick,
			IsCleared: row.IsCleared,
			Events:    events,
		}
	}
	return result, nil
}

// ExpireRecommendations marks recommendation rows older than the given
// date as expired. Run by the daily maintenance job.
func (r *Repository) ExpireRecommendations(ctx context.Context, before string) (int64, error) {
	query, args, err := squirrel.
		Update("quest_recommendations").
		Set("expired", true).
		Where(squirrel.And{
			squirrel.Lt{"recommendation_date": before},
			squirrel.Eq{"expired": false},
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build expiry query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to expire recommendations: %w", err)
	}
	return result.RowsAffected()
}
