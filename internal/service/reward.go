package service

import (
	"context"
	"fmt"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/pkg/logger"

	"go.uber.org/zap"
)

// RewardDispatcher issues experience credits to the external
// gamification ledger. The attempt id doubles as the idempotency key,
// and the dispatch record committed with the approval transaction means
// Dispatch runs at most once per attempt from the engine's side; the
// ledger's own duplicate handling covers crash-retry.
type RewardDispatcher struct {
	ledger GamificationLedger
}

func NewRewardDispatcher(ledger GamificationLedger) *RewardDispatcher {
	return &RewardDispatcher{ledger: ledger}
}

func (d *RewardDispatcher) Dispatch(ctx context.Context, dispatch *model.RewardDispatch) error {
	result, err := d.ledger.CreditExp(ctx, dispatch.UserID, dispatch.Amount, dispatch.AttemptID)
	if err != nil {
		return fmt.Errorf("ledger credit failed: %w", err)
	}

	if result == model.CreditDuplicate {
		logger.Logger().Warn("ledger reported duplicate credit",
			zap.String("attempt_id", dispatch.AttemptID),
			zap.String("user_id", dispatch.UserID))
	}
	return nil
}
