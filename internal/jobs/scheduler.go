// Package jobs runs the engine's scheduled maintenance: expiring
// recommendation rows once their daily validity window passes.
package jobs

import (
	"context"
	"time"

	"campus_quest_engine/internal/quest"
	"campus_quest_engine/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type RecommendationStore interface {
	ExpireRecommendations(ctx context.Context, before string) (int64, error)
}

type Scheduler struct {
	cron  *cron.Cron
	store RecommendationStore
	loc   *time.Location
}

func NewScheduler(store RecommendationStore, loc *time.Location) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithLocation(loc)),
		store: store,
		loc:   loc,
	}
}

func (s *Scheduler) Start() error {
	// Shortly after midnight, engine timezone.
	if _, err := s.cron.AddFunc("5 0 * * *", s.expireRecommendations); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) expireRecommendations() {
	log := logger.Logger()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	today := quest.DateOf(time.Now(), s.loc)
	expired, err := s.store.ExpireRecommendations(ctx, today)
	if err != nil {
		log.Error("failed to expire recommendations", zap.Error(err))
		return
	}
	if expired > 0 {
		log.Info("expired recommendations", zap.Int64("count", expired))
	}
}
