package service

import (
	"context"
	"time"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/quest"
	"campus_quest_engine/pkg/logger"

	"go.uber.org/zap"
)

const interactionBuffer = 256

// InteractionLogger records recommendation funnel events. Logging is
// fire-and-forget: LogInteraction enqueues and returns immediately, a
// single worker drains the queue, and failures are logged but never
// surface to the state machine.
type InteractionLogger struct {
	repo InteractionRepository
	pub  EventPublisher
	loc  *time.Location

	queue chan model.QuestRecoInteraction
	done  chan struct{}
}

func NewInteractionLogger(repo InteractionRepository, pub EventPublisher, loc *time.Location) *InteractionLogger {
	return &InteractionLogger{
		repo:  repo,
		pub:   pub,
		loc:   loc,
		queue: make(chan model.QuestRecoInteraction, interactionBuffer),
		done:  make(chan struct{}),
	}
}

// Start launches the worker. Run exactly once.
func (l *InteractionLogger) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop closes the queue and waits for the worker to drain it.
func (l *InteractionLogger) Stop() {
	close(l.queue)
	<-l.done
}

// LogInteraction enqueues an event. When the buffer is full the event
// is dropped: interaction data is approximate analytics, never worth
// blocking a state transition for.
func (l *InteractionLogger) LogInteraction(userID, questID string, event model.InteractionEvent) {
	interaction := model.QuestRecoInteraction{
		ID:        model.NewID(),
		UserID:    userID,
		QuestID:   questID,
		Event:     event,
		CreatedAt: time.Now(),
	}

	select {
	case l.queue <- interaction:
	default:
		logger.Logger().Warn("interaction queue full, dropping event",
			zap.String("user_id", userID),
			zap.String("quest_id", questID),
			zap.String("event", string(event)))
	}
}

// RecommendedQuests returns today's recommendation rows for the user
// with their recorded funnel events.
func (l *InteractionLogger) RecommendedQuests(ctx context.Context, userID string) ([]*model.RecommendedQuest, error) {
	date := quest.DateOf(time.Now(), l.loc)
	return l.repo.GetRecommendedQuests(ctx, userID, date)
}

func (l *InteractionLogger) run(ctx context.Context) {
	defer close(l.done)
	for interaction := range l.queue {
		l.record(ctx, interaction)
	}
}

func (l *InteractionLogger) record(ctx context.Context, interaction model.QuestRecoInteraction) {
	log := logger.Logger()

	if err := l.repo.CreateInteraction(ctx, &interaction); err != nil {
		log.Error("failed to record interaction",
			zap.String("user_id", interaction.UserID),
			zap.String("quest_id", interaction.QuestID),
			zap.Error(err))
	}

	// Flip the daily recommendation flags for funnel events that map
	// onto them. A missing recommendation row is normal: not every
	// quest the user touches was recommended today.
	date := quest.DateOf(interaction.CreatedAt, l.loc)
	switch interaction.Event {
	case model.EventDetailClick:
		if err := l.repo.MarkRecommendationClicked(ctx, interaction.UserID, interaction.QuestID, date); err != nil {
			log.Warn("failed to mark recommendation clicked", zap.Error(err))
		}
	case model.EventComplete:
		if err := l.repo.MarkRecommendationCleared(ctx, interaction.UserID, interaction.QuestID, date); err != nil {
			log.Warn("failed to mark recommendation cleared", zap.Error(err))
		}
	}

	if l.pub != nil {
		if err := l.pub.Publish(ctx, "quest.interactions", interaction); err != nil {
			log.Warn("failed to publish interaction event", zap.Error(err))
		}
	}
}
