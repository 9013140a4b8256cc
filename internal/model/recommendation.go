package model

import "time"

// InteractionEvent is one step of the recommendation funnel.
type InteractionEvent string

const (
	EventImpression  InteractionEvent = "impression"
	EventDetailClick InteractionEvent = "detail_click"
	EventStart       InteractionEvent = "start"
	EventComplete    InteractionEvent = "complete"
)

func (e InteractionEvent) Valid() bool {
	switch e {
	case EventImpression, EventDetailClick, EventStart, EventComplete:
		return true
	}
	return false
}

// QuestRecommendation is the daily recommendation row for a user/quest
// pair. The engine only flips is_click/is_cleared; rows are produced by
// the external ranking service.
type QuestRecommendation struct {
	ID                 string
	UserID             string
	QuestID            string
	RecommendationDate string
	IsClick            bool
	IsCleared          bool
	Expired            bool
}

// RecommendedQuest is a recommendation joined with the interaction
// events recorded for it so far.
type RecommendedQuest struct {
	QuestID   string
	IsClick   bool
	IsCleared bool
	Events    []InteractionEvent
}

// QuestRecoInteraction is one append-only funnel event. Rows are never
// updated or deleted.
type QuestRecoInteraction struct {
	ID        string
	UserID    string
	QuestID   string
	Event     InteractionEvent
	CreatedAt time.Time
}
