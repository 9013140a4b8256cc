package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// QuestKind is the campaign classification of a quest. It does not
// affect engine logic.
type QuestKind string

const (
	KindLife     QuestKind = "life"
	KindGrowth   QuestKind = "growth"
	KindSurprise QuestKind = "surprise"
)

type QuestCategory string

const (
	CategoryStudy         QuestCategory = "STUDY"
	CategoryHealth        QuestCategory = "HEALTH"
	CategoryEcon          QuestCategory = "ECON"
	CategoryLife          QuestCategory = "LIFE"
	CategoryEntertainment QuestCategory = "ENT"
	CategorySaving        QuestCategory = "SAVING"
)

// VerifyMethod determines which verification strategy judges proof
// submitted against a quest.
type VerifyMethod string

const (
	VerifyGPS           VerifyMethod = "GPS"
	VerifySteps         VerifyMethod = "STEPS"
	VerifyLink          VerifyMethod = "LINK"
	VerifyUpload        VerifyMethod = "UPLOAD"
	VerifyPayment       VerifyMethod = "PAYMENT"
	VerifyAttendance    VerifyMethod = "ATTENDANCE"
	VerifyCertification VerifyMethod = "CERTIFICATION"
	VerifyContest       VerifyMethod = "CONTEST"
	VerifyQuiz          VerifyMethod = "QUIZ"
)

// SelfVerifying reports whether the method's Verify step already
// constitutes proof, so Submit may auto-run the approval path. Upload,
// certification and contest proofs wait for a human reviewer instead.
func (m VerifyMethod) SelfVerifying() bool {
	switch m {
	case VerifyUpload, VerifyCertification, VerifyContest:
		return false
	default:
		return true
	}
}

// RequiresProofURL reports whether an attempt must carry a proof
// reference before it can be submitted.
func (m VerifyMethod) RequiresProofURL() bool {
	return !m.SelfVerifying()
}

// PeriodScope governs re-attempt eligibility of a quest over time.
type PeriodScope string

const (
	ScopeAny     PeriodScope = "any"
	ScopeDaily   PeriodScope = "daily"
	ScopeWeekly  PeriodScope = "weekly"
	ScopeMonthly PeriodScope = "monthly"
)

type AttemptStatus string

const (
	// StatusDeactive is virtual: it is reported for quests the user has
	// never started and is never persisted.
	StatusDeactive   AttemptStatus = "deactive"
	StatusInProgress AttemptStatus = "in_progress"
	StatusClear      AttemptStatus = "clear"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusApproved   AttemptStatus = "approved"
)

// Terminal reports whether the status blocks a new attempt within the
// same period key.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case StatusClear, StatusSubmitted, StatusApproved:
		return true
	default:
		return false
	}
}

// Quest is an immutable quest definition published by an external
// content-management process.
type Quest struct {
	ID           string
	Kind         QuestKind
	Title        string
	Description  string
	Category     QuestCategory
	VerifyMethod VerifyMethod
	VerifyParams string
	RewardExp    int
	TargetCount  int
	PeriodScope  PeriodScope
	Active       bool
	CreatedAt    time.Time
}

// QuestAttempt is one user's try at a quest within one period key.
// TargetCount is snapshotted from the quest at start time, so later
// quest edits never move the goalposts of a running attempt.
type QuestAttempt struct {
	ID            string
	QuestID       string
	UserID        string
	Status        AttemptStatus
	ProgressCount int
	TargetCount   int
	ProofURL      *string
	PeriodScope   PeriodScope
	PeriodKey     string
	StepBaseline  int
	StartedAt     time.Time
	SubmittedAt   *time.Time
	ApprovedAt    *time.Time
}

// QuestWithAttempt pairs a quest definition with the user's latest
// attempt for it, if any.
type QuestWithAttempt struct {
	Quest   Quest
	Attempt *QuestAttempt
}

// RewardDispatch records a one-time experience credit keyed by attempt
// id. The unique key is what makes approval retries safe.
type RewardDispatch struct {
	AttemptID    string
	UserID       string
	QuestID      string
	Amount       int
	DispatchedAt time.Time
}

// AttemptMutation is the committed outcome of one state-machine
// transition, applied atomically to the locked attempt row. A non-nil
// Reward is inserted in the same transaction.
type AttemptMutation struct {
	Status        AttemptStatus
	ProgressCount int
	ProofURL      *string
	SubmittedAt   *time.Time
	ApprovedAt    *time.Time
	Reward        *RewardDispatch
}

// CreditResult is the gamification ledger's answer to a credit request.
type CreditResult string

const (
	CreditOK        CreditResult = "success"
	CreditDuplicate CreditResult = "already-credited"
)

// NewID returns a 26-char uppercase hex identifier, the id format used
// across the quest tables.
func NewID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:26])
}
