// Package quest holds the pure pieces of the lifecycle engine:
// verification strategies, the progress tracker and the period
// resolver. Nothing here performs I/O; collaborator lookups happen in
// the service layer and their results are passed in as input.
package quest

import (
	"fmt"

	"campus_quest_engine/internal/model"

	"github.com/goccy/go-json"
)

type OutcomeKind int

const (
	// Accepted carries a non-negative progress delta.
	Accepted OutcomeKind = iota
	// Rejected means the proof is wrong and retrying the same proof
	// will not help.
	Rejected
	// Pending means the proof could not be judged yet and the caller
	// should retry later.
	Pending
)

// Outcome is a verification strategy's judgement of submitted proof.
type Outcome struct {
	Kind   OutcomeKind
	Delta  int
	Reason string
	// ProofURL is set by proof-reference strategies so the attempt can
	// record the evidence it was accepted on.
	ProofURL string
}

func accepted(delta int) Outcome { return Outcome{Kind: Accepted, Delta: delta} }
func rejected(reason string) Outcome { return Outcome{Kind: Rejected, Reason: reason} }
func pending(reason string) Outcome { return Outcome{Kind: Pending, Reason: reason} }

// LocationReading is a client GPS fix.
type LocationReading struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	AccuracyM float64 `json:"accuracy_m"`
}

// Proof is the client-submitted half of a verification request.
// Location readings come from the device (there is no server-side
// location source), so GPS proofs are client-asserted fixes judged
// against the quest's target coordinate.
type Proof struct {
	Location    *LocationReading `json:"location,omitempty"`
	PaymentID   string           `json:"payment_id,omitempty"`
	ProofURL    string           `json:"proof_url,omitempty"`
	LinkVisited bool             `json:"link_visited,omitempty"`
	QuizScore   *int             `json:"quiz_score,omitempty"`
}

// PaymentStatus mirrors the payment collaborator's lookup result.
type PaymentStatus struct {
	State      string
	MerchantID string
}

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// Input bundles everything a strategy may consult: the attempt's
// counters plus collaborator results fetched by the service before the
// attempt row is locked.
type Input struct {
	Progress int
	Target   int

	// STEPS: cumulative count at attempt start and the latest reading.
	StepBaseline    int
	CumulativeSteps int

	// PAYMENT: nil when the lookup failed (treated as pending).
	Payment *PaymentStatus

	// ATTENDANCE: nil when the lookup failed.
	CheckedIn *bool

	Proof Proof
}

func (in Input) remaining() int {
	r := in.Target - in.Progress
	if r < 0 {
		return 0
	}
	return r
}

// Strategy judges proof for one verify method.
type Strategy interface {
	Evaluate(in Input) Outcome
}

// GPSParams is the verify_params payload for GPS quests.
type GPSParams struct {
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	RadiusM        float64 `json:"radius_m"`
	AccuracyLimitM float64 `json:"accuracy_limit_m,omitempty"`
}

type PaymentParams struct {
	MerchantID string `json:"merchant_id,omitempty"`
}

type QuizParams struct {
	PassScore int `json:"pass_score"`
}

type LinkParams struct {
	URL string `json:"url,omitempty"`
}

// StrategyFor returns the strategy for a quest, decoding its
// method-specific params. The switch is exhaustive over the verify
// method set; an unknown method is a data error, not a fallthrough.
func StrategyFor(q *model.Quest) (Strategy, error) {
	switch q.VerifyMethod {
	case model.VerifyGPS:
		var p GPSParams
		if err := decodeParams(q.VerifyParams, &p); err != nil {
			return nil, err
		}
		if p.RadiusM <= 0 {
			return nil, fmt.Errorf("quest %s: gps radius must be positive", q.ID)
		}
		return gpsStrategy{params: p}, nil
	case model.VerifySteps:
		return stepsStrategy{}, nil
	case model.VerifyPayment:
		var p PaymentParams
		if err := decodeParams(q.VerifyParams, &p); err != nil {
			return nil, err
		}
		return paymentStrategy{params: p}, nil
	case model.VerifyAttendance:
		return attendanceStrategy{}, nil
	case model.VerifyUpload, model.VerifyCertification, model.VerifyContest:
		return proofReferenceStrategy{}, nil
	case model.VerifyLink:
		return linkStrategy{}, nil
	case model.VerifyQuiz:
		var p QuizParams
		if err := decodeParams(q.VerifyParams, &p); err != nil {
			return nil, err
		}
		return quizStrategy{params: p}, nil
	default:
		return nil, fmt.Errorf("quest %s: unknown verify method %q", q.ID, q.VerifyMethod)
	}
}

func decodeParams(raw string, out interface{}) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode verify params: %w", err)
	}
	return nil
}

// gpsStrategy accepts a fix inside the target radius. Anything else is
// pending, not rejected: the user may simply walk closer or get a
// better fix and retry.
type gpsStrategy struct {
	params GPSParams
}

func (s gpsStrategy) Evaluate(in Input) Outcome {
	loc := in.Proof.Location
	if loc == nil {
		return pending("location reading unavailable")
	}
	if s.params.AccuracyLimitM > 0 && loc.AccuracyM > s.params.AccuracyLimitM {
		return pending("location accuracy too low")
	}
	dist := HaversineMeters(loc.Latitude, loc.Longitude, s.params.Lat, s.params.Lng)
	if dist > s.params.RadiusM {
		return pending(fmt.Sprintf("%.0fm from target, need within %.0fm", dist, s.params.RadiusM))
	}
	return accepted(in.remaining())
}

// stepsStrategy credits the cumulative step growth since the last
// counted reading, clamped to the remaining target. A sensor reset
// (cumulative below baseline+progress) is ignored rather than
// subtracted.
type stepsStrategy struct{}

func (stepsStrategy) Evaluate(in Input) Outcome {
	counted := in.StepBaseline + in.Progress
	delta := in.CumulativeSteps - counted
	if delta <= 0 {
		return pending("no new steps recorded")
	}
	if remaining := in.remaining(); delta > remaining {
		delta = remaining
	}
	return accepted(delta)
}

type paymentStrategy struct {
	params PaymentParams
}

func (s paymentStrategy) Evaluate(in Input) Outcome {
	if in.Proof.PaymentID == "" {
		return rejected("payment id is required")
	}
	if in.Payment == nil {
		return pending("payment status unavailable")
	}
	switch in.Payment.State {
	case PaymentCompleted:
		if s.params.MerchantID != "" && in.Payment.MerchantID != s.params.MerchantID {
			return rejected("payment merchant does not match quest")
		}
		return accepted(1)
	case PaymentPending:
		return pending("payment not completed yet")
	default:
		return rejected("payment failed")
	}
}

type attendanceStrategy struct{}

func (attendanceStrategy) Evaluate(in Input) Outcome {
	if in.CheckedIn == nil {
		return pending("attendance status unavailable")
	}
	if !*in.CheckedIn {
		return pending("no check-in recorded for today")
	}
	return accepted(1)
}

// proofReferenceStrategy covers upload, certification and contest
// quests. It performs no judgement of its own: human review is the
// downstream submitted→approved transition, so a non-empty proof
// reference clears the attempt immediately.
type proofReferenceStrategy struct{}

func (proofReferenceStrategy) Evaluate(in Input) Outcome {
	if in.Proof.ProofURL == "" {
		return rejected("proof url is required")
	}
	out := accepted(in.remaining())
	out.ProofURL = in.Proof.ProofURL
	return out
}

type linkStrategy struct{}

func (linkStrategy) Evaluate(in Input) Outcome {
	if !in.Proof.LinkVisited {
		return rejected("link has not been visited")
	}
	return accepted(1)
}

type quizStrategy struct {
	params QuizParams
}

func (s quizStrategy) Evaluate(in Input) Outcome {
	if in.Proof.QuizScore == nil {
		return rejected("quiz score is required")
	}
	if *in.Proof.QuizScore < s.params.PassScore {
		return rejected(fmt.Sprintf("score %d below pass score %d", *in.Proof.QuizScore, s.params.PassScore))
	}
	return accepted(in.remaining())
}
