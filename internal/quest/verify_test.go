package quest

import (
	"testing"

	"campus_quest_engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gpsQuest(t *testing.T) *model.Quest {
	t.Helper()
	return &model.Quest{
		ID:           "Q1",
		VerifyMethod: model.VerifyGPS,
		VerifyParams: `{"lat": 37.5665, "lng": 126.9780, "radius_m": 100}`,
		TargetCount:  1,
	}
}

func TestGPSStrategy(t *testing.T) {
	strategy, err := StrategyFor(gpsQuest(t))
	require.NoError(t, err)

	tests := []struct {
		name     string
		location *LocationReading
		expected OutcomeKind
		delta    int
	}{
		{
			name:     "At target coordinate",
			location: &LocationReading{Latitude: 37.5665, Longitude: 126.9780, AccuracyM: 10},
			expected: Accepted,
			delta:    1,
		},
		{
			name: "Roughly 200m away",
			// ~0.0018 degrees of latitude is ~200m.
			location: &LocationReading{Latitude: 37.5683, Longitude: 126.9780, AccuracyM: 10},
			expected: Pending,
		},
		{
			name:     "No reading",
			location: nil,
			expected: Pending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := strategy.Evaluate(Input{
				Target: 1,
				Proof:  Proof{Location: tt.location},
			})
			assert.Equal(t, tt.expected, out.Kind)
			if tt.expected == Accepted {
				assert.Equal(t, tt.delta, out.Delta)
			}
		})
	}
}

func TestGPSStrategy_AccuracyLimit(t *testing.T) {
	q := gpsQuest(t)
	q.VerifyParams = `{"lat": 37.5665, "lng": 126.9780, "radius_m": 100, "accuracy_limit_m": 50}`
	strategy, err := StrategyFor(q)
	require.NoError(t, err)

	out := strategy.Evaluate(Input{
		Target: 1,
		Proof:  Proof{Location: &LocationReading{Latitude: 37.5665, Longitude: 126.9780, AccuracyM: 120}},
	})
	assert.Equal(t, Pending, out.Kind)
}

func TestStepsStrategy(t *testing.T) {
	strategy := stepsStrategy{}

	tests := []struct {
		name       string
		progress   int
		baseline   int
		cumulative int
		expected   OutcomeKind
		delta      int
	}{
		{
			name:       "First reading after start",
			progress:   0,
			baseline:   50000,
			cumulative: 53000,
			expected:   Accepted,
			delta:      3000,
		},
		{
			name:       "Delta clamped to remaining",
			progress:   3000,
			baseline:   50000,
			cumulative: 61000,
			expected:   Accepted,
			delta:      7000,
		},
		{
			name:       "Sensor reset ignored",
			progress:   3000,
			baseline:   50000,
			cumulative: 200,
			expected:   Pending,
		},
		{
			name:       "No new steps",
			progress:   3000,
			baseline:   50000,
			cumulative: 53000,
			expected:   Pending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := strategy.Evaluate(Input{
				Progress:        tt.progress,
				Target:          10000,
				StepBaseline:    tt.baseline,
				CumulativeSteps: tt.cumulative,
			})
			assert.Equal(t, tt.expected, out.Kind)
			if tt.expected == Accepted {
				assert.Equal(t, tt.delta, out.Delta)
			}
		})
	}
}

func TestPaymentStrategy(t *testing.T) {
	strategy := paymentStrategy{params: PaymentParams{MerchantID: "M-77"}}

	tests := []struct {
		name     string
		proof    Proof
		payment  *PaymentStatus
		expected OutcomeKind
	}{
		{
			name:     "Completed at bound merchant",
			proof:    Proof{PaymentID: "P1"},
			payment:  &PaymentStatus{State: PaymentCompleted, MerchantID: "M-77"},
			expected: Accepted,
		},
		{
			name:     "Completed at wrong merchant",
			proof:    Proof{PaymentID: "P1"},
			payment:  &PaymentStatus{State: PaymentCompleted, MerchantID: "M-1"},
			expected: Rejected,
		},
		{
			name:     "Still pending",
			proof:    Proof{PaymentID: "P1"},
			payment:  &PaymentStatus{State: PaymentPending},
			expected: Pending,
		},
		{
			name:     "Failed",
			proof:    Proof{PaymentID: "P1"},
			payment:  &PaymentStatus{State: PaymentFailed},
			expected: Rejected,
		},
		{
			name:     "Lookup unavailable",
			proof:    Proof{PaymentID: "P1"},
			payment:  nil,
			expected: Pending,
		},
		{
			name:     "Missing payment id",
			proof:    Proof{},
			expected: Rejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := strategy.Evaluate(Input{Target: 1, Payment: tt.payment, Proof: tt.proof})
			assert.Equal(t, tt.expected, out.Kind)
		})
	}
}

func TestAttendanceStrategy(t *testing.T) {
	strategy := attendanceStrategy{}

	checkedIn := true
	notCheckedIn := false

	out := strategy.Evaluate(Input{Target: 1, CheckedIn: &checkedIn})
	assert.Equal(t, Accepted, out.Kind)
	assert.Equal(t, 1, out.Delta)

	out = strategy.Evaluate(Input{Target: 1, CheckedIn: &notCheckedIn})
	assert.Equal(t, Pending, out.Kind)

	out = strategy.Evaluate(Input{Target: 1})
	assert.Equal(t, Pending, out.Kind)
}

func TestProofReferenceStrategy(t *testing.T) {
	strategy := proofReferenceStrategy{}

	out := strategy.Evaluate(Input{Target: 1, Proof: Proof{ProofURL: "https://cdn.example.com/p.jpg"}})
	assert.Equal(t, Accepted, out.Kind)
	assert.Equal(t, 1, out.Delta)
	assert.Equal(t, "https://cdn.example.com/p.jpg", out.ProofURL)

	out = strategy.Evaluate(Input{Target: 1})
	assert.Equal(t, Rejected, out.Kind)
}

func TestQuizStrategy(t *testing.T) {
	strategy := quizStrategy{params: QuizParams{PassScore: 80}}

	pass := 85
	fail := 60

	out := strategy.Evaluate(Input{Target: 1, Proof: Proof{QuizScore: &pass}})
	assert.Equal(t, Accepted, out.Kind)

	out = strategy.Evaluate(Input{Target: 1, Proof: Proof{QuizScore: &fail}})
	assert.Equal(t, Rejected, out.Kind)

	out = strategy.Evaluate(Input{Target: 1})
	assert.Equal(t, Rejected, out.Kind)
}

func TestLinkStrategy(t *testing.T) {
	strategy := linkStrategy{}

	out := strategy.Evaluate(Input{Target: 1, Proof: Proof{LinkVisited: true}})
	assert.Equal(t, Accepted, out.Kind)

	out = strategy.Evaluate(Input{Target: 1})
	assert.Equal(t, Rejected, out.Kind)
}

func TestStrategyFor_UnknownMethod(t *testing.T) {
	_, err := StrategyFor(&model.Quest{ID: "QX", VerifyMethod: "TELEPATHY"})
	assert.Error(t, err)
}

func TestStrategyFor_BadGPSParams(t *testing.T) {
	_, err := StrategyFor(&model.Quest{
		ID:           "QX",
		VerifyMethod: model.VerifyGPS,
		VerifyParams: `{"lat": 1.0, "lng": 2.0}`,
	})
	assert.Error(t, err)
}

func TestHaversineMeters(t *testing.T) {
	// Seoul City Hall to Gwanghwamun is roughly 1km.
	d := HaversineMeters(37.5665, 126.9780, 37.5759, 126.9769)
	assert.InDelta(t, 1045, d, 60)

	assert.Zero(t, HaversineMeters(37.5665, 126.9780, 37.5665, 126.9780))
}
