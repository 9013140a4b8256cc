package quest

import (
	"fmt"
	"time"

	"campus_quest_engine/internal/model"
)

// AnyPeriodKey is the constant key for scope-less quests: one lifetime
// attempt per user per quest.
const AnyPeriodKey = "-"

// ResolveKey computes the canonical period key an attempt at time t
// belongs to. Weekly keys are ISO weeks (Monday start).
func ResolveKey(scope model.PeriodScope, t time.Time, loc *time.Location) (string, error) {
	local := t.In(loc)
	switch scope {
	case model.ScopeAny:
		return AnyPeriodKey, nil
	case model.ScopeDaily:
		return local.Format("2006-01-02"), nil
	case model.ScopeWeekly:
		year, week := local.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case model.ScopeMonthly:
		return local.Format("2006-01"), nil
	default:
		return "", fmt.Errorf("unknown period scope %q", scope)
	}
}

// DateOf returns the calendar date portion used by daily-keyed lookups
// (attendance check-ins, recommendation rows).
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
