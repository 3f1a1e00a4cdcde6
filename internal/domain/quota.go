package domain

import "time"

// PlanTier enumerates billing plans.
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanStarter  PlanTier = "starter"
	PlanPro      PlanTier = "pro"
	PlanTeam     PlanTier = "team"
	PlanLifetime PlanTier = "lifetime"
)

// PeriodKind is the quota accounting window.
type PeriodKind string

const (
	PeriodDaily   PeriodKind = "daily"
	PeriodMonthly PeriodKind = "monthly"
)

// PlanLimits is the static per-tier quota configuration. Untracked tiers are
// unlimited and never touch the counter.
type PlanLimits struct {
	Capacity int
	Period   PeriodKind
	Tracked  bool
}

// DefaultPlanLimits mirrors the product plan table. Unknown tiers fall back
// to free.
var DefaultPlanLimits = map[PlanTier]PlanLimits{
	PlanFree:     {Capacity: 1, Period: PeriodDaily, Tracked: true},
	PlanStarter:  {Capacity: 20, Period: PeriodDaily, Tracked: true},
	PlanPro:      {Tracked: false},
	PlanTeam:     {Tracked: false},
	PlanLifetime: {Tracked: false},
}

// QuotaCounter is the per-owner, per-capability usage record.
type QuotaCounter struct {
	Owner       string
	Capability  string
	PeriodCount int
	PeriodKind  PeriodKind
	LastResetAt time.Time
}

// NeedsReset reports whether now has crossed the counter's period boundary
// since the last reset. Daily periods roll on calendar-date change, monthly
// periods on month or year change.
func (c QuotaCounter) NeedsReset(now time.Time) bool {
	switch c.PeriodKind {
	case PeriodMonthly:
		return now.Month() != c.LastResetAt.Month() || now.Year() != c.LastResetAt.Year()
	default:
		ny, nm, nd := now.Date()
		ly, lm, ld := c.LastResetAt.Date()
		return ny != ly || nm != lm || nd != ld
	}
}

// QuotaSnapshot is the admission decision returned to callers.
type QuotaSnapshot struct {
	Allowed   bool     `json:"allowed"`
	Used      int      `json:"used"`
	Limit     int      `json:"limit"`
	Plan      PlanTier `json:"plan"`
	Unlimited bool     `json:"unlimited"`
}
