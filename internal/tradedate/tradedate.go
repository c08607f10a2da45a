// Package tradedate resolves which trading date a daily update should fetch.
package tradedate

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/rickgao/brmarket-history/internal/calendar"
)

const (
	// MarketTimezone is where the cutoff hour is evaluated.
	MarketTimezone = "America/Sao_Paulo"

	// CutoffHour is the local hour from which today's data is considered published.
	CutoffHour = 20
)

// Resolution is the outcome of resolving a target date.
type Resolution struct {
	Now    time.Time // now in the market timezone
	Today  time.Time // civil date of Now
	Target time.Time // trading date to fetch
	Skip   bool      // no update should run for Target
	Reason string
}

// Resolver resolves target dates for a given timezone and cutoff hour.
type Resolver struct {
	loc    *time.Location
	cutoff int
}

// NewResolver creates a Resolver. An empty timezone means MarketTimezone.
func NewResolver(timezone string, cutoffHour int) (*Resolver, error) {
	if timezone == "" {
		timezone = MarketTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}
	if cutoffHour < 0 || cutoffHour > 23 {
		return nil, fmt.Errorf("cutoff hour %d out of range", cutoffHour)
	}
	return &Resolver{loc: loc, cutoff: cutoffHour}, nil
}

// Location returns the market timezone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve computes the target date for now and reports whether the run
// should be skipped.
func (r *Resolver) Resolve(now time.Time, cal calendar.Oracle) Resolution {
	local := now.In(r.loc)
	today := calendar.Truncate(local)

	var target time.Time
	switch {
	case !cal.IsBusinessDay(today):
		target = cal.LastBusinessDay(today)
	case local.Hour() < r.cutoff:
		target = cal.Offset(today, -1)
	default:
		target = today
	}

	res := Resolution{Now: local, Today: today, Target: target}
	if IsSpecialHoliday(target) {
		res.Skip = true
		res.Reason = fmt.Sprintf("no trading session on %s", target.Format("Jan 2"))
	}
	return res
}

// ResolveTargetDate returns the trading date whose data should be fetched at
// now: today when today is a business day and the local clock is past the
// cutoff hour, the previous business day before the cutoff, and the last
// business day when today is not one.
func ResolveTargetDate(now time.Time, cal calendar.Oracle) time.Time {
	r, err := NewResolver(MarketTimezone, CutoffHour)
	if err != nil {
		panic(err)
	}
	return r.Resolve(now, cal).Target
}

// IsSpecialHoliday reports whether d is Dec 24 or Dec 31. B3 holds no session
// on those days although the national calendar counts them as business days.
func IsSpecialHoliday(d time.Time) bool {
	return d.Month() == time.December && (d.Day() == 24 || d.Day() == 31)
}
