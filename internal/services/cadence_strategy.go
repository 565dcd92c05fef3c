// This file implements the strategy registry deciding whether a recurring
// bill falls due in a given month. Each frequency has its own checker.

package services

import (
	"fmt"

	"billstack/internal/core"
)

// CadenceAnchor selects the month quarterly and yearly cadences count from.
type CadenceAnchor string

const (
	// AnchorCalendar counts from January: quarterly bills fall due in
	// months 0, 3, 6, 9 and yearly bills in month 0.
	AnchorCalendar CadenceAnchor = "calendar"
	// AnchorCreation counts from the month the bill was created.
	AnchorCreation CadenceAnchor = "creation"
)

// ParseCadenceAnchor accepts "calendar" and "creation"; empty means calendar.
func ParseCadenceAnchor(s string) (CadenceAnchor, error) {
	switch CadenceAnchor(s) {
	case "", AnchorCalendar:
		return AnchorCalendar, nil
	case AnchorCreation:
		return AnchorCreation, nil
	}
	return "", fmt.Errorf("unknown cadence anchor: %s", s)
}

// anchorMonth returns the 0-indexed month the bill's cycle starts from.
func (a CadenceAnchor) anchorMonth(b core.Bill) int {
	if a == AnchorCreation && !b.CreatedAt.IsZero() {
		return int(b.CreatedAt.Month()) - 1
	}
	return 0
}

// CadenceChecker is the strategy interface for recurring bill cadence.
type CadenceChecker interface {
	// IsDue reports whether the bill has an occurrence in period p.
	IsDue(b core.Bill, p core.Period, anchor CadenceAnchor) bool
}

// MonthlyCadence is due every month.
type MonthlyCadence struct{}

func (MonthlyCadence) IsDue(core.Bill, core.Period, CadenceAnchor) bool { return true }

// QuarterlyCadence is due every third month from the anchor.
type QuarterlyCadence struct{}

func (QuarterlyCadence) IsDue(b core.Bill, p core.Period, anchor CadenceAnchor) bool {
	return (p.Month-anchor.anchorMonth(b)+12)%3 == 0
}

// YearlyCadence is due in the anchor month only.
type YearlyCadence struct{}

func (YearlyCadence) IsDue(b core.Bill, p core.Period, anchor CadenceAnchor) bool {
	return p.Month == anchor.anchorMonth(b)
}

// OneTimeCadence has a single occurrence whose paid-ness lives in the
// bill's stored status, so every month is a candidate.
type OneTimeCadence struct{}

func (OneTimeCadence) IsDue(core.Bill, core.Period, CadenceAnchor) bool { return true }

var cadenceStrategies = map[core.Frequency]CadenceChecker{
	core.Monthly:   MonthlyCadence{},
	core.Quarterly: QuarterlyCadence{},
	core.Yearly:    YearlyCadence{},
	core.OneTime:   OneTimeCadence{},
}

// GetCadenceChecker returns the checker for a frequency.
func GetCadenceChecker(frequency core.Frequency) (CadenceChecker, error) {
	checker, ok := cadenceStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidFrequency, frequency)
	}
	return checker, nil
}

// RegisterCadenceChecker installs a checker for a new frequency.
func RegisterCadenceChecker(frequency core.Frequency, checker CadenceChecker) {
	cadenceStrategies[frequency] = checker
}
