// Package classifier labels blood-pressure readings against a personal
// baseline.
package classifier

import "pressiotrack/internal/models"

const (
	systolicMargin  = 15
	diastolicMargin = 10
)

// Classify returns HIGH, LOW or NORMAL for the reading. Values are not
// validated. HIGH is evaluated before LOW so that a degenerate baseline
// satisfying both still yields HIGH.
func Classify(systolic, diastolic int, b models.Baseline) models.Status {
	switch {
	case systolic >= b.Systolic+systolicMargin || diastolic >= b.Diastolic+diastolicMargin:
		return models.StatusHigh
	case systolic < b.Systolic-systolicMargin || diastolic < b.Diastolic-diastolicMargin:
		return models.StatusLow
	default:
		return models.StatusNormal
	}
}
