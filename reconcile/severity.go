/*
severity.go - Variance classification

Tiers by absolute variance percent, inclusive-lower / exclusive-upper:

  < 1%        NORMAL   (no alert)
  [1%, 5%)    MINOR
  [5%, 10%)   WARNING
  >= 10%      CRITICAL

When expected stock is zero (or negative, which is itself an anomaly),
the percentage is undefined; any nonzero variance is then forced to
CRITICAL because a count appearing against zero expected stock is a
100%+ signal by definition.
*/
package reconcile

import (
	"math"

	"github.com/tally/shopledger/ledger"
)

// Classify maps an absolute variance percent onto a severity tier.
func Classify(variancePercent float64) ledger.Severity {
	abs := math.Abs(variancePercent)
	switch {
	case abs >= 10.0:
		return ledger.SeverityCritical
	case abs >= 5.0:
		return ledger.SeverityWarning
	case abs >= 1.0:
		return ledger.SeverityMinor
	default:
		return ledger.SeverityNormal
	}
}

// Grade computes the canonical variance percent and severity for a
// verification. The percent is always variance over expected stock at
// verification time; there is no alternate definition elsewhere.
func Grade(expected, variance int64) (percent float64, severity ledger.Severity) {
	if expected > 0 {
		percent = float64(variance) / float64(expected) * 100
		return percent, Classify(percent)
	}

	// Undefined percent: report 0 but never let a nonzero variance pass
	// as NORMAL.
	if variance != 0 {
		return 0, ledger.SeverityCritical
	}
	return 0, ledger.SeverityNormal
}
