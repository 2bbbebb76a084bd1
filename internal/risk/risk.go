// Package risk converts accumulated detection counts into a bounded trust score.
//
// Device detections weigh three times as much as head movements. The weighted
// index is scaled by five and clamped to 0..100 to give the cheating percentage;
// the trust score is its complement. Every function here is pure and safe for
// concurrent use.
package risk

import "github.com/ent0n29/proctor/internal/store"

const (
	weightHeadMovement = 1
	weightDevice       = 3
	indexScale         = 5

	maxPercentage = 100

	// FlagThreshold is the cheating percentage a finalized session must exceed
	// to be flagged.
	FlagThreshold = 50
)

// Assessment is the derived view of a session's detection counts.
type Assessment struct {
	CheatingPercentage int `json:"cheating_percentage"`
	TrustScore         int `json:"trust_score"`
}

// Score maps head movement and device detection counts to an Assessment.
// Negative counts are treated as zero.
func Score(headMovements, deviceDetections int) Assessment {
	index := max(headMovements, 0)*weightHeadMovement + max(deviceDetections, 0)*weightDevice
	cheating := min(index*indexScale, maxPercentage)
	return Assessment{
		CheatingPercentage: cheating,
		TrustScore:         maxPercentage - cheating,
	}
}

// Flagged reports whether a cheating percentage crosses the flag threshold.
// The boundary is strict: exactly 50 is not flagged.
func Flagged(cheatingPercentage int) bool {
	return cheatingPercentage > FlagThreshold
}

// FinalStatus returns the terminal status a session receives at finalization.
func FinalStatus(cheatingPercentage int) store.Status {
	if Flagged(cheatingPercentage) {
		return store.StatusFlagged
	}
	return store.StatusCompleted
}

// Tier is a display classification of a trust score. It never affects the
// flagged verdict.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// TierFor classifies a trust score: >=80 low risk, 60-79 medium, <60 high.
func TierFor(trustScore int) Tier {
	switch {
	case trustScore >= 80:
		return TierLow
	case trustScore >= 60:
		return TierMedium
	default:
		return TierHigh
	}
}

// Gauge is the live indicator shown next to the cheating percentage while a
// session is running.
type Gauge string

const (
	GaugeOK      Gauge = "ok"
	GaugeCaution Gauge = "caution"
	GaugeAlert   Gauge = "alert"
)

// GaugeFor classifies a live cheating percentage.
func GaugeFor(cheatingPercentage int) Gauge {
	switch {
	case cheatingPercentage < 20:
		return GaugeOK
	case cheatingPercentage < 50:
		return GaugeCaution
	default:
		return GaugeAlert
	}
}
