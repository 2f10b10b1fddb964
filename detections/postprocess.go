package detections

import (
	"fmt"

	"github.com/Tutortoise/deepfake-detector/models"
)

func FormatConfidence(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}

// RiskLevel buckets a score on its own scale; it is not calibrated against
// the 0.5 verdict threshold.
func RiskLevel(score float64) string {
	switch {
	case score > HighRiskScore:
		return RiskHigh
	case score > MediumRiskScore:
		return RiskMedium
	default:
		return RiskLow
	}
}

func IsFake(score float64) bool {
	return score > VerdictThreshold
}

func mediaLabel(score float64) string {
	if IsFake(score) {
		return LabelAIGenerated
	}
	return LabelReal
}

func textLabel(score float64) string {
	if IsFake(score) {
		return LabelAIGenerated
	}
	return LabelHumanWritten
}

// Finalize fills the presentation fields derived from the score.
func Finalize(r models.DetectionResult) models.DetectionResult {
	r.Confidence = FormatConfidence(r.Score)
	r.RiskLevel = RiskLevel(r.Score)
	return r
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
