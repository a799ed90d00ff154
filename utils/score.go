package utils

import "math"

// Factor caps for the lead score. Each factor is clamped on its own, then the
// sum is clamped to [0,100].
const (
	companySizeWeight = 25
	contactWeight     = 20
	qualityWeight     = 15
	engagementWeight  = 40

	// engagementSaturation is the signal count at which the engagement
	// factor reaches its cap.
	engagementSaturation = 20
)

// ScoreInput is everything the score calculator looks at. It is a plain value
// so the calculation stays pure and repeatable.
type ScoreInput struct {
	CompanySize int

	// Contact completeness fields
	Phone    string
	Position string
	Website  string

	// Data quality fields
	FirstName string
	LastName  string
	Company   string
	Source    string

	// Engagement counters. DistinctClicks is the number of distinct URLs
	// clicked across the lead's tracked emails; Opened means at least one
	// tracked email was opened. Raw event counts are deliberately not used
	// so replayed opens/clicks cannot inflate the score.
	DistinctClicks int
	Opened         bool
}

// CalculateLeadScore returns a deterministic score in [0,100]. Recomputing on
// identical input always yields the identical value.
func CalculateLeadScore(in ScoreInput) int {
	score := companySizeScore(in.CompanySize) +
		completenessScore(contactFieldCount(in), 3, contactWeight) +
		completenessScore(qualityFieldCount(in), 4, qualityWeight) +
		engagementScore(in)

	return clamp(score, 0, 100)
}

func companySizeScore(employees int) int {
	switch {
	case employees >= 1000:
		return 25
	case employees >= 200:
		return 18
	case employees >= 50:
		return 12
	case employees >= 1:
		return 6
	default:
		return 0
	}
}

func contactFieldCount(in ScoreInput) int {
	return countNonEmpty(in.Phone, in.Position, in.Website)
}

func qualityFieldCount(in ScoreInput) int {
	return countNonEmpty(in.FirstName, in.LastName, in.Company, in.Source)
}

func completenessScore(filled, total, weight int) int {
	if filled <= 0 {
		return 0
	}
	if filled > total {
		filled = total
	}
	return int(math.Round(float64(filled) / float64(total) * float64(weight)))
}

// engagementScore grows logarithmically so the first signals count most and
// repeated engagement has diminishing returns.
func engagementScore(in ScoreInput) int {
	signals := in.DistinctClicks
	if in.Opened {
		signals++
	}
	if signals <= 0 {
		return 0
	}

	raw := float64(engagementWeight) *
		math.Log1p(float64(signals)) / math.Log1p(engagementSaturation)
	return clamp(int(math.Round(raw)), 0, engagementWeight)
}

func countNonEmpty(values ...string) int {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
