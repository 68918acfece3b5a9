package analysis

import (
	"math"
	"strings"

	"feedback-go/internal/models"
)

// likertScores maps ordinal answers to 1-5. Numeric answers go through
// ScoreValue's range check instead.
var likertScores = map[string]float64{
	"strongly agree":    5,
	"agree":             4,
	"neutral":           3,
	"disagree":          2,
	"strongly disagree": 1,
	"excellent":         5,
	"very good":         4,
	"good":              3,
	"average":           2,
	"fair":              2,
	"poor":              1,
	"1":                 1,
	"2":                 2,
	"3":                 3,
	"4":                 4,
	"5":                 5,
}

// ScoreValue converts a rating cell into a 1-5 score. Cells that are neither a
// known Likert answer nor a number in [1,5] are rejected.
func ScoreValue(v models.Value) (float64, bool) {
	switch v.Kind {
	case models.KindNumber:
		if v.Num >= 1 && v.Num <= 5 {
			return v.Num, true
		}
		return 0, false
	case models.KindString:
		score, ok := likertScores[strings.ToLower(v.Text())]
		return score, ok
	}
	return 0, false
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// bucket maps a score to its 1-5 distribution slot (0-based).
func bucket(score float64) int {
	b := int(math.Round(score))
	if b < 1 {
		b = 1
	}
	if b > 5 {
		b = 5
	}
	return b - 1
}
