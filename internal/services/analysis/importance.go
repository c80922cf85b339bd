package analysis

import "time"

// ImportanceScore rates a document from 0 to 100. Starting at 50 it adds
// points for deadline proximity, urgency, amount and required action, then
// scales the total by 70% to 100% depending on confidence.
func ImportanceScore(r Result, now time.Time) float64 {
	score := 50.0

	if r.Deadline != nil {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		due := time.Date(r.Deadline.Year(), r.Deadline.Month(), r.Deadline.Day(), 0, 0, 0, 0, time.UTC)
		days := int(due.Sub(today).Hours() / 24)
		switch {
		case days < 0:
			score += 30
		case days <= 3:
			score += 25
		case days <= 7:
			score += 20
		case days <= 14:
			score += 15
		case days <= 30:
			score += 10
		}
	}

	if r.Factors.IsUrgent {
		score += 15
	}

	switch {
	case r.Factors.HasHighAmount:
		score += 15
	case r.Amount != nil:
		amount := r.Amount.Float()
		switch {
		case amount > 1000:
			score += 15
		case amount > 500:
			score += 10
		case amount > 200:
			score += 5
		}
	}

	if r.Factors.RequiresAction {
		score += 10
	}

	score *= 0.7 + 0.3*r.Confidence
	return clamp(score, 0, 100)
}
