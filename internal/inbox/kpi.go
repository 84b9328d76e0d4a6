package inbox

import (
	"time"

	"github.com/xaenox/hitome/internal/models"
)

// CalculateMetrics computes the store KPIs for the month containing now
func CalculateMetrics(threads []*models.Thread, segment models.AlertSegment, now time.Time) models.KPIMetrics {
	var m models.KPIMetrics
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	threshold := time.Duration(segment.Minutes()) * time.Minute

	var (
		responseTotal time.Duration
		responded     int
	)
	// days of this month that still have an unhandled thread received on them
	unhandledDays := make(map[int]struct{})

	for _, t := range threads {
		switch t.Status {
		case models.StatusUnhandled:
			m.UnhandledCount++
		case models.StatusReview:
			m.ReviewCount++
		}

		if t.ReceivedAt.Before(monthStart) || t.ReceivedAt.After(now) {
			continue
		}
		received := t.ReceivedAt.In(now.Location())

		if t.Status == models.StatusUnhandled {
			unhandledDays[received.Day()] = struct{}{}
			if now.Sub(t.ReceivedAt) > threshold {
				m.MissedThisMonth++
			}
		}
		if t.Status == models.StatusCompleted && t.CompletedAt != nil {
			d := t.CompletedAt.Sub(t.ReceivedAt)
			if d < 0 {
				d = 0
			}
			responseTotal += d
			responded++
		}
	}

	if responded > 0 {
		m.AvgResponseMinutes = int(responseTotal / time.Duration(responded) / time.Minute)
	}
	for day := 1; day <= now.Day(); day++ {
		if _, ok := unhandledDays[day]; !ok {
			m.ZeroUnhandledDays++
		}
	}
	return m
}
