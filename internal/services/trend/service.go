// Package trend projects when a provider's session window will be exhausted.
package trend

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/models"
)

const (
	lowConfThreshold = 6
	medConfThreshold = 24

	// resetDropPoints is the fall in used percent treated as a window reset.
	resetDropPoints = 5.0

	// DefaultLookback bounds the snapshots considered for the rate.
	DefaultLookback = 5 * time.Hour
)

// SnapshotStore reads recorded usage snapshots.
type SnapshotStore interface {
	GetSnapshots(ctx context.Context, provider string, since time.Time) ([]models.UsageSnapshot, error)
}

type Service struct {
	store    SnapshotStore
	now      func() time.Time
	lookback time.Duration
}

func New(store SnapshotStore) *Service {
	return &Service{
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		lookback: DefaultLookback,
	}
}

// Project loads recent snapshots for current's provider and projects its session window.
func (s *Service) Project(ctx context.Context, current models.UsageData) (models.WindowProjection, error) {
	now := s.now()
	snaps, err := s.store.GetSnapshots(ctx, current.Provider, now.Add(-s.lookback))
	if err != nil {
		return models.WindowProjection{}, fmt.Errorf("failed to load snapshots: %w", err)
	}

	var percent float64
	var resetAt *time.Time
	if current.Session != nil {
		percent = current.Session.Percent()
		resetAt = current.Session.ResetAt
	}

	proj := Calculate(current.Provider, snaps, percent, resetAt, now)
	logger.Debug("Calculated projection",
		"provider", current.Provider,
		"status", proj.Status,
		"rate_per_hour", proj.RatePerHour,
		"data_points", proj.DataPoints,
	)
	return proj, nil
}

// Calculate projects exhaustion of the session window from snapshots in ascending time order.
func Calculate(provider string, snaps []models.UsageSnapshot, currentPercent float64, resetAt *time.Time, now time.Time) models.WindowProjection {
	points := currentWindow(snaps)

	proj := models.WindowProjection{
		Provider:       provider,
		CurrentPercent: currentPercent,
		DataPoints:     len(points),
		Status:         models.ProjectionUnknown,
		Confidence:     confidence(len(points)),
		HoursLeft:      math.Inf(1),
	}
	if resetAt != nil {
		proj.ResetAt = *resetAt
	}

	if currentPercent >= 100 {
		proj.Status = models.ProjectionCritical
		proj.HoursLeft = 0
		proj.ExhaustAt = now
		proj.WillExhaust = true
		return proj
	}
	if len(points) < 2 {
		return proj
	}

	proj.RatePerHour = slopePerHour(points)
	if proj.RatePerHour <= 0 {
		proj.Status = models.ProjectionSafe
		return proj
	}

	proj.HoursLeft = (100 - currentPercent) / proj.RatePerHour
	proj.ExhaustAt = now.Add(time.Duration(proj.HoursLeft * float64(time.Hour)))

	if resetAt != nil {
		proj.WillExhaust = proj.ExhaustAt.Before(*resetAt)
	} else {
		proj.WillExhaust = true
	}

	switch {
	case proj.WillExhaust && proj.HoursLeft < 1:
		proj.Status = models.ProjectionCritical
	case proj.WillExhaust:
		proj.Status = models.ProjectionWarning
	default:
		proj.Status = models.ProjectionSafe
	}
	return proj
}

// currentWindow keeps the usable session points recorded since the most recent reset.
func currentWindow(snaps []models.UsageSnapshot) []models.UsageSnapshot {
	points := make([]models.UsageSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if snap.Error != "" || !snap.HasSession() {
			continue
		}
		if n := len(points); n > 0 && points[n-1].SessionPercent-snap.SessionPercent > resetDropPoints {
			points = points[:0]
		}
		points = append(points, snap)
	}
	return points
}

// slopePerHour fits used percent against time by least squares.
func slopePerHour(points []models.UsageSnapshot) float64 {
	origin := points[0].Timestamp
	n := float64(len(points))

	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := p.Timestamp.Sub(origin).Hours()
		y := p.SessionPercent
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func confidence(points int) string {
	switch {
	case points < lowConfThreshold:
		return "low"
	case points < medConfThreshold:
		return "medium"
	default:
		return "high"
	}
}
