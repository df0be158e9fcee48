package models

import "time"

// ProjectionStatus indicates urgency level for quota depletion.
type ProjectionStatus string

const (
	ProjectionSafe     ProjectionStatus = "SAFE"
	ProjectionWarning  ProjectionStatus = "WARNING"
	ProjectionCritical ProjectionStatus = "CRITICAL"
	ProjectionUnknown  ProjectionStatus = "UNKNOWN"
)

// WindowProjection predicts when a provider's session window runs out.
type WindowProjection struct {
	ExhaustAt      time.Time        // Predicted time of reaching 100%
	ResetAt        time.Time        // Zero when unknown
	Provider       string           // Provider id
	Status         ProjectionStatus // SAFE, WARNING, CRITICAL, UNKNOWN
	Confidence     string           // "low", "medium", "high"
	CurrentPercent float64          // Latest used %
	RatePerHour    float64          // Consumption rate (%/hr)
	HoursLeft      float64          // Hours until exhaustion at current rate
	DataPoints     int              // Number of snapshots used
	WillExhaust    bool             // True if 100% is reached before reset
}
