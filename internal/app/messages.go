package app

import (
	"time"

	"github.com/j-veylop/codexbar-monitor/internal/services/monitor"
)

// TickMsg is sent periodically to expire notifications and age the status line.
type TickMsg struct {
	Time time.Time
}

// MonitorEventMsg wraps an event received from the monitor subscription.
type MonitorEventMsg struct {
	Event monitor.Event
}

// SubscriptionClosedMsg is sent when the monitor closed the subscription channel.
type SubscriptionClosedMsg struct{}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Message  string
	Type     NotificationType
	Duration time.Duration
}

// RemoveNotificationMsg requests removing a notification.
type RemoveNotificationMsg struct {
	ID int
}
