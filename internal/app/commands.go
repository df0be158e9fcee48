package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/codexbar-monitor/internal/services/monitor"
)

// Notification durations.
const (
	DefaultTickInterval = time.Second

	QuickNotificationDuration   = 2 * time.Second
	DefaultNotificationDuration = 3 * time.Second
	LongNotificationDuration    = 10 * time.Second
)

// tickCmd returns a command that sends a TickMsg after the specified interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// waitForEventCmd wraps the next monitor event so the model can tell it apart
// from a closed subscription.
func waitForEventCmd(ch <-chan monitor.Event) tea.Cmd {
	wait := monitor.WaitForEvent(ch)
	return func() tea.Msg {
		msg := wait()
		event, ok := msg.(monitor.Event)
		if !ok || event == nil {
			return SubscriptionClosedMsg{}
		}
		return MonitorEventMsg{Event: event}
	}
}

// clearNotificationCmd removes a notification after a delay.
func clearNotificationCmd(id int, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return RemoveNotificationMsg{ID: id}
	})
}

func notifyCmd(t NotificationType, message string, d time.Duration) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{Type: t, Message: message, Duration: d}
	}
}

func notifySuccessCmd(message string) tea.Cmd {
	return notifyCmd(NotificationSuccess, message, DefaultNotificationDuration)
}

func notifyErrorCmd(message string) tea.Cmd {
	return notifyCmd(NotificationError, message, LongNotificationDuration)
}

func notifyWarningCmd(message string) tea.Cmd {
	return notifyCmd(NotificationWarning, message, DefaultNotificationDuration)
}

func notifyInfoCmd(message string) tea.Cmd {
	return notifyCmd(NotificationInfo, message, QuickNotificationDuration)
}
