package app

import (
	"testing"
	"time"

	"github.com/j-veylop/codexbar-monitor/internal/models"
)

func TestNotificationType_String(t *testing.T) {
	tests := []struct {
		t    NotificationType
		want string
	}{
		{NotificationSuccess, "success"},
		{NotificationError, "error"},
		{NotificationWarning, "warning"},
		{NotificationInfo, "info"},
		{NotificationType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestState_SetProviders(t *testing.T) {
	s := NewState()
	settings := models.Settings{Providers: []models.ProviderConfig{
		{ID: "gemini", DisplayName: "Gemini CLI", IsEnabled: true, Order: 2},
		{ID: "Claude", IsEnabled: true, Order: 0},
		{ID: "codex", IsEnabled: false, Order: 1},
		{ID: "cursor", IsEnabled: true, Order: 3},
		{ID: "claude", IsEnabled: true, Order: 4},
	}}

	s.SetProviders(settings)
	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].ID != "claude" || entries[0].Name != "Claude" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].ID != "gemini" || entries[1].Name != "Gemini CLI" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func TestState_SetProvidersKeepsResults(t *testing.T) {
	s := NewState()
	s.SetProviders(models.DefaultSettings())
	s.SetUsage(models.UsageData{Provider: "codex", Plan: "Plus"}, nil)

	settings := models.DefaultSettings()
	settings.Providers[0].IsEnabled = false
	s.SetProviders(settings)

	e, ok := s.Entry("codex")
	if !ok || e.Usage == nil || e.Usage.Plan != "Plus" {
		t.Errorf("codex entry lost its result: %+v", e)
	}
	if _, ok := s.Entry("claude"); ok {
		t.Error("disabled provider should not be displayed")
	}
}

func TestState_Batch(t *testing.T) {
	s := NewState()
	s.SetProviders(models.DefaultSettings())

	s.StartBatch("b1")
	if !s.Refreshing || !s.AnyLoading() || s.LastBatchID != "b1" {
		t.Fatal("StartBatch should mark everything loading")
	}

	proj := &models.WindowProjection{Provider: "claude", Status: models.ProjectionSafe}
	if !s.SetUsage(models.UsageData{Provider: "claude"}, proj) {
		t.Fatal("SetUsage(claude) = false")
	}
	if s.SetUsage(models.UsageData{Provider: "cursor"}, nil) {
		t.Error("SetUsage of an undisplayed provider should be ignored")
	}

	e, _ := s.Entry("claude")
	if e.Loading || e.Projection == nil {
		t.Errorf("claude entry = %+v", e)
	}
	if !s.AnyLoading() {
		t.Error("codex and gemini should still be loading")
	}

	s.SetUsage(models.ErrorUsage("claude", "Request timed out", time.Now()), nil)
	if e.Projection != nil {
		t.Error("an error result should clear the projection")
	}

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.FinishBatch(at)
	if s.Refreshing || s.AnyLoading() || !s.LastUpdated.Equal(at) {
		t.Error("FinishBatch should clear loading")
	}
}

func TestState_Notifications(t *testing.T) {
	s := NewState()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	id := s.AddNotification(NotificationInfo, "short", time.Second, now)
	s.AddNotification(NotificationError, "sticky", 0, now)

	if len(s.Notifications()) != 2 {
		t.Fatalf("len = %d, want 2", len(s.Notifications()))
	}

	s.ClearExpiredNotifications(now.Add(2 * time.Second))
	got := s.Notifications()
	if len(got) != 1 || got[0].Message != "sticky" {
		t.Errorf("after expiry = %+v", got)
	}

	s.RemoveNotification(id)
	if len(s.Notifications()) != 1 {
		t.Error("removing an expired id should be a no-op")
	}

	for i := 0; i < 10; i++ {
		s.AddNotification(NotificationInfo, "n", 0, now)
	}
	if len(s.Notifications()) != maxNotifications {
		t.Errorf("len = %d, want %d", len(s.Notifications()), maxNotifications)
	}
}
