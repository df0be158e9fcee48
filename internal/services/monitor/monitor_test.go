package monitor

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/j-veylop/codexbar-monitor/internal/models"
)

// scriptedSource yields one scripted batch per call, repeating the last one.
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]models.UsageData
	err     error
	block   chan struct{}
	calls   int
}

func (s *scriptedSource) GetAllUsageStream(ctx context.Context) iter.Seq2[models.UsageData, error] {
	s.mu.Lock()
	idx := min(s.calls, len(s.batches)-1)
	s.calls++
	batch := s.batches[idx]
	block := s.block
	err := s.err
	s.mu.Unlock()

	return func(yield func(models.UsageData, error) bool) {
		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				yield(models.UsageData{}, ctx.Err())
				return
			}
		}
		for _, d := range batch {
			if !yield(d, nil) {
				return
			}
		}
		if err != nil {
			yield(models.UsageData{}, err)
		}
	}
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type staticSettings struct {
	s models.Settings
}

func (s staticSettings) Settings() models.Settings { return s.s }

type mockStore struct {
	mu        sync.Mutex
	snapshots []models.UsageSnapshot
	prunes    []time.Time
	insertErr error
}

func (m *mockStore) InsertSnapshot(_ context.Context, s *models.UsageSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.snapshots = append(m.snapshots, *s)
	return nil
}

func (m *mockStore) PruneSnapshots(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunes = append(m.prunes, cutoff)
	return 0, nil
}

type notification struct {
	title string
	body  string
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (m *mockNotifier) Notify(title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, notification{title, body})
	return nil
}

type mockCache struct {
	saves int
}

func (m *mockCache) Save(context.Context) error {
	m.saves++
	return nil
}

func session(provider string, used int) models.UsageData {
	return models.UsageData{
		Provider: provider,
		Session:  &models.UsageWindow{Used: used, Limit: 100},
	}
}

func defaultSettings() staticSettings {
	return staticSettings{s: models.DefaultSettings()}
}

func drainEvents(ch chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRefresh_EventSequence(t *testing.T) {
	src := &scriptedSource{batches: [][]models.UsageData{{
		session("claude", 10),
		{Provider: "codex", Error: "Request timed out"},
	}}}
	m := New(src, defaultSettings(), Config{})
	ch := m.Subscribe()

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	events := drainEvents(ch)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %#v", len(events), events)
	}

	started, ok := events[0].(RefreshStartedEvent)
	if !ok {
		t.Fatalf("first event is %T", events[0])
	}
	if _, err := uuid.Parse(started.BatchID); err != nil {
		t.Errorf("batch id %q is not a uuid", started.BatchID)
	}

	for _, ev := range events[1:3] {
		upd, ok := ev.(UsageUpdatedEvent)
		if !ok {
			t.Fatalf("expected UsageUpdatedEvent, got %T", ev)
		}
		if upd.BatchID != started.BatchID {
			t.Error("update batch id does not match")
		}
	}

	done, ok := events[3].(RefreshCompletedEvent)
	if !ok {
		t.Fatalf("last event is %T", events[3])
	}
	if done.Count != 2 || done.BatchID != started.BatchID {
		t.Errorf("unexpected completion: %+v", done)
	}

	latest := m.Latest()
	if len(latest) != 2 || latest["codex"].Error != "Request timed out" {
		t.Errorf("unexpected latest: %+v", latest)
	}
}

func TestRefresh_RecordsSnapshotsAndSavesCache(t *testing.T) {
	src := &scriptedSource{batches: [][]models.UsageData{{
		session("claude", 10),
		{Provider: "codex", Error: "boom"},
	}}}
	store := &mockStore{}
	cache := &mockCache{}
	m := New(src, defaultSettings(), Config{Store: store, Cache: cache})

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(store.snapshots) != 2 {
		t.Fatalf("expected 2 snapshots (errors are skipped), got %d", len(store.snapshots))
	}
	if store.snapshots[0].Provider != "claude" || store.snapshots[0].SessionPercent != 10 {
		t.Errorf("unexpected snapshot: %+v", store.snapshots[0])
	}
	if len(store.prunes) != 1 {
		t.Errorf("expected one prune per interval, got %d", len(store.prunes))
	}
	if cache.saves != 2 {
		t.Errorf("expected cache saved after each batch, got %d", cache.saves)
	}
}

func TestRefresh_SnapshotErrorIsReported(t *testing.T) {
	src := &scriptedSource{batches: [][]models.UsageData{{session("claude", 10)}}}
	m := New(src, defaultSettings(), Config{Store: &mockStore{insertErr: errors.New("disk I/O error")}})
	ch := m.Subscribe()

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("snapshot failures must not fail the refresh: %v", err)
	}

	var sawDBError bool
	for _, ev := range drainEvents(ch) {
		if e, ok := ev.(ErrorEvent); ok && e.Service == "db" {
			sawDBError = true
		}
	}
	if !sawDBError {
		t.Error("expected a db ErrorEvent")
	}
}

func TestRefresh_StreamError(t *testing.T) {
	src := &scriptedSource{
		batches: [][]models.UsageData{{session("claude", 10)}},
		err:     context.Canceled,
	}
	m := New(src, defaultSettings(), Config{})
	ch := m.Subscribe()

	err := m.Refresh(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	var sawError, sawCompleted bool
	for _, ev := range drainEvents(ch) {
		switch ev.(type) {
		case ErrorEvent:
			sawError = true
		case RefreshCompletedEvent:
			sawCompleted = true
		}
	}
	if !sawError || sawCompleted {
		t.Errorf("error=%v completed=%v", sawError, sawCompleted)
	}
	if m.IsRefreshing() {
		t.Error("refresh flag should be cleared")
	}
}

func TestRefresh_SkipsWhileRunning(t *testing.T) {
	block := make(chan struct{})
	src := &scriptedSource{batches: [][]models.UsageData{{session("claude", 1)}}, block: block}
	m := New(src, defaultSettings(), Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- m.Refresh(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for !m.IsRefreshing() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.Refresh(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("expected ErrRefreshInProgress, got %v", err)
	}

	close(block)
	if err := <-errCh; err != nil {
		t.Errorf("first refresh failed: %v", err)
	}
	if src.Calls() != 1 {
		t.Errorf("expected 1 stream call, got %d", src.Calls())
	}
}

func TestNotifications(t *testing.T) {
	tests := []struct {
		name    string
		from    int
		to      int
		enabled bool
		want    []string
	}{
		{"crosses threshold", 85, 92, true, []string{"High usage: Claude"}},
		{"already above threshold", 91, 95, true, nil},
		{"below threshold", 50, 60, true, nil},
		{"window reset", 80, 5, true, []string{"Usage reset: Claude"}},
		{"small drop", 30, 15, true, nil},
		{"disabled", 85, 92, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.DefaultSettings()
			s.Notifications.Enabled = tt.enabled
			src := &scriptedSource{batches: [][]models.UsageData{
				{session("claude", tt.from)},
				{session("claude", tt.to)},
			}}
			n := &mockNotifier{}
			m := New(src, staticSettings{s: s}, Config{Notifier: n})

			for i := 0; i < 2; i++ {
				if err := m.Refresh(context.Background()); err != nil {
					t.Fatal(err)
				}
			}

			var titles []string
			for _, sent := range n.sent {
				titles = append(titles, sent.title)
			}
			if len(titles) != len(tt.want) {
				t.Fatalf("notifications = %v, want %v", titles, tt.want)
			}
			for i := range titles {
				if titles[i] != tt.want[i] {
					t.Errorf("notification %d = %q, want %q", i, titles[i], tt.want[i])
				}
			}
		})
	}
}

func TestNotifications_FirstObservationIsSilent(t *testing.T) {
	src := &scriptedSource{batches: [][]models.UsageData{{session("gemini", 99)}}}
	n := &mockNotifier{}
	m := New(src, defaultSettings(), Config{Notifier: n})

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(n.sent) != 0 {
		t.Errorf("unexpected notifications: %+v", n.sent)
	}
}

func TestNotifications_ErrorsDoNotResetBaseline(t *testing.T) {
	src := &scriptedSource{batches: [][]models.UsageData{
		{session("claude", 85)},
		{{Provider: "claude", Error: "Request timed out"}},
		{session("claude", 95)},
	}}
	n := &mockNotifier{}
	m := New(src, defaultSettings(), Config{Notifier: n})

	for i := 0; i < 3; i++ {
		if err := m.Refresh(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(n.sent) != 1 {
		t.Errorf("expected threshold notification across an error, got %+v", n.sent)
	}
}

func TestRequestRefresh_RateLimited(t *testing.T) {
	m := New(&scriptedSource{batches: [][]models.UsageData{{}}}, defaultSettings(), Config{ManualRefreshInterval: time.Hour})

	if !m.RequestRefresh() {
		t.Error("first manual refresh should be allowed")
	}
	if m.RequestRefresh() {
		t.Error("second manual refresh should be rate limited")
	}
}

func TestStart_RefreshesAndHonorsRequests(t *testing.T) {
	src := &scriptedSource{batches: [][]models.UsageData{{session("claude", 1)}}}
	m := New(src, defaultSettings(), Config{ManualRefreshInterval: time.Millisecond})
	ch := m.Subscribe()

	m.Start(context.Background())
	defer m.Close()

	waitCompleted := func() {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case ev := <-ch:
				if _, ok := ev.(RefreshCompletedEvent); ok {
					return
				}
			case <-timeout:
				t.Fatal("timed out waiting for refresh")
			}
		}
	}

	waitCompleted()

	time.Sleep(5 * time.Millisecond)
	if !m.RequestRefresh() {
		t.Fatal("manual refresh was rate limited")
	}
	waitCompleted()

	if src.Calls() < 2 {
		t.Errorf("expected at least 2 refreshes, got %d", src.Calls())
	}
}

func TestUnsubscribeAndClose(t *testing.T) {
	m := New(&scriptedSource{batches: [][]models.UsageData{{}}}, defaultSettings(), Config{})

	a := m.Subscribe()
	b := m.Subscribe()

	m.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Error("unsubscribed channel should be closed")
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-b; ok {
		t.Error("Close should close remaining subscribers")
	}
	if err := m.Close(); err != nil {
		t.Error("Close should be idempotent")
	}
}
