package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/services/monitor"
	"github.com/j-veylop/codexbar-monitor/internal/ui/components"
	"github.com/j-veylop/codexbar-monitor/internal/ui/styles"
)

// Monitor is the part of the monitor the view drives.
type Monitor interface {
	Subscribe() chan monitor.Event
	Unsubscribe(ch chan monitor.Event)
	RequestRefresh() bool
	Latest() map[string]models.UsageData
}

// SettingsSource provides the current user settings.
type SettingsSource interface {
	Settings() models.Settings
}

// KeyMap defines the keybindings of the watch view.
type KeyMap struct {
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
	Escape  key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Refresh: key.NewBinding(key.WithKeys("r", "ctrl+r"), key.WithHelp("r", "refresh")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Escape:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close help")),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Help, k.Quit}
}

// Model is the watch view.
type Model struct {
	state    *State
	monitor  Monitor
	settings SettingsSource
	events   chan monitor.Event
	spinners map[string]components.LoadingSpinner
	keymap   KeyMap
	now      func() time.Time
	width    int
	height   int
	showHelp bool
	ready    bool
}

// NewModel creates the view and subscribes to mon. Create it before starting
// the monitor so the first batch is not missed.
func NewModel(mon Monitor, settings SettingsSource) *Model {
	m := &Model{
		state:    NewState(),
		monitor:  mon,
		settings: settings,
		spinners: make(map[string]components.LoadingSpinner),
		keymap:   DefaultKeyMap(),
		now:      time.Now,
	}

	if settings != nil {
		m.state.SetProviders(settings.Settings())
	}
	if mon != nil {
		for _, u := range mon.Latest() {
			m.state.SetUsage(u, nil)
		}
		m.events = mon.Subscribe()
	}
	m.syncSpinners()

	return m
}

// Init starts the spinners, the tick loop and the event subscription.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(DefaultTickInterval)}
	for _, s := range m.spinners {
		cmds = append(cmds, s.Init())
	}
	if m.events != nil {
		cmds = append(cmds, waitForEventCmd(m.events))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case tea.KeyMsg:
		if cmd := m.handleKeyMsg(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case spinner.TickMsg:
		for id, s := range m.spinners {
			var cmd tea.Cmd
			m.spinners[id], cmd = s.Update(msg)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}

	case TickMsg:
		m.state.ClearExpiredNotifications(msg.Time)
		cmds = append(cmds, tickCmd(DefaultTickInterval))

	case MonitorEventMsg:
		if cmd := m.handleEvent(msg.Event); cmd != nil {
			cmds = append(cmds, cmd)
		}
		if m.events != nil {
			cmds = append(cmds, waitForEventCmd(m.events))
		}

	case SubscriptionClosedMsg:
		m.events = nil

	case AddNotificationMsg:
		id := m.state.AddNotification(msg.Type, msg.Message, msg.Duration, m.now())
		if msg.Duration > 0 {
			cmds = append(cmds, clearNotificationCmd(id, msg.Duration))
		}

	case RemoveNotificationMsg:
		m.state.RemoveNotification(msg.ID)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		if m.monitor != nil && m.events != nil {
			m.monitor.Unsubscribe(m.events)
			m.events = nil
		}
		return tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keymap.Escape):
		m.showHelp = false

	case key.Matches(msg, m.keymap.Refresh):
		if m.monitor == nil {
			return nil
		}
		if !m.monitor.RequestRefresh() {
			return notifyWarningCmd("Refresh requested too soon, try again in a moment")
		}
		return notifyInfoCmd("Refreshing...")
	}
	return nil
}

func (m *Model) handleEvent(event monitor.Event) tea.Cmd {
	switch e := event.(type) {
	case monitor.RefreshStartedEvent:
		if m.settings != nil {
			m.state.SetProviders(m.settings.Settings())
		}
		m.state.StartBatch(e.BatchID)
		return m.syncSpinners()

	case monitor.UsageUpdatedEvent:
		m.state.SetUsage(e.Usage, e.Projection)

	case monitor.RefreshCompletedEvent:
		m.state.FinishBatch(m.now())
		return notifySuccessCmd(fmt.Sprintf("Updated %d providers in %s", e.Count, e.Duration.Round(100*time.Millisecond)))

	case monitor.ErrorEvent:
		return notifyErrorCmd(fmt.Sprintf("[%s] %v", e.Service, e.Error))
	}
	return nil
}

// syncSpinners creates spinners for newly displayed providers and returns their tick commands.
func (m *Model) syncSpinners() tea.Cmd {
	var cmds []tea.Cmd
	live := make(map[string]components.LoadingSpinner, len(m.spinners))
	for _, e := range m.state.Entries() {
		s, ok := m.spinners[e.ID]
		if !ok {
			s = components.NewSpinner(e.ID, "Fetching "+e.Name+"...")
			cmds = append(cmds, s.Init())
		}
		live[e.ID] = s
	}
	m.spinners = live
	return tea.Batch(cmds...)
}

// View renders the watch view.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showHelp {
		return styles.CenterBoth(m.renderHelp(), m.width, m.height)
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderProviders())
	if n := m.renderNotifications(); n != "" {
		b.WriteString("\n")
		b.WriteString(n)
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return m.clip(b.String())
}

func (m *Model) renderHeader() string {
	title := styles.TitleStyle.UnsetMarginBottom().Render("codexbar monitor")

	var status string
	switch {
	case m.state.Refreshing:
		status = styles.InfoTextStyle.Render("refreshing")
	case m.state.LastUpdated.IsZero():
		status = styles.HelpStyle.Render("waiting for first refresh")
	default:
		ago := components.FormatDuration(m.now().Sub(m.state.LastUpdated))
		status = styles.HelpStyle.Render("updated " + ago + " ago")
	}
	return title + "  " + status
}

func (m *Model) renderProviders() string {
	entries := m.state.Entries()
	if len(entries) == 0 {
		return styles.HelpStyle.Render("No providers enabled. Edit the settings file to enable one.")
	}

	var expiry time.Duration
	if m.settings != nil {
		expiry = m.settings.Settings().CacheExpiry()
	}

	now := m.now()
	cards := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Usage == nil {
			cards = append(cards, styles.CardStyle.Width(max(m.width-4, 30)).Render(m.spinners[e.ID].View()))
			continue
		}
		card := components.RenderUsageCard(*e.Usage, components.CardOptions{
			Title:      e.Name,
			Projection: e.Projection,
			Now:        now,
			Width:      m.width,
			Stale:      expiry > 0 && e.Usage.IsStale(now, expiry),
		})
		if e.Loading {
			card = m.spinners[e.ID].View() + "\n" + card
		}
		cards = append(cards, card)
	}
	return components.RenderCardsColumn(cards)
}

func (m *Model) renderNotifications() string {
	var lines []string
	for _, n := range m.state.Notifications() {
		var style lipgloss.Style
		switch n.Type {
		case NotificationSuccess:
			style = styles.SuccessTextStyle
		case NotificationError:
			style = styles.ErrorTextStyle
		case NotificationWarning:
			style = styles.WarningTextStyle
		default:
			style = styles.InfoTextStyle
		}
		lines = append(lines, style.Render(n.Message))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	parts := make([]string, 0, len(m.keymap.ShortHelp()))
	for _, b := range m.keymap.ShortHelp() {
		h := b.Help()
		parts = append(parts, styles.HelpKeyStyle.Render(h.Key)+" "+styles.HelpDescStyle.Render(h.Desc))
	}
	return strings.Join(parts, styles.HelpStyle.Render(" • "))
}

func (m *Model) renderHelp() string {
	lines := []string{styles.SubTitleStyle.Render("Keys"), ""}
	for _, b := range []key.Binding{m.keymap.Refresh, m.keymap.Help, m.keymap.Escape, m.keymap.Quit} {
		h := b.Help()
		lines = append(lines, fmt.Sprintf("%s  %s",
			styles.HelpKeyStyle.Width(6).Render(h.Key),
			styles.HelpDescStyle.Render(h.Desc)))
	}
	lines = append(lines, "", styles.HelpStyle.Render("Results refresh automatically on the configured interval."))
	return styles.HelpPanelStyle.Render(strings.Join(lines, "\n"))
}

// clip truncates every line to the window width and drops lines past its height.
func (m *Model) clip(view string) string {
	lines := strings.Split(view, "\n")
	if m.height > 0 && len(lines) > m.height {
		lines = lines[:m.height]
	}
	if m.width > 0 {
		for i, l := range lines {
			lines[i] = ansi.Truncate(l, m.width, "")
		}
	}
	return strings.Join(lines, "\n")
}
