package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pagepack/pagepack/internal/config"
	"github.com/pagepack/pagepack/internal/engine/events"
	"github.com/pagepack/pagepack/internal/utils"
)

// Update handles messages and updates the model
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m.onTick()

	case startRunMsg:
		m.startRun()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.state == SettingsState {
			return m.updateSettings(msg)
		}
		return m.updateDashboard(msg)

	case events.RunStartedMsg:
		m.running = true
		m.seenPages = make(map[string]int)
		m.notify(fmt.Sprintf("Run started: %d items", msg.Items))

	case events.RunFinishedMsg:
		m.running = false
		m.lastSummary = fmt.Sprintf("完成 %d 本，失敗 %d 本，取消 %d 本", msg.Succeeded, msg.Failed, msg.Cancelled)
		m.notify(m.lastSummary)

	case events.ItemProgressMsg:
		if delta := msg.CurrentPage - m.seenPages[msg.ItemID]; delta > 0 {
			m.tickPages += delta
		}
		m.seenPages[msg.ItemID] = msg.CurrentPage

	case events.PageRetryMsg:
		m.lastRetry = fmt.Sprintf("Retry %d/%d in %s: %s", msg.Attempt, msg.MaxRetries, msg.Delay.Round(time.Millisecond), msg.Message)

	case events.ItemFailedMsg:
		m.notify("Failed: " + msg.Title)

	case events.ItemSkippedMsg:
		m.notify(fmt.Sprintf("Skipped %s (%s)", msg.ItemID, msg.Reason))

	case events.ItemQueuedMsg, events.ItemStartedMsg, events.ItemCompletedMsg, events.ItemCancelledMsg:
		// Queue state is re-read below.

	default:
		return m, nil
	}

	// Every event from the run lands here; listen for the next one.
	m.refresh()
	return m, listenForActivity(m.events)
}

func (m RootModel) onTick() (tea.Model, tea.Cmd) {
	m.refresh()

	rate := float64(m.tickPages) / TickInterval.Seconds()
	m.tickPages = 0
	m.PagesHistory = append(m.PagesHistory, rate)
	if len(m.PagesHistory) > GraphHistoryPoints {
		m.PagesHistory = m.PagesHistory[len(m.PagesHistory)-GraphHistoryPoints:]
	}

	if m.notification != "" && m.now().After(m.notifyUntil) {
		m.notification = ""
	}

	if m.restartPending && m.runner != nil && !m.runner.Busy() {
		m.restartPending = false
		m.startRun()
	}
	return m, tickCmd()
}

func (m *RootModel) startRun() {
	if m.runner == nil {
		return
	}
	if m.stats.Pending == 0 {
		m.notify("Nothing to download")
		return
	}
	if m.runner.Start() {
		m.running = true
		utils.Debug("TUI: run started with %d pending", m.stats.Pending)
	}
}

func (m RootModel) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.runner != nil && m.runner.Busy() {
			m.runner.Cancel()
		}
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Cancel):
		if m.runner != nil && m.runner.Busy() {
			m.runner.Cancel()
			m.restartPending = false
			m.notify("Cancelling after the current window…")
		}

	case key.Matches(msg, m.keys.Retry):
		if m.queue == nil {
			break
		}
		n := m.queue.RetryAll()
		m.refresh()
		if n == 0 {
			m.notify("No failed items")
			break
		}
		m.notify(fmt.Sprintf("Retrying %d items", n))
		if m.runner != nil && m.runner.Busy() {
			m.restartPending = true
		} else {
			m.startRun()
		}

	case key.Matches(msg, m.keys.Settings):
		m.state = SettingsState
		m.SettingsActiveTab = 0
		m.SettingsSelectedRow = 0

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m RootModel) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	categories := config.CategoryOrder()

	if m.SettingsIsEditing {
		switch msg.String() {
		case "enter":
			category := categories[m.SettingsActiveTab]
			if err := m.setSettingValue(category, m.getCurrentSettingKey(), m.SettingsInput.Value()); err != nil {
				m.notify(err.Error())
			}
			m.SettingsIsEditing = false
			m.SettingsInput.Blur()
			return m, nil
		case "esc":
			m.SettingsIsEditing = false
			m.SettingsInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.SettingsInput, cmd = m.SettingsInput.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.settingsKeys.Back):
		if err := m.Settings.Validate(); err != nil {
			m.notify("Not saved: " + err.Error())
			return m, nil
		}
		if err := m.saveSettings(m.Settings); err != nil {
			m.notify("Save failed: " + err.Error())
			return m, nil
		}
		m.notify("Settings saved, applied on next start")
		m.state = DashboardState

	case key.Matches(msg, m.settingsKeys.Up):
		if m.SettingsSelectedRow > 0 {
			m.SettingsSelectedRow--
		}

	case key.Matches(msg, m.settingsKeys.Down):
		if m.SettingsSelectedRow < m.getSettingsCount()-1 {
			m.SettingsSelectedRow++
		}

	case key.Matches(msg, m.settingsKeys.Tab):
		switch s := msg.String(); s {
		case "tab":
			m.SettingsActiveTab = (m.SettingsActiveTab + 1) % len(categories)
		default:
			if i := int(s[0] - '1'); i >= 0 && i < len(categories) {
				m.SettingsActiveTab = i
			}
		}
		m.SettingsSelectedRow = 0

	case key.Matches(msg, m.settingsKeys.Reset):
		m.resetSettingToDefault(categories[m.SettingsActiveTab], m.getCurrentSettingKey(), config.DefaultSettings())

	case key.Matches(msg, m.settingsKeys.Edit):
		category := categories[m.SettingsActiveTab]
		settingKey := m.getCurrentSettingKey()
		if m.getCurrentSettingType() == "bool" {
			_ = m.setSettingValue(category, settingKey, "")
			return m, nil
		}
		m.SettingsIsEditing = true
		m.SettingsInput.SetValue(formatEditValue(m.getSettingsValues(category)[settingKey]))
		m.SettingsInput.Focus()
		m.SettingsInput.CursorEnd()
	}
	return m, nil
}
