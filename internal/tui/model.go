package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pagepack/pagepack/internal/config"
	"github.com/pagepack/pagepack/internal/queue"
)

type UIState int

const (
	DashboardState UIState = iota
	SettingsState
)

// Controller is the part of the download runner the dashboard drives.
type Controller interface {
	Start() bool
	Cancel()
	Busy() bool
}

// Options wires the dashboard to a pipeline.
type Options struct {
	Queue     *queue.DownloadQueue
	Runner    Controller
	Events    <-chan any // events.* messages from the run
	Settings  *config.Settings
	AutoStart bool // Start a run as soon as the program starts

	// SaveSettings persists edits; defaults to config.SaveSettings.
	SaveSettings func(*config.Settings) error
	Now          func() time.Time
}

type RootModel struct {
	queue  *queue.DownloadQueue
	runner Controller
	events <-chan any

	items  []queue.Item // Refreshed from the queue on every tick and event
	stats  queue.Stats
	cursor int
	bar    progress.Model

	width  int
	height int
	state  UIState
	help   help.Model
	keys   KeyMap

	autoStart      bool
	running        bool
	restartPending bool // r pressed while a run was active
	quitting       bool

	notification string
	notifyUntil  time.Time
	lastRetry    string
	lastSummary  string

	// Throughput graph: pages finished per second, one point per tick
	PagesHistory []float64
	tickPages    int
	seenPages    map[string]int

	Settings            *config.Settings
	SettingsActiveTab   int
	SettingsSelectedRow int
	SettingsIsEditing   bool
	SettingsInput       textinput.Model
	settingsKeys        SettingsKeyMap
	saveSettings        func(*config.Settings) error

	now func() time.Time
}

type tickMsg time.Time

type startRunMsg struct{}

// NewModel creates the dashboard.
func NewModel(opts Options) RootModel {
	settings := opts.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}
	save := opts.SaveSettings
	if save == nil {
		save = config.SaveSettings
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	input := textinput.New()
	input.Width = InputWidth
	input.Prompt = ""

	m := RootModel{
		queue:         opts.Queue,
		runner:        opts.Runner,
		events:        opts.Events,
		bar:           progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		state:         DashboardState,
		help:          help.New(),
		keys:          DefaultKeys(),
		autoStart:     opts.AutoStart,
		seenPages:     make(map[string]int),
		Settings:      settings,
		SettingsInput: input,
		settingsKeys:  DefaultSettingsKeys(),
		saveSettings:  save,
		now:           now,
	}
	m.refresh()
	return m
}

func (m RootModel) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	if m.events != nil {
		cmds = append(cmds, listenForActivity(m.events))
	}
	if m.autoStart {
		cmds = append(cmds, func() tea.Msg { return startRunMsg{} })
	}
	return tea.Batch(cmds...)
}

func listenForActivity(sub <-chan any) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-sub
		if !ok {
			return nil
		}
		return msg
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh copies the queue state into the model.
func (m *RootModel) refresh() {
	if m.queue == nil {
		return
	}
	m.items = m.queue.All()
	m.stats = m.queue.Stats()
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
}

// SelectedItem returns the item under the cursor.
func (m RootModel) SelectedItem() (queue.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return queue.Item{}, false
	}
	return m.items[m.cursor], true
}

func (m *RootModel) notify(text string) {
	m.notification = text
	m.notifyUntil = m.now().Add(NotificationTTL)
}
