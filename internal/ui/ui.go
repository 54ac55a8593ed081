package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PromptView ViewState = iota
	ConfirmView
	GenerateView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx            context.Context
	view           ViewState
	engine         *tasks.PlaylistEngine
	cancel         *tasks.CancelFlag
	requestedCount int
	width          int
	height         int
	input          textinput.Model
	spin           spinner.Model
	progressChan   chan tasks.ProgressUpdate
	resultChan     chan generationDoneMsg
	progress       tasks.ProgressUpdate
	log            []string
	cancelling     bool
	trackList      list.Model
	result         *tasks.RunResult
	err            error
	help           help.Model
	keys           keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
//
// The cancel flag must be the same handle the engine was configured with;
// pressing esc during generation sets it so the run stops at the next
// round boundary.
func NewModel(ctx context.Context, engine *tasks.PlaylistEngine, cancel *tasks.CancelFlag, requestedCount int) *Model {
	input := textinput.New()
	input.Placeholder = "upbeat indie for a morning run"
	input.CharLimit = 200
	input.Width = 48
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = styles.ok

	return &Model{
		ctx:            ctx,
		view:           PromptView,
		engine:         engine,
		cancel:         cancel,
		requestedCount: requestedCount,
		input:          input,
		spin:           spin,
		help:           help.New(),
		keys:           newKeyMap(),
	}
}

// Init starts the cursor blink in the prompt input.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.trackList.Width() != 0 {
			m.trackList.SetSize(msg.Width-4, msg.Height-12)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PromptView:
			return m.handlePromptKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case GenerateView:
			return m.handleGenerateKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != GenerateView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progressMsg:
		m.progress = tasks.ProgressUpdate(msg)
		m.log = append(m.log, m.progress.Message)
		if len(m.log) > 10 {
			m.log = m.log[1:]
		}
		return m, m.waitForProgress()

	case generationDoneMsg:
		m.result = msg.result
		m.err = msg.err
		m.progressChan = nil
		m.resultChan = nil
		if m.result != nil && m.result.Payload != nil {
			m.trackList = newTrackList(m.result.Payload.Tracks, m.width-4, m.height-12)
		}
		m.view = ResultView
		return m, nil
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PromptView:
		return m.renderPrompt()
	case ConfirmView:
		return m.renderConfirm()
	case GenerateView:
		return m.renderGenerate()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		if strings.TrimSpace(m.input.Value()) != "" {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "n", "esc":
		m.view = PromptView
		return m, textinput.Blink
	case "y", "enter":
		m.view = GenerateView
		m.log = nil
		m.cancelling = false
		return m, m.startGeneration()
	}
	return m, nil
}

func (m *Model) handleGenerateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.cancel.Cancel()
		m.cancelling = true
		return m, nil
	case "ctrl+c":
		m.cancel.Cancel()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.view = PromptView
		m.input.SetValue("")
		m.input.Focus()
		m.result = nil
		m.err = nil
		m.log = nil
		m.cancel.Reset()
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

// startGeneration kicks off the engine in a goroutine and begins draining
// its progress channel. The result travels through its own buffered channel
// so the Elm loop never reads engine state concurrently.
func (m *Model) startGeneration() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 100)
	m.resultChan = make(chan generationDoneMsg, 1)

	spec := models.PlaylistSpec{
		Prompt:         strings.TrimSpace(m.input.Value()),
		RequestedCount: m.requestedCount,
	}

	progressChan, resultChan := m.progressChan, m.resultChan
	go func() {
		result, err := m.engine.Run(m.ctx, spec, progressChan)
		resultChan <- generationDoneMsg{result: result, err: err}
		close(progressChan)
	}()

	return tea.Batch(m.spin.Tick, m.waitForProgress())
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, resultChan := m.progressChan, m.resultChan
	return func() tea.Msg {
		update, ok := <-progressChan
		if !ok {
			return <-resultChan
		}
		return progressMsg(update)
	}
}

func (m *Model) renderPrompt() string {
	title := styles.title.Render("moodlist")
	blurb := "Describe a mood or a moment; get a playlist."
	count := styles.help.Render(fmt.Sprintf("%d tracks per playlist", m.requestedCount))

	quitKey := key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "quit"))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, quitKey})

	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s", title, blurb, m.input.View(), count, helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Generate playlist?")
	info := fmt.Sprintf("\nPrompt: %s\nTracks: %d\n", strings.TrimSpace(m.input.Value()), m.requestedCount)

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})

	return fmt.Sprintf("%s%s\n%s", title, info, helpView)
}

func (m *Model) renderGenerate() string {
	title := styles.title.Render("Generating playlist")

	current := m.progress.Message
	if current == "" {
		current = "Warming up..."
	}

	var lines []string
	for _, entry := range m.log {
		lines = append(lines, styles.help.Render(entry))
	}
	logView := strings.Join(lines, "\n")

	status := fmt.Sprintf("%s %s", m.spin.View(), current)
	if m.cancelling {
		status = fmt.Sprintf("%s\n%s", status, styles.warn.Render("Cancelling after this round..."))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.cancel})

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, status, logView, helpView)
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}

	if m.err != nil {
		body := styles.err.Render(fmt.Sprintf("Generation failed: %v", m.err))
		return fmt.Sprintf("%s\n\n%s", body, m.help.ShortHelpView(helpKeys))
	}

	if m.result == nil || m.result.Playlist == nil {
		body := styles.err.Render("No playlist was created")
		return fmt.Sprintf("%s\n\n%s", body, m.help.ShortHelpView(helpKeys))
	}

	payload := m.result.Payload
	playlist := m.result.Playlist

	title := styles.ok.Render("✓ Playlist created")
	info := fmt.Sprintf("\nName: %s\nTracks: %d/%d\nURL: %s\n",
		playlist.Name, payload.AchievedCount, payload.RequestedCount, playlist.URL)

	var note string
	if payload.Partial {
		note = styles.warn.Render(fmt.Sprintf("Stopped early (%s)", payload.Status)) + "\n"
	}

	helpKeys = []key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s%s%s\n%s\n\n%s", title, info, note, m.trackList.View(), helpView)
}
