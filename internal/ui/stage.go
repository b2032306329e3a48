package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amkisko/snake/internal/app"
	"github.com/amkisko/snake/internal/game"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Rows the stage chrome takes away from the playfield.
const (
	headerRows = 1
	logRows    = 4
	footerRows = 1
	chromeRows = headerRows + logRows + footerRows
)

// Handlers connect key presses to the session.
type Handlers struct {
	Self     func() game.Player
	Players  func() []game.Player
	SetAccel func(game.Vec)
	Say      func(string)
}

// Stage is the full-screen terminal the game draws into. It is a
// game.Viewport: frames are stored as they arrive and picked up on the next
// redraw tick.
type Stage struct {
	handlers Handlers
	logs     *LogBuffer

	mu        sync.Mutex
	width     int
	height    int
	frame     string
	status    app.Status
	hasStatus bool
}

func NewStage(h Handlers) *Stage {
	return &Stage{
		handlers: h,
		logs:     NewLogBuffer(200),
	}
}

// LogWriter is where the logger should write while the stage is up.
func (s *Stage) LogWriter() *LogBuffer {
	return s.logs
}

// Size reports the playfield in cells; zero until the terminal size is known.
func (s *Stage) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, max(s.height-chromeRows, 0)
}

func (s *Stage) Present(frame string) {
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
}

// SetStatus records where the session stands for the header.
func (s *Stage) SetStatus(st app.Status) {
	s.mu.Lock()
	s.status = st
	s.hasStatus = true
	s.mu.Unlock()
}

func (s *Stage) resize(w, h int) {
	s.mu.Lock()
	s.width, s.height = w, h
	s.mu.Unlock()
}

func (s *Stage) snapshot() (frame string, st app.Status, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.status, s.hasStatus
}

// Run shows the stage until the player quits or ctx ends.
func (s *Stage) Run(ctx context.Context) error {
	p := tea.NewProgram(newStageModel(s), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type overlay int

const (
	overlayNone overlay = iota
	overlayQR
	overlayPlayers
)

type redrawMsg time.Time

type stageModel struct {
	stage   *Stage
	spinner spinner.Model
	input   textinput.Model
	typing  bool
	overlay overlay
	width   int
	height  int
}

func newStageModel(s *Stage) *stageModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "say something"
	in.Prompt = "> "
	in.CharLimit = 200

	return &stageModel{stage: s, spinner: sp, input: in}
}

func redraw() tea.Cmd {
	return tea.Tick(game.FrameInterval, func(t time.Time) tea.Msg {
		return redrawMsg(t)
	})
}

func (m *stageModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, redraw())
}

func (m *stageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-4, 1)
		m.stage.resize(msg.Width, msg.Height)

	case redrawMsg:
		return m, redraw()

	case spinner.TickMsg:
		if _, _, ok := m.stage.snapshot(); ok {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.typing {
			return m, m.updateInput(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *stageModel) updateInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		if text := strings.TrimSpace(m.input.Value()); text != "" && m.stage.handlers.Say != nil {
			m.stage.handlers.Say(text)
		}
		fallthrough
	case tea.KeyEsc:
		m.typing = false
		m.input.Reset()
		m.input.Blur()
		return nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// accelKeys maps a key to the change it makes to our velocity.
var accelKeys = map[string]game.Vec{
	"up":    {Y: -1},
	"w":     {Y: -1},
	"down":  {Y: 1},
	"s":     {Y: 1},
	"left":  {X: -1},
	"a":     {X: -1},
	"right": {X: 1},
	"d":     {X: 1},
}

func (m *stageModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	h := m.stage.handlers
	key := msg.String()

	if delta, ok := accelKeys[key]; ok {
		if h.Self != nil && h.SetAccel != nil {
			h.SetAccel(h.Self().Accel.Add(delta))
		}
		return nil
	}

	switch key {
	case "q":
		return tea.Quit
	case " ":
		if h.SetAccel != nil {
			h.SetAccel(game.Vec{})
		}
	case "tab", "enter":
		m.typing = true
		return m.input.Focus()
	case "r":
		m.toggle(overlayQR)
	case "p":
		m.toggle(overlayPlayers)
	case "esc":
		m.overlay = overlayNone
	}
	return nil
}

func (m *stageModel) toggle(o overlay) {
	if m.overlay == o {
		m.overlay = overlayNone
		return
	}
	m.overlay = o
}

func (m *stageModel) View() string {
	frame, st, ok := m.stage.snapshot()
	cols, rows := m.width, max(m.height-chromeRows, 0)

	var b strings.Builder
	b.WriteString(m.header(st, ok))
	b.WriteByte('\n')

	body := frame
	if m.overlay != overlayNone {
		body = lipgloss.Place(cols, rows, lipgloss.Center, lipgloss.Center, m.overlayView(st))
	}
	if rows > 0 {
		b.WriteString(lipgloss.NewStyle().Height(rows).MaxHeight(rows).MaxWidth(cols).Render(body))
		b.WriteByte('\n')
	}

	lines := m.stage.logs.Tail(logRows)
	for range logRows - len(lines) {
		b.WriteByte('\n')
	}
	for _, line := range lines {
		b.WriteString(LogStyle.MaxWidth(max(cols, 1)).Render(line))
		b.WriteByte('\n')
	}

	b.WriteString(m.footer())
	return b.String()
}

func (m *stageModel) header(st app.Status, ok bool) string {
	if !ok {
		return HeaderStyle.Render(fmt.Sprintf("%s Joining lobby...", m.spinner.View()))
	}

	parts := []string{fmt.Sprintf("%s %s", IconRoom, st.Lobby)}
	if st.GameRoom != "" {
		parts = append(parts, fmt.Sprintf("%s %s %s", IconGame, st.GameRoom, StatusStyle.Render(st.GameStatus)))
	}
	if st.Hosting {
		parts = append(parts, IconHost+" hosting")
	}
	parts = append(parts, fmt.Sprintf("%s %d", IconPeer, st.Players))
	return HeaderStyle.MaxWidth(max(m.width, 1)).Render(strings.Join(parts, "  "))
}

func (m *stageModel) footer() string {
	if m.typing {
		return m.input.View()
	}
	return FooterStyle.Render("arrows/wasd move · space stop · tab chat · p players · r qr · q quit")
}

func (m *stageModel) overlayView(st app.Status) string {
	h := m.stage.handlers
	switch m.overlay {
	case overlayQR:
		if st.LobbyLink == "" {
			return InfoBoxStyle.Render("No lobby link yet")
		}
		qr, err := QRView(st.LobbyLink)
		if err != nil {
			return FormatError(err)
		}
		return lipgloss.JoinVertical(lipgloss.Center, qr, MutedStyle.Render(IconQR+" "+st.LobbyLink))
	case overlayPlayers:
		var self game.Player
		var players []game.Player
		if h.Self != nil {
			self = h.Self()
		}
		if h.Players != nil {
			players = h.Players()
		}
		return PlayersView(self, players)
	}
	return ""
}
