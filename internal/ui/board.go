package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/C0neF/gomoku-project/internal/game"
	"github.com/C0neF/gomoku-project/internal/session"
	"github.com/C0neF/gomoku-project/internal/signaling"
)

// Controller is what the game screen drives. *session.Manager implements it.
type Controller interface {
	SubmitMove(row, col int)
	SetLocalReady(ready bool)
	SyncState()
	Disconnect()
}

type eventMsg struct{ event session.Event }

type eventsClosedMsg struct{}

// GameModel is the bubbletea model for one session.
type GameModel struct {
	ctrl   Controller
	events <-chan session.Event
	binary string

	conn    session.ConnectionChanged
	state   game.State
	role    game.Player
	row     int
	col     int
	lastErr string
	notice  string

	board   [game.BoardSize][game.BoardSize]game.Player
	winning map[game.Cell]bool

	spinner spinner.Model
	score   *Scoreboard
	done    bool
}

func NewGameModel(ctrl Controller, events <-chan session.Event, binary string) *GameModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return &GameModel{
		ctrl:    ctrl,
		events:  events,
		binary:  binary,
		row:     game.BoardSize / 2,
		col:     game.BoardSize / 2,
		spinner: s,
		score:   NewScoreboard(),
	}
}

// Scoreboard returns the rounds finished during the session.
func (m *GameModel) Scoreboard() *Scoreboard { return m.score }

func (m *GameModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m *GameModel) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{e}
	}
}

func (m *GameModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case eventMsg:
		m.apply(msg.event)
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *GameModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.done = true
		m.ctrl.Disconnect()
		return tea.Quit
	case "up", "k":
		m.row = max(m.row-1, 0)
	case "down", "j":
		m.row = min(m.row+1, game.BoardSize-1)
	case "left", "h":
		m.col = max(m.col-1, 0)
	case "right", "l":
		m.col = min(m.col+1, game.BoardSize-1)
	case "enter", " ":
		m.lastErr = ""
		m.ctrl.SubmitMove(m.row, m.col)
	case "r":
		m.ctrl.SetLocalReady(!m.conn.LocalReady)
	case "s":
		m.ctrl.SyncState()
	}
	return nil
}

func (m *GameModel) apply(e session.Event) {
	switch e := e.(type) {
	case session.ConnectionChanged:
		if e.PeerConnected && !m.conn.PeerConnected {
			m.score.Reset()
		}
		m.conn = e
		m.role = e.MyGameRole

	case session.MoveApplied:
		m.setState(e.State)

	case session.StateSynced:
		m.setState(e.State)

	case session.AssignmentApplied:
		m.role = e.MyGameRole
		m.lastErr = ""
		m.notice = fmt.Sprintf("Round %d: you are %s", e.Round, describeRole(e.MyGameRole))

	case session.ErrorEvent:
		m.lastErr = e.Message
	}
}

func (m *GameModel) setState(s game.State) {
	m.state = s
	m.board = [game.BoardSize][game.BoardSize]game.Player{}
	for _, mv := range s.Moves {
		m.board[mv.Row][mv.Col] = mv.Player
	}
	m.winning = make(map[game.Cell]bool, len(s.WinningLine))
	for _, c := range s.WinningLine {
		m.winning[c] = true
	}
	if m.score.Record(s, m.role) {
		m.notice = fmt.Sprintf("Round %d finished: %s", s.Round, resultText(s, m.role))
	}
}

func describeRole(p game.Player) string {
	switch p {
	case game.Player1:
		return "● (first)"
	case game.Player2:
		return "○ (second)"
	}
	return "unassigned"
}

func resultText(s game.State, role game.Player) string {
	switch {
	case s.Draw:
		return "draw"
	case s.Winner == role:
		return IconTrophy + " you win"
	default:
		return "you lose"
	}
}

func (m *GameModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Gomoku"))
	b.WriteString("\n")

	if m.conn.RoomID != "" && m.conn.Role == signaling.RoleHost && !m.conn.PeerConnected {
		b.WriteString(NewRoomInfo(m.conn.RoomID, m.binary).View())
		b.WriteString("\n")
	}

	b.WriteString(m.statusLine())
	b.WriteString("\n\n")
	b.WriteString(m.boardView())

	if m.notice != "" {
		b.WriteString("\n" + BoldStyle.Render(m.notice))
	}
	if m.lastErr != "" {
		b.WriteString("\n" + ErrorStyle.Render(IconError+" "+m.lastErr))
	}
	b.WriteString(FooterStyle.Render("\n←↑↓→/hjkl move · enter place · r ready · s sync · q quit"))
	return b.String()
}

func (m *GameModel) statusLine() string {
	switch {
	case !m.conn.SignalingConnected:
		return WarningStyle.Render(IconWarning + " signaling offline")
	case m.conn.RoomID == "":
		return fmt.Sprintf("%s %s", m.spinner.View(), MutedStyle.Render("entering room..."))
	case !m.conn.PeerConnected:
		return fmt.Sprintf("%s %s %s", m.spinner.View(), IconWaiting, MutedStyle.Render("waiting for opponent ("+m.conn.TransportState.String()+")"))
	}

	ready := func(label string, ok bool) string {
		if ok {
			return SuccessStyle.Render(label + " ready")
		}
		return MutedStyle.Render(label + " not ready")
	}
	turn := ""
	if m.role != game.None && !m.state.Over() {
		if m.state.CurrentPlayer == m.role {
			turn = StatusStyle.Render("your turn")
		} else {
			turn = MutedStyle.Render("opponent's turn")
		}
	}
	return fmt.Sprintf("%s %s · %s · %s · you: %s %s",
		IconRoom, TitleStyle.Render(m.conn.RoomID),
		ready("you", m.conn.LocalReady), ready("opponent", m.conn.OpponentReady),
		describeRole(m.role), turn)
}

func (m *GameModel) boardView() string {
	var b strings.Builder
	b.WriteString("   ")
	for c := 0; c < game.BoardSize; c++ {
		b.WriteString(labelStyle.Render(fmt.Sprintf(" %c", 'A'+c)))
	}
	b.WriteString("\n")

	for r := 0; r < game.BoardSize; r++ {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%2d ", r+1)))
		for c := 0; c < game.BoardSize; c++ {
			b.WriteString(" ")
			b.WriteString(m.cellView(r, c))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *GameModel) cellView(r, c int) string {
	var glyph string
	style := gridStyle
	switch m.board[r][c] {
	case game.Player1:
		glyph, style = "●", blackStyle
	case game.Player2:
		glyph, style = "○", whiteStyle
	default:
		glyph = "·"
	}
	if m.winning[game.Cell{Row: r, Col: c}] {
		style = lineStyle
	}
	if r == m.row && c == m.col {
		style = style.Reverse(true)
	}
	return style.Render(glyph)
}

// Run starts the game screen and blocks until the player quits or the
// session ends.
func Run(ctrl Controller, events <-chan session.Event, binary string) (*Scoreboard, error) {
	model := NewGameModel(ctrl, events, binary)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return model.Scoreboard(), fmt.Errorf("game screen: %w", err)
	}
	return model.Scoreboard(), nil
}
