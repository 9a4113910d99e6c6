package ui

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/C0neF/gomoku-project/internal/game"
)

// RoundResult is one finished round from the local player's point of view.
type RoundResult struct {
	Round  uint64
	Role   game.Player
	Winner game.Player
	Draw   bool
	Moves  int
}

func (r RoundResult) Outcome() string {
	switch {
	case r.Draw:
		return "draw"
	case r.Winner == r.Role:
		return "win"
	default:
		return "loss"
	}
}

// Scoreboard collects finished rounds for the end-of-session summary.
type Scoreboard struct {
	rounds []RoundResult
	seen   map[uint64]bool
}

func NewScoreboard() *Scoreboard {
	return &Scoreboard{seen: make(map[uint64]bool)}
}

// Record adds a finished round once. Unfinished states are ignored.
func (s *Scoreboard) Record(state game.State, role game.Player) bool {
	if !state.Over() || role == game.None || s.seen[state.Round] {
		return false
	}
	s.seen[state.Round] = true
	s.rounds = append(s.rounds, RoundResult{
		Round:  state.Round,
		Role:   role,
		Winner: state.Winner,
		Draw:   state.Draw,
		Moves:  len(state.Moves),
	})
	return true
}

// Reset forgets recorded round numbers. Rounds restart with a new game channel.
func (s *Scoreboard) Reset() {
	s.seen = make(map[uint64]bool)
}

func (s *Scoreboard) Rounds() []RoundResult { return s.rounds }

// Tally returns wins, losses and draws.
func (s *Scoreboard) Tally() (wins, losses, draws int) {
	for _, r := range s.rounds {
		switch r.Outcome() {
		case "win":
			wins++
		case "loss":
			losses++
		default:
			draws++
		}
	}
	return wins, losses, draws
}

// Render returns the scoreboard table, or an empty string if nothing finished.
func (s *Scoreboard) Render() string {
	if len(s.rounds) == 0 {
		return ""
	}

	t := table.NewWriter()
	t.SetTitle("Scoreboard")
	t.AppendHeader(table.Row{"#", "Round", "Played as", "Result", "Moves"})
	for i, r := range s.rounds {
		t.AppendRow(table.Row{i + 1, r.Round, r.Role.String(), r.Outcome(), r.Moves})
	}
	wins, losses, draws := s.Tally()
	t.AppendFooter(table.Row{"", "", "Total", fmt.Sprintf("%dW %dL %dD", wins, losses, draws), ""})

	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return t.Render()
}
