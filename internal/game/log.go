package game

import (
	"errors"
	"time"
)

const (
	BoardSize = 15
	WinLength = 5
)

var (
	ErrOutOfBounds  = errors.New("cell out of bounds")
	ErrCellOccupied = errors.New("cell occupied")
	ErrWrongPlayer  = errors.New("move attributed to the wrong player")
	ErrGameOver     = errors.New("game is over")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrUnassigned   = errors.New("no game role assigned")
	ErrRelayFrozen  = errors.New("relay is frozen")
	ErrStaleRound   = errors.New("state belongs to another round")
	ErrInconsistent = errors.New("snapshot disagrees with its moves")
)

// Player identifies a stone colour. None marks an empty cell.
type Player int

const (
	None Player = iota
	Player1
	Player2
)

// Opponent returns the other player. None has no opponent.
func (p Player) Opponent() Player {
	switch p {
	case Player1:
		return Player2
	case Player2:
		return Player1
	default:
		return None
	}
}

func (p Player) String() string {
	switch p {
	case Player1:
		return "player-1"
	case Player2:
		return "player-2"
	default:
		return "unassigned"
	}
}

// Cell is a board coordinate.
type Cell struct {
	Row int `json:"row" msgpack:"row"`
	Col int `json:"col" msgpack:"col"`
}

func (c Cell) inBounds() bool {
	return c.Row >= 0 && c.Row < BoardSize && c.Col >= 0 && c.Col < BoardSize
}

// Move is one entry of the game log.
type Move struct {
	Row       int    `json:"row" msgpack:"row"`
	Col       int    `json:"col" msgpack:"col"`
	Player    Player `json:"player" msgpack:"player"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`
}

func (m Move) Cell() Cell { return Cell{Row: m.Row, Col: m.Col} }

// State is a full snapshot of one round.
type State struct {
	Round         uint64 `json:"round" msgpack:"round"`
	Moves         []Move `json:"moves" msgpack:"moves"`
	CurrentPlayer Player `json:"currentPlayer" msgpack:"currentPlayer"`
	Winner        Player `json:"winner" msgpack:"winner"`
	WinningLine   []Cell `json:"winningLine,omitempty" msgpack:"winningLine,omitempty"`
	Draw          bool   `json:"draw" msgpack:"draw"`
}

// Over reports whether the round has a winner or ended in a draw.
func (s State) Over() bool { return s.Winner != None || s.Draw }

// Log is the append-only move list of one round and the board derived from it.
// It is not safe for concurrent use.
type Log struct {
	round       uint64
	board       [BoardSize][BoardSize]Player
	moves       []Move
	current     Player
	winner      Player
	winningLine []Cell
}

// NewLog returns an empty log for the given round. Player 1 moves first.
func NewLog(round uint64) *Log {
	return &Log{round: round, current: Player1}
}

// Reset clears the board and starts the given round.
func (l *Log) Reset(round uint64) {
	*l = Log{round: round, current: Player1}
}

func (l *Log) Round() uint64 { return l.round }

func (l *Log) Len() int { return len(l.moves) }

func (l *Log) CurrentPlayer() Player { return l.current }

func (l *Log) Winner() Player { return l.winner }

func (l *Log) Draw() bool {
	return l.winner == None && len(l.moves) == BoardSize*BoardSize
}

func (l *Log) Over() bool { return l.winner != None || l.Draw() }

// At returns the stone on a cell.
func (l *Log) At(row, col int) Player {
	if !(Cell{row, col}).inBounds() {
		return None
	}
	return l.board[row][col]
}

// Check validates m against the current board without applying it.
func (l *Log) Check(m Move) error {
	switch {
	case !m.Cell().inBounds():
		return ErrOutOfBounds
	case l.Over():
		return ErrGameOver
	case m.Player != l.current:
		return ErrWrongPlayer
	case l.board[m.Row][m.Col] != None:
		return ErrCellOccupied
	}
	return nil
}

// Apply appends m to the log, then records a win or advances the turn.
func (l *Log) Apply(m Move) error {
	if err := l.Check(m); err != nil {
		return err
	}
	l.board[m.Row][m.Col] = m.Player
	l.moves = append(l.moves, m)

	if line := WinningLine(&l.board, m.Cell(), m.Player); line != nil {
		l.winner = m.Player
		l.winningLine = line
		return nil
	}
	l.current = m.Player.Opponent()
	return nil
}

// Snapshot returns a copy of the round's state.
func (l *Log) Snapshot() State {
	s := State{
		Round:         l.round,
		Moves:         make([]Move, len(l.moves)),
		CurrentPlayer: l.current,
		Winner:        l.winner,
		Draw:          l.Draw(),
	}
	copy(s.Moves, l.moves)
	if l.winningLine != nil {
		s.WinningLine = append([]Cell(nil), l.winningLine...)
	}
	return s
}

// Replay builds a fresh log from a snapshot's moves. The snapshot's derived
// fields must agree with the replayed board.
func Replay(s State) (*Log, error) {
	l := NewLog(s.Round)
	for _, m := range s.Moves {
		if err := l.Apply(m); err != nil {
			return nil, err
		}
	}
	if l.winner != s.Winner || l.current != s.CurrentPlayer || l.Draw() != s.Draw {
		return nil, ErrInconsistent
	}
	return l, nil
}

// directions are the four axes scanned for a run: horizontal, vertical,
// diagonal and anti-diagonal.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// WinningLine returns the winning cells through last for player, or nil.
// Each axis is walked up to WinLength-1 cells forward and then backward
// while stones match. The line is ordered from the backward end to the
// forward end and trimmed to its first WinLength cells.
func WinningLine(board *[BoardSize][BoardSize]Player, last Cell, player Player) []Cell {
	if player == None {
		return nil
	}
	for _, d := range directions {
		line := []Cell{last}

		for i := 1; i < WinLength; i++ {
			c := Cell{last.Row + d[0]*i, last.Col + d[1]*i}
			if !c.inBounds() || board[c.Row][c.Col] != player {
				break
			}
			line = append(line, c)
		}

		for i := 1; i < WinLength; i++ {
			c := Cell{last.Row - d[0]*i, last.Col - d[1]*i}
			if !c.inBounds() || board[c.Row][c.Col] != player {
				break
			}
			line = append([]Cell{c}, line...)
		}

		if len(line) >= WinLength {
			return line[:WinLength]
		}
	}
	return nil
}

func now() int64 { return time.Now().UnixMilli() }
