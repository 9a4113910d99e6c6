package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cells(row int, cols ...int) []Cell {
	out := make([]Cell, len(cols))
	for i, c := range cols {
		out[i] = Cell{Row: row, Col: c}
	}
	return out
}

func TestWinningLine_Horizontal(t *testing.T) {
	var board [BoardSize][BoardSize]Player
	for c := 3; c <= 7; c++ {
		board[7][c] = Player1
	}

	line := WinningLine(&board, Cell{7, 7}, Player1)

	assert.Equal(t, cells(7, 3, 4, 5, 6, 7), line)
}

func TestWinningLine_NoPrematureWin(t *testing.T) {
	var board [BoardSize][BoardSize]Player

	// Given: stones at 3, 4, 5, 6 and 8 with a gap at 7
	for _, c := range []int{3, 4, 5, 6, 8} {
		board[7][c] = Player1
		// Then: none of them wins on its own
		assert.Nil(t, WinningLine(&board, Cell{7, c}, Player1), "col %d", c)
	}

	// When: the gap is filled
	board[7][7] = Player1

	// Then: the first five cells of the run win
	assert.Equal(t, cells(7, 3, 4, 5, 6, 7), WinningLine(&board, Cell{7, 7}, Player1))
}

func TestWinningLine_Axes(t *testing.T) {
	tests := []struct {
		name  string
		cells []Cell
		last  Cell
	}{
		{
			name:  "vertical",
			cells: []Cell{{2, 4}, {3, 4}, {4, 4}, {5, 4}, {6, 4}},
			last:  Cell{2, 4},
		},
		{
			name:  "diagonal",
			cells: []Cell{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}},
			last:  Cell{2, 2},
		},
		{
			name:  "anti-diagonal",
			cells: []Cell{{4, 10}, {5, 9}, {6, 8}, {7, 7}, {8, 6}},
			last:  Cell{8, 6},
		},
		{
			name:  "edge of board",
			cells: cells(14, 10, 11, 12, 13, 14),
			last:  Cell{14, 14},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var board [BoardSize][BoardSize]Player
			for _, c := range tc.cells {
				board[c.Row][c.Col] = Player2
			}

			line := WinningLine(&board, tc.last, Player2)

			assert.Equal(t, tc.cells, line)
			assert.Nil(t, WinningLine(&board, tc.last, Player1))
		})
	}
}

func TestLog_Apply(t *testing.T) {
	l := NewLog(1)

	require.NoError(t, l.Apply(Move{Row: 7, Col: 7, Player: Player1}))
	assert.Equal(t, Player2, l.CurrentPlayer())

	t.Run("occupied", func(t *testing.T) {
		err := l.Apply(Move{Row: 7, Col: 7, Player: Player2})
		assert.ErrorIs(t, err, ErrCellOccupied)
	})

	t.Run("wrong player", func(t *testing.T) {
		err := l.Apply(Move{Row: 0, Col: 0, Player: Player1})
		assert.ErrorIs(t, err, ErrWrongPlayer)
	})

	t.Run("out of bounds", func(t *testing.T) {
		err := l.Apply(Move{Row: BoardSize, Col: 0, Player: Player2})
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})

	// Rejected moves leave the log untouched.
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, Player2, l.CurrentPlayer())
}

func TestLog_WinEndsRound(t *testing.T) {
	l := NewLog(1)
	for c := 0; c < 4; c++ {
		require.NoError(t, l.Apply(Move{Row: 0, Col: c, Player: Player1}))
		require.NoError(t, l.Apply(Move{Row: 1, Col: c, Player: Player2}))
	}

	require.NoError(t, l.Apply(Move{Row: 0, Col: 4, Player: Player1}))

	s := l.Snapshot()
	assert.Equal(t, Player1, s.Winner)
	assert.Equal(t, cells(0, 0, 1, 2, 3, 4), s.WinningLine)
	assert.True(t, s.Over())
	assert.ErrorIs(t, l.Apply(Move{Row: 2, Col: 0, Player: Player2}), ErrGameOver)
}

func TestLog_Draw(t *testing.T) {
	l := NewLog(1)

	// Given: a full-board schedule with no five in a row for either colour
	ones, twos := drawCells()
	require.Equal(t, len(ones), len(twos)+1)

	// When: both colours fill the board in turn
	for i := range ones {
		require.NoError(t, l.Apply(Move{Row: ones[i].Row, Col: ones[i].Col, Player: Player1}), "move %d", i)
		if i < len(twos) {
			require.NoError(t, l.Apply(Move{Row: twos[i].Row, Col: twos[i].Col, Player: Player2}), "move %d", i)
		}
	}

	// Then: the round is a draw
	assert.True(t, l.Draw())
	assert.True(t, l.Over())
	assert.Equal(t, None, l.Winner())
}

// drawCells splits the board into column pairs whose colour flips every row.
// The pattern never lines up five stones of one colour on any axis.
func drawCells() (ones, twos []Cell) {
	for r := 0; r < BoardSize; r++ {
		for c := 0; c < BoardSize; c++ {
			if (c/2+r)%2 == 0 {
				ones = append(ones, Cell{r, c})
			} else {
				twos = append(twos, Cell{r, c})
			}
		}
	}
	return ones, twos
}

func TestReplay(t *testing.T) {
	l := NewLog(3)
	require.NoError(t, l.Apply(Move{Row: 1, Col: 1, Player: Player1}))
	require.NoError(t, l.Apply(Move{Row: 2, Col: 2, Player: Player2}))

	replayed, err := Replay(l.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, l.Snapshot(), replayed.Snapshot())

	t.Run("inconsistent derived fields", func(t *testing.T) {
		s := l.Snapshot()
		s.CurrentPlayer = Player2

		_, err := Replay(s)
		assert.ErrorIs(t, err, ErrInconsistent)
	})

	t.Run("invalid move", func(t *testing.T) {
		s := l.Snapshot()
		s.Moves = append(s.Moves, Move{Row: 1, Col: 1, Player: Player1})

		_, err := Replay(s)
		assert.ErrorIs(t, err, ErrCellOccupied)
	})
}
