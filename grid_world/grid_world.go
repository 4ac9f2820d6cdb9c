// Package grid_world describes the square grid the agent moves on: its bounds,
// goal and start cells, the four move actions, the penalty cells and rewards.
package grid_world

import (
	"errors"
	"fmt"
)

// Coordinate is a (row, col) grid position. Row 0 is the top row.
type Coordinate struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d, %d)", c.Row, c.Col)
}

// Action is a move in one of the four orthogonal directions.
// The index mapping is fixed, since value table columns are indexed by it.
type Action int

const (
	UP Action = iota
	RIGHT
	DOWN
	LEFT
)

// NUM_ACTIONS is the width of every value table row.
const NUM_ACTIONS = 4

// Actions lists every action in index order.
var Actions = [NUM_ACTIONS]Action{UP, RIGHT, DOWN, LEFT}

func (a Action) String() string {
	switch a {
	case UP:
		return "up"
	case RIGHT:
		return "right"
	case DOWN:
		return "down"
	case LEFT:
		return "left"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Rewards
const (
	GOAL_REWARD    = 250.0
	PENALTY_REWARD = -100.0
	STEP_REWARD    = 0.0
)

// DEFAULT_SIZE is the grid size used when none is configured.
const DEFAULT_SIZE = 5

var (
	// ErrGridTooSmall is returned for grids with fewer than two rows/cols, where start and goal coincide.
	ErrGridTooSmall = errors.New("grid size must be at least 2")
	// ErrOutOfBounds is returned when a coordinate lies outside the grid.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrProtectedCell is returned when the goal or start cell would become a penalty cell.
	ErrProtectedCell = errors.New("goal and start cells cannot be penalty cells")
)

// GridSpec is the static description of an NxN grid. The goal is the bottom-right
// cell and the start is the top-left cell; neither changes after construction.
type GridSpec struct {
	size int
}

// NewGridSpec describes a size x size grid.
func NewGridSpec(size int) (GridSpec, error) {
	if size < 2 {
		return GridSpec{}, fmt.Errorf("%w: got %d", ErrGridTooSmall, size)
	}
	return GridSpec{size: size}, nil
}

func (g GridSpec) Size() int { return g.size }
func (g GridSpec) NumStates() int { return g.size * g.size }
func (g GridSpec) Goal() Coordinate { return Coordinate{Row: g.size - 1, Col: g.size - 1} }

// Start is where the agent begins every episode and returns after every terminal transition.
func (g GridSpec) Start() Coordinate { return Coordinate{} }

func (g GridSpec) IsTerminalGoal(c Coordinate) bool {
	return c == g.Goal()
}

func (g GridSpec) IsWithinBounds(c Coordinate) bool {
	return c.Row >= 0 && c.Row < g.size && c.Col >= 0 && c.Col < g.size
}

// StateOf encodes a coordinate as a value table row index: row*N + col.
func (g GridSpec) StateOf(c Coordinate) int {
	return c.Row*g.size + c.Col
}

// CoordinateOf is the inverse of StateOf.
func (g GridSpec) CoordinateOf(state int) Coordinate {
	return Coordinate{Row: state / g.size, Col: state % g.size}
}

// ResolveMove returns the destination of taking @action from @c, or false if the
// move would leave the grid. There is no wraparound.
func (g GridSpec) ResolveMove(c Coordinate, action Action) (Coordinate, bool) {
	next := c
	switch action {
	case UP:
		next.Row--
	case RIGHT:
		next.Col++
	case DOWN:
		next.Row++
	case LEFT:
		next.Col--
	default:
		return c, false
	}
	if !g.IsWithinBounds(next) {
		return c, false
	}
	return next, true
}

// ValidActions returns the actions whose destination from @c is on the grid, in index order.
// For any in-bounds coordinate of a grid with N >= 2 there are at least two.
func (g GridSpec) ValidActions(c Coordinate) []Action {
	valid := make([]Action, 0, NUM_ACTIONS)
	for _, action := range Actions {
		if _, ok := g.ResolveMove(c, action); ok {
			valid = append(valid, action)
		}
	}
	return valid
}

// Cells returns every coordinate of the grid in row-major order.
func (g GridSpec) Cells() []Coordinate {
	cells := make([]Coordinate, 0, g.NumStates())
	for row := 0; row < g.size; row++ {
		for col := 0; col < g.size; col++ {
			cells = append(cells, Coordinate{Row: row, Col: col})
		}
	}
	return cells
}

// RewardFor returns the reward for stepping into @c. The goal takes precedence
// should a cell ever be flagged as both goal and penalty.
func RewardFor(g GridSpec, penalties *PenaltySet, c Coordinate) float64 {
	switch {
	case g.IsTerminalGoal(c):
		return GOAL_REWARD
	case penalties != nil && penalties.Contains(c):
		return PENALTY_REWARD
	default:
		return STEP_REWARD
	}
}
