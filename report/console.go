// Package report prints learned grids to a console and renders training charts.
package report

import (
	"fmt"
	"io"

	. "qgrid/grid_world"
	"qgrid/reinforcement"

	"github.com/logrusorgru/aurora"
	"github.com/zyedidia/generic/mapset"
	"gonum.org/v1/gonum/floats"
)

// Board is the read-only view of an engine that the console reports need.
type Board interface {
	Spec() GridSpec
	Agent() Coordinate
	Penalties() []Coordinate
	Values() *reinforcement.ValueTable
}

// Cell runes used by ShowGrid.
const (
	START_CELL   = 'S'
	GOAL_CELL    = 'G'
	PENALTY_CELL = 'X'
	AGENT_CELL   = 'A'
	EMPTY_CELL   = '.'
)

var arrows = [NUM_ACTIONS]rune{'^', '>', 'v', '<'}

// Console writes colored reports; colors may be disabled for logs and tests.
type Console struct {
	w  io.Writer
	au aurora.Aurora
}

func NewConsole(w io.Writer, colors bool) *Console {
	return &Console{w: w, au: aurora.NewAurora(colors)}
}

func penaltyLookup(board Board) mapset.Set[Coordinate] {
	lookup := mapset.New[Coordinate]()
	for _, c := range board.Penalties() {
		lookup.Put(c)
	}
	return lookup
}

// ShowGrid prints the layout, row 0 at the top.
func (con *Console) ShowGrid(board Board) {
	spec := board.Spec()
	penalties := penaltyLookup(board)
	for row := 0; row < spec.Size(); row++ {
		for col := 0; col < spec.Size(); col++ {
			c := Coordinate{Row: row, Col: col}
			switch {
			case c == board.Agent():
				fmt.Fprintf(con.w, "%c ", con.au.Bold(con.au.Cyan(AGENT_CELL)))
			case spec.IsTerminalGoal(c):
				fmt.Fprintf(con.w, "%c ", con.au.Green(GOAL_CELL))
			case penalties.Has(c):
				fmt.Fprintf(con.w, "%c ", con.au.Red(PENALTY_CELL))
			case c == spec.Start():
				fmt.Fprintf(con.w, "%c ", con.au.Blue(START_CELL))
			default:
				fmt.Fprintf(con.w, "%c ", EMPTY_CELL)
			}
		}
		fmt.Fprintln(con.w)
	}
}

// ShowPolicy prints the greedy on-grid action of every non-terminal cell as an arrow.
func (con *Console) ShowPolicy(board Board) {
	spec := board.Spec()
	penalties := penaltyLookup(board)
	values := board.Values()
	for row := 0; row < spec.Size(); row++ {
		fmt.Fprint(con.w, " ")
		for col := 0; col < spec.Size(); col++ {
			c := Coordinate{Row: row, Col: col}
			switch {
			case spec.IsTerminalGoal(c):
				fmt.Fprintf(con.w, "%c ", con.au.Green(GOAL_CELL))
			case penalties.Has(c):
				fmt.Fprintf(con.w, "%c ", con.au.Red(PENALTY_CELL))
			default:
				action := values.BestActionAmong(spec.StateOf(c), spec.ValidActions(c))
				fmt.Fprintf(con.w, "%c ", arrows[action])
			}
		}
		fmt.Fprintln(con.w)
	}
}

// ShowMaxValues prints the max action value per cell. Positive values are green, negative red.
func (con *Console) ShowMaxValues(board Board) {
	fmt.Fprintln(con.w, "Max vals:")
	spec := board.Spec()
	stateValues := board.Values().StateValues()
	for row := 0; row < spec.Size(); row++ {
		fmt.Fprint(con.w, " ")
		for col := 0; col < spec.Size(); col++ {
			val := stateValues[spec.StateOf(Coordinate{Row: row, Col: col})]
			cell := fmt.Sprintf("%8.2f", val)
			switch {
			case val > 0:
				fmt.Fprint(con.w, con.au.Green(cell))
			case val < 0:
				fmt.Fprint(con.w, con.au.Red(cell))
			default:
				fmt.Fprint(con.w, cell)
			}
			fmt.Fprint(con.w, " ")
		}
		fmt.Fprintln(con.w)
	}
	fmt.Fprintf(con.w, "Total: %.2f\n", floats.Sum(stateValues))
}

// ShowTrainingSummary prints the outcome counts of a training run.
func (con *Console) ShowTrainingSummary(report reinforcement.TrainingReport) {
	fmt.Fprintf(con.w, "Episodes: %d  Goals: %v  Falls: %v  Exceeded: %v  Steps: %d\n",
		report.Episodes,
		con.au.Green(report.Goals),
		con.au.Red(report.Falls),
		con.au.Yellow(report.Exceeded),
		report.TotalSteps)
}
