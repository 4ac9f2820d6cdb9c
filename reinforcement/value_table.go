package reinforcement

import (
	"qgrid/atomic_float"
	. "qgrid/grid_world"

	"gonum.org/v1/gonum/floats"
)

// Learning parameters used unless overridden by config.
const (
	DEFAULT_ALPHA = 0.98
	DEFAULT_GAMMA = 0.6
)

// ValueTable is the state-action value store: one row of NUM_ACTIONS values per
// grid state, all zero at construction. Its dimensions never change.
// Cells are atomic so views may sample the table while a training run updates it.
type ValueTable struct {
	rows [][NUM_ACTIONS]*atomic_float.AtomicFloat64
}

// NewValueTable returns a zeroed table with @numStates rows.
func NewValueTable(numStates int) *ValueTable {
	rows := make([][NUM_ACTIONS]*atomic_float.AtomicFloat64, numStates)
	for s := range rows {
		for a := range rows[s] {
			rows[s][a] = atomic_float.NewAtomicFloat64(0.0)
		}
	}
	return &ValueTable{rows: rows}
}

func (vt *ValueTable) NumStates() int {
	return len(vt.rows)
}

func (vt *ValueTable) ValueOf(state int, action Action) float64 {
	return vt.rows[state][action].AtomicRead()
}

// Row returns a copy of the action values for @state, in action index order.
func (vt *ValueTable) Row(state int) []float64 {
	row := make([]float64, NUM_ACTIONS)
	for a := range row {
		row[a] = vt.rows[state][a].AtomicRead()
	}
	return row
}

// BestAction returns the highest valued action for @state. Ties go to the lowest
// action index, so an untouched row always yields UP.
func (vt *ValueTable) BestAction(state int) Action {
	return Action(floats.MaxIdx(vt.Row(state)))
}

// BestActionAmong is BestAction restricted to @actions, which must be non-empty
// and in ascending index order for the lowest-index tie-break to hold.
func (vt *ValueTable) BestActionAmong(state int, actions []Action) Action {
	candidates := make([]float64, len(actions))
	for i, action := range actions {
		candidates[i] = vt.ValueOf(state, action)
	}
	return actions[floats.MaxIdx(candidates)]
}

// BestValue is the max action value of @state.
func (vt *ValueTable) BestValue(state int) float64 {
	return floats.Max(vt.Row(state))
}

// Update applies the Q-learning temporal-difference rule and returns the new value:
//
//	Q[s][a] += alpha * (reward + gamma * max_a' Q[s'][a'] - Q[s][a])
func (vt *ValueTable) Update(
	state int,
	action Action,
	reward float64,
	nextState int,
	alpha, gamma float64,
) float64 {
	target := reward + gamma*vt.BestValue(nextState)
	return vt.rows[state][action].AtomicUpdate(func(old float64) float64 {
		return old + alpha*(target-old)
	})
}

// StateValues returns the max action value of every state, indexed by state.
func (vt *ValueTable) StateValues() []float64 {
	values := make([]float64, len(vt.rows))
	for s := range vt.rows {
		values[s] = vt.BestValue(s)
	}
	return values
}

