package reinforcement

import (
	"errors"
	"math/rand"

	. "qgrid/grid_world"
)

// ErrNoValidAction is returned when masked selection is given no actions to choose from.
// This cannot happen on a grid of at least 2x2.
var ErrNoValidAction = errors.New("no valid action available")

// Policy is an epsilon-greedy action selector over ValueTable rows.
// Epsilon is supplied per call rather than stored, since each command uses its own.
type Policy struct {
	rng    *rand.Rand
	values *ValueTable
}

func NewPolicy(rng *rand.Rand, values *ValueTable) *Policy {
	return &Policy{rng: rng, values: values}
}

// SelectAction explores uniformly over all four actions with probability epsilon,
// and otherwise exploits the best known action. The chosen action may lead off the grid.
func (p *Policy) SelectAction(state int, epsilon float64) Action {
	if p.rng.Float64() < clampEpsilon(epsilon) {
		return Action(p.rng.Intn(NUM_ACTIONS))
	}
	return p.values.BestAction(state)
}

// SelectMaskedAction is SelectAction restricted to @valid, the actions whose
// destination is on the grid, so an invalid move is never drawn.
func (p *Policy) SelectMaskedAction(state int, valid []Action, epsilon float64) (Action, error) {
	if len(valid) == 0 {
		return 0, ErrNoValidAction
	}
	if p.rng.Float64() < clampEpsilon(epsilon) {
		return valid[p.rng.Intn(len(valid))], nil
	}
	return p.values.BestActionAmong(state, valid), nil
}

func clampEpsilon(epsilon float64) float64 {
	if epsilon < 0 {
		return 0
	}
	if epsilon > 1 {
		return 1
	}
	return epsilon
}
