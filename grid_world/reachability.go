package grid_world

import "github.com/zyedidia/generic/mapset"

// GoalReachable reports whether a path of non-penalty cells leads from the start
// to the goal. Randomly placed penalties can wall the goal off entirely, in which
// case no amount of training produces a successful episode.
func GoalReachable(g GridSpec, penalties *PenaltySet) bool {
	visited := mapset.New[Coordinate]()
	queue := []Coordinate{g.Start()}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited.Has(current) {
			continue
		}
		visited.Put(current)

		if g.IsTerminalGoal(current) {
			return true
		}

		for _, action := range Actions {
			next, ok := g.ResolveMove(current, action)
			if !ok || visited.Has(next) {
				continue
			}
			if penalties != nil && penalties.Contains(next) {
				continue
			}
			queue = append(queue, next)
		}
	}
	return false
}
