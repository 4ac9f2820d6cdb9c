package grid_world

import (
	"math/rand"
	"sort"

	"github.com/zyedidia/generic/mapset"
)

// DrawCountFunc returns how many cells are sampled (with replacement) when
// penalty cells are regenerated for a grid of the given size.
type DrawCountFunc func(size int) int

// ThirdOfCells draws floor(N²/3)+1 cells, so obstacle density is roughly constant across grid sizes.
func ThirdOfCells(size int) int {
	return size*size/3 + 1
}

// FixedDraws always draws n cells; FixedDraws(8) is the classic 5x5 layout.
func FixedDraws(n int) DrawCountFunc {
	return func(int) int { return n }
}

// PenaltySet is the mutable set of trap cells. It never holds the goal or the start cell.
type PenaltySet struct {
	spec      GridSpec
	drawCount DrawCountFunc
	cells     mapset.Set[Coordinate]
}

// NewPenaltySet returns an empty set for @spec. A nil @drawCount defaults to ThirdOfCells.
func NewPenaltySet(spec GridSpec, drawCount DrawCountFunc) *PenaltySet {
	if drawCount == nil {
		drawCount = ThirdOfCells
	}
	return &PenaltySet{
		spec:      spec,
		drawCount: drawCount,
		cells:     mapset.New[Coordinate](),
	}
}

// Regenerate replaces the set with a fresh random sample. Samples are drawn with
// replacement from every cell but the goal and start, then deduplicated, so the
// resulting set may be smaller than the draw count.
func (ps *PenaltySet) Regenerate(rng *rand.Rand) {
	pool := ps.candidates()
	cells := mapset.New[Coordinate]()
	if len(pool) > 0 {
		for i := 0; i < ps.drawCount(ps.spec.Size()); i++ {
			cells.Put(pool[rng.Intn(len(pool))])
		}
	}
	ps.cells = cells
}

// candidates is the sampling pool: all cells minus goal and start.
func (ps *PenaltySet) candidates() []Coordinate {
	pool := make([]Coordinate, 0, ps.spec.NumStates())
	for _, c := range ps.spec.Cells() {
		if ps.isProtected(c) {
			continue
		}
		pool = append(pool, c)
	}
	return pool
}

func (ps *PenaltySet) isProtected(c Coordinate) bool {
	return c == ps.spec.Goal() || c == ps.spec.Start()
}

func (ps *PenaltySet) Clear() {
	ps.cells = mapset.New[Coordinate]()
}

func (ps *PenaltySet) Contains(c Coordinate) bool {
	return ps.cells.Has(c)
}

func (ps *PenaltySet) Len() int {
	return ps.cells.Size()
}

// Toggle adds @c if absent and removes it otherwise. The goal, the start cell and
// off-grid cells are rejected; the agent's current position is not consulted.
func (ps *PenaltySet) Toggle(c Coordinate) error {
	if !ps.spec.IsWithinBounds(c) {
		return ErrOutOfBounds
	}
	if ps.isProtected(c) {
		return ErrProtectedCell
	}
	if ps.cells.Has(c) {
		ps.cells.Remove(c)
	} else {
		ps.cells.Put(c)
	}
	return nil
}

// Coordinates returns the penalty cells in row-major order.
func (ps *PenaltySet) Coordinates() []Coordinate {
	coords := make([]Coordinate, 0, ps.cells.Size())
	ps.cells.Each(func(c Coordinate) {
		coords = append(coords, c)
	})
	sort.Slice(coords, func(i, j int) bool {
		return ps.spec.StateOf(coords[i]) < ps.spec.StateOf(coords[j])
	})
	return coords
}
