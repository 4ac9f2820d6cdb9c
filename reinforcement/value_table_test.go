package reinforcement

import (
	"math"
	"math/rand"
	"testing"

	. "qgrid/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

func setValue(vt *ValueTable, state int, action Action, val float64) {
	vt.rows[state][action].AtomicSet(val)
}

func TestValueTable(t *testing.T) {
	Convey("Given a fresh value table", t, func() {
		vt := NewValueTable(25)

		Convey("It has one zeroed row of four values per state", func() {
			So(vt.NumStates(), ShouldEqual, 25)
			for s := 0; s < vt.NumStates(); s++ {
				So(vt.Row(s), ShouldResemble, []float64{0, 0, 0, 0})
				So(vt.BestValue(s), ShouldEqual, 0.0)
			}
		})

		Convey("An all-zero row picks action 0", func() {
			So(vt.BestAction(7), ShouldEqual, UP)
		})

		Convey("Ties go to the lowest action index", func() {
			setValue(vt, 3, RIGHT, 5)
			setValue(vt, 3, LEFT, 5)
			So(vt.BestAction(3), ShouldEqual, RIGHT)
			So(vt.BestValue(3), ShouldEqual, 5.0)
		})

		Convey("Masked selection keeps the tie-break within the allowed actions", func() {
			So(vt.BestActionAmong(0, []Action{RIGHT, DOWN}), ShouldEqual, RIGHT)
			setValue(vt, 0, DOWN, 1)
			So(vt.BestActionAmong(0, []Action{RIGHT, DOWN}), ShouldEqual, DOWN)
			setValue(vt, 0, UP, 10)
			So(vt.BestActionAmong(0, []Action{RIGHT, DOWN}), ShouldEqual, DOWN)
		})

		Convey("Update applies the temporal-difference rule", func() {
			setValue(vt, 1, RIGHT, 4)
			setValue(vt, 2, DOWN, 10)
			got := vt.Update(1, RIGHT, 1.0, 2, 0.5, 0.6)
			// 4 + 0.5*(1 + 0.6*10 - 4) = 5.5
			So(got, ShouldAlmostEqual, 5.5)
			So(vt.ValueOf(1, RIGHT), ShouldAlmostEqual, 5.5)
		})

		Convey("Update from zero toward the goal reward uses the default constants", func() {
			got := vt.Update(19, DOWN, GOAL_REWARD, 24, DEFAULT_ALPHA, DEFAULT_GAMMA)
			So(got, ShouldAlmostEqual, 245.0)
		})

		Convey("Update always moves a value closer to its target", func() {
			rng := rand.New(rand.NewSource(11))
			for i := 0; i < 200; i++ {
				s, next := rng.Intn(25), rng.Intn(25)
				a := Action(rng.Intn(NUM_ACTIONS))
				setValue(vt, s, a, rng.Float64()*200-100)
				setValue(vt, next, Action(rng.Intn(NUM_ACTIONS)), rng.Float64()*200-100)
				reward := []float64{GOAL_REWARD, PENALTY_REWARD, STEP_REWARD}[rng.Intn(3)]

				before := vt.ValueOf(s, a)
				target := reward + DEFAULT_GAMMA*vt.BestValue(next)
				if s == next {
					continue
				}
				after := vt.Update(s, a, reward, next, DEFAULT_ALPHA, DEFAULT_GAMMA)
				if before != target {
					So(math.Abs(after-target), ShouldBeLessThan, math.Abs(before-target))
				}
			}
		})

		Convey("StateValues reports the max of each row", func() {
			setValue(vt, 4, LEFT, -3)
			setValue(vt, 5, UP, 2)
			values := vt.StateValues()
			So(values, ShouldHaveLength, 25)
			So(values[4], ShouldEqual, 0.0)
			So(values[5], ShouldEqual, 2.0)
		})
	})
}
