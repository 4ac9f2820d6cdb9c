package report

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"

	. "qgrid/grid_world"
	"qgrid/reinforcement"

	. "github.com/smartystreets/goconvey/convey"
)

func newBoard() *reinforcement.Engine {
	spec, _ := NewGridSpec(DEFAULT_SIZE)
	return reinforcement.NewEngine(spec, reinforcement.WithRand(rand.New(rand.NewSource(1))))
}

func TestConsole(t *testing.T) {
	Convey("Given an untrained board with one penalty cell", t, func() {
		board := newBoard()
		So(board.TogglePenaltyCell(Coordinate{Row: 1, Col: 1}), ShouldBeNil)
		buf := &bytes.Buffer{}
		con := NewConsole(buf, false)

		Convey("ShowGrid marks agent, penalty and goal", func() {
			con.ShowGrid(board)
			lines := strings.Split(buf.String(), "\n")
			So(lines, ShouldHaveLength, 6)
			So(lines[0], ShouldEqual, "A . . . . ")
			So(lines[1], ShouldEqual, ". X . . . ")
			So(lines[4], ShouldEqual, ". . . . G ")
		})

		Convey("ShowPolicy points untrained cells at their first valid action", func() {
			con.ShowPolicy(board)
			lines := strings.Split(buf.String(), "\n")
			So(lines[0], ShouldEqual, " > > > > v ")
			So(lines[1], ShouldEqual, " ^ X ^ ^ ^ ")
			So(lines[4], ShouldEqual, " ^ ^ ^ ^ G ")
		})

		Convey("ShowMaxValues prints one value per cell", func() {
			con.ShowMaxValues(board)
			So(buf.String(), ShouldStartWith, "Max vals:\n")
			So(buf.String(), ShouldContainSubstring, "Total: 0.00")
			So(strings.Count(buf.String(), "0.00"), ShouldEqual, 26)
		})
	})

	Convey("Colored output carries escape codes", t, func() {
		buf := &bytes.Buffer{}
		NewConsole(buf, true).ShowGrid(newBoard())
		So(buf.String(), ShouldContainSubstring, "\x1b[")
	})

	Convey("A trained policy leads toward the goal from beside it", t, func() {
		board := newBoard()
		_, err := board.Train(context.Background(), 0.65, 500, nil)
		So(err, ShouldBeNil)
		buf := &bytes.Buffer{}
		NewConsole(buf, false).ShowPolicy(board)
		lines := strings.Split(buf.String(), "\n")
		So(lines[3], ShouldEndWith, "v ")
		So(lines[4], ShouldEndWith, "> G ")
	})
}

func TestTrainingChart(t *testing.T) {
	Convey("Given a training report", t, func() {
		board := newBoard()
		report, err := board.Train(context.Background(), 0.65, 50, nil)
		So(err, ShouldBeNil)

		Convey("The chart page is html with both series", func() {
			buf := &bytes.Buffer{}
			So(WriteTrainingChart(buf, report), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "<html")
			So(buf.String(), ShouldContainSubstring, "Steps per episode")
			So(buf.String(), ShouldContainSubstring, "Return per episode")
		})
	})

	Convey("An empty report is rejected", t, func() {
		So(WriteTrainingChart(&bytes.Buffer{}, reinforcement.TrainingReport{}), ShouldEqual, ErrEmptyReport)
	})

	Convey("The moving average trails over the window", t, func() {
		avg := movingAverage([]float64{2, 4, 6, 8}, 2)
		So(avg, ShouldResemble, []float64{2, 3, 5, 7})
	})
}
