package reinforcement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "qgrid/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const testConfig = `
kind: qlearning
def:
  grid:
    size: 6
    drawCount: fixed
    fixedDraws: 8
  hyperParams:
    - key: alpha
      val: 0.5
    - key: epsilonTrain
      val: 0.3
    - key: seed
      val: 42
  trainingDeadline:
    duration: 2s
`

func TestFromYaml(t *testing.T) {
	Convey("Given a config file with camel case keys", t, func() {
		cfg, err := FromYaml(writeConfig(t, testConfig))
		So(err, ShouldBeNil)

		Convey("Grid and hyper-parameters are read", func() {
			So(cfg.Grid.Size, ShouldEqual, 6)
			So(cfg.Grid.DrawCount, ShouldEqual, DRAW_COUNT_FIXED)
			So(cfg.DrawCountFunc()(6), ShouldEqual, 8)
			So(cfg.Alpha(), ShouldEqual, 0.5)
			So(cfg.EpsilonTrain(), ShouldEqual, 0.3)
			So(cfg.Seed(), ShouldEqual, 42)
		})

		Convey("Missing values keep their defaults", func() {
			So(cfg.Gamma(), ShouldEqual, DEFAULT_GAMMA)
			So(cfg.Episodes(), ShouldEqual, DEFAULT_EPISODES)
			So(cfg.MaxEpisodeSteps(), ShouldEqual, DEFAULT_MAX_EPISODE_STEPS)
			So(cfg.ProgressInterval(), ShouldEqual, DEFAULT_PROGRESS_INTERVAL)
		})

		Convey("The training deadline bounds the context", func() {
			ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
			So(err, ShouldBeNil)
			defer cancel()
			deadline, ok := ctx.Deadline()
			So(ok, ShouldBeTrue)
			So(deadline, ShouldHappenWithin, 3*time.Second, time.Now())
		})

		Convey("An engine can be built from it", func() {
			e, err := NewEngineFromConfig(cfg)
			So(err, ShouldBeNil)
			So(e.Spec().Size(), ShouldEqual, 6)
			So(e.Values().NumStates(), ShouldEqual, 36)
			e.RegeneratePenalties()
			So(len(e.Penalties()), ShouldBeBetweenOrEqual, 1, 8)
		})
	})

	Convey("An unsupported kind is rejected", t, func() {
		_, err := FromYaml(writeConfig(t, "kind: sarsa\ndef:\n  grid:\n    size: 5\n"))
		So(errors.Is(err, ErrUnsupportedKind), ShouldBeTrue)
	})

	Convey("A fixed draw formula without a draw count is rejected", t, func() {
		_, err := FromYaml(writeConfig(t, "kind: qlearning\ndef:\n  grid:\n    size: 5\n    drawCount: fixed\n"))
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("An invalid grid is rejected", t, func() {
		_, err := FromYaml(writeConfig(t, "kind: qlearning\ndef:\n  grid:\n    size: 1\n"))
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("A missing file is an error", t, func() {
		_, err := FromYaml(filepath.Join(t.TempDir(), "nope.yaml"))
		So(err, ShouldNotBeNil)
	})
}

func TestValidate(t *testing.T) {
	Convey("Given the default config", t, func() {
		cfg := DefaultTrainingConfig()
		So(cfg.Validate(), ShouldBeNil)

		Convey("Out of range rates are invalid", func() {
			cfg.SetHyperParam(EPSILON_STEP, 1.5)
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Negative episodes are invalid", func() {
			cfg.SetHyperParam(EPISODES, -1)
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("An unknown draw count formula is invalid", func() {
			cfg.Grid.DrawCount = "half"
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("The fixed draw formula needs at least one draw", func() {
			cfg.Grid.DrawCount = DRAW_COUNT_FIXED
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
			cfg.Grid.FixedDraws = 1
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("A malformed deadline is invalid", func() {
			cfg.TrainingDeadline = map[string]string{"duration": "soon"}
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("SetHyperParam overrides an existing value in place", func() {
			cfg.SetHyperParam(GAMMA, 0.9)
			cfg.SetHyperParam(GAMMA, 0.8)
			So(cfg.HyperParams, ShouldHaveLength, 1)
			So(cfg.Gamma(), ShouldEqual, 0.8)
		})

		Convey("Without a deadline the context only cancels", func() {
			ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
			So(err, ShouldBeNil)
			_, ok := ctx.Deadline()
			So(ok, ShouldBeFalse)
			cancel()
			So(ctx.Err(), ShouldEqual, context.Canceled)
		})

		Convey("The default draw formula is a third of the cells", func() {
			So(cfg.DrawCountFunc()(5), ShouldEqual, ThirdOfCells(5))
		})
	})
}
