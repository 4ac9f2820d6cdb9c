package reinforcement

/*
Tabular Q-learning for a single agent on a small square grid. The agent starts at the
top-left cell and learns to reach the bottom-right goal cell while avoiding penalty cells.
Every step applies the one-step Q-learning update, so learning accumulates across steps,
episodes and training runs for as long as the Engine lives.

The Engine is synchronous and owned by a single goroutine: step, episode and
train run to completion on the caller's goroutine. Callers that must stay responsive (the
server) run the Engine behind a command loop and cancel long calls through their context.
*/

import (
	"context"
	"math/rand"
	"time"

	. "qgrid/grid_world"
)

// EpisodeResult summarizes one episode of a training run.
type EpisodeResult struct {
	Outcome StatusKind
	Steps   int
	Return  float64
}

// TrainingReport aggregates a training run. Steps and Returns hold one entry per episode.
type TrainingReport struct {
	Episodes     int
	Goals        int
	Falls        int
	Exceeded     int
	TotalSteps   int
	StepsPerEp   []int
	ReturnsPerEp []float64
}

func (r *TrainingReport) add(res EpisodeResult) {
	r.Episodes++
	r.TotalSteps += res.Steps
	r.StepsPerEp = append(r.StepsPerEp, res.Steps)
	r.ReturnsPerEp = append(r.ReturnsPerEp, res.Return)
	switch res.Outcome {
	case AgentReachedGoal:
		r.Goals++
	case AgentFell:
		r.Falls++
	case MaxStepsExceeded:
		r.Exceeded++
	}
}

// ProgressFunc is a callback by which the training method lends progress details after
// every episode. It runs on the training goroutine and should complete quickly.
type ProgressFunc func(ctx context.Context, episode int, result EpisodeResult)

// Engine owns the agent position, the penalty cells and the value table, and runs
// single steps, full episodes and bulk training over them.
type Engine struct {
	spec      GridSpec
	penalties *PenaltySet
	values    *ValueTable
	policy    *Policy
	rng       *rand.Rand
	sink      StatusSink

	alpha, gamma    float64
	maxEpisodeSteps int
	drawCount       DrawCountFunc

	agent  Coordinate
	status StatusEvent
}

// EngineOption configures an Engine at construction.
type EngineOption func(*Engine)

// WithRand injects the random source used for exploration and obstacle placement.
func WithRand(rng *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = rng }
}

// WithSeed seeds a new random source; zero seeds from the clock.
func WithSeed(seed int64) EngineOption {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return WithRand(rand.New(rand.NewSource(seed)))
}

func WithSink(sink StatusSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

func WithHyperParams(alpha, gamma float64) EngineOption {
	return func(e *Engine) {
		e.alpha = alpha
		e.gamma = gamma
	}
}

// WithMaxEpisodeSteps bounds episode length; zero leaves episodes unbounded.
func WithMaxEpisodeSteps(n int) EngineOption {
	return func(e *Engine) { e.maxEpisodeSteps = n }
}

func WithDrawCount(fn DrawCountFunc) EngineOption {
	return func(e *Engine) { e.drawCount = fn }
}

// NewEngine returns an idle engine with an all-zero value table, no penalty cells
// and the agent at the start cell.
func NewEngine(spec GridSpec, opts ...EngineOption) *Engine {
	e := &Engine{
		spec:            spec,
		sink:            discardSink{},
		alpha:           DEFAULT_ALPHA,
		gamma:           DEFAULT_GAMMA,
		maxEpisodeSteps: DEFAULT_MAX_EPISODE_STEPS,
		drawCount:       ThirdOfCells,
		agent:           spec.Start(),
		status:          StatusEvent{Kind: Idle},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.sink == nil {
		e.sink = discardSink{}
	}
	e.penalties = NewPenaltySet(spec, e.drawCount)
	e.values = NewValueTable(spec.NumStates())
	e.policy = NewPolicy(e.rng, e.values)
	return e
}

// NewEngineFromConfig builds an engine from a validated config. Later @opts override config values.
func NewEngineFromConfig(cfg *TrainingConfig, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spec, err := NewGridSpec(cfg.Grid.Size)
	if err != nil {
		return nil, err
	}
	base := []EngineOption{
		WithSeed(cfg.Seed()),
		WithHyperParams(cfg.Alpha(), cfg.Gamma()),
		WithMaxEpisodeSteps(cfg.MaxEpisodeSteps()),
		WithDrawCount(cfg.DrawCountFunc()),
	}
	return NewEngine(spec, append(base, opts...)...), nil
}

func (e *Engine) Spec() GridSpec { return e.spec }
func (e *Engine) Agent() Coordinate { return e.agent }
func (e *Engine) Goal() Coordinate { return e.spec.Goal() }
func (e *Engine) Penalties() []Coordinate { return e.penalties.Coordinates() }
func (e *Engine) Status() StatusEvent { return e.status }

// Values exposes the value table for read-only sampling; it is safe to read concurrently with training.
func (e *Engine) Values() *ValueTable { return e.values }

// GoalReachable reports whether the current penalty cells leave a path from start to goal.
func (e *Engine) GoalReachable() bool {
	return GoalReachable(e.spec, e.penalties)
}

func (e *Engine) emit(ev StatusEvent) StatusEvent {
	e.status = ev
	e.sink.OnStatus(ev)
	return ev
}

// RegeneratePenalties replaces the penalty cells with a fresh random sample.
func (e *Engine) RegeneratePenalties() StatusEvent {
	e.penalties.Regenerate(e.rng)
	return e.emit(StatusEvent{Kind: ObstaclesPlaced})
}

func (e *Engine) ClearPenalties() StatusEvent {
	e.penalties.Clear()
	return e.emit(StatusEvent{Kind: ObstaclesCleared})
}

// TogglePenaltyCell flips a single cell in or out of the penalty set. It does not change the status.
func (e *Engine) TogglePenaltyCell(c Coordinate) error {
	return e.penalties.Toggle(c)
}

// SignalLanguageSwitched only relays the switch; text is the presentation layer's concern.
func (e *Engine) SignalLanguageSwitched(lang string) StatusEvent {
	return e.emit(StatusEvent{Kind: LanguageSwitched, Language: lang})
}

// Step performs exactly one transition, whether or not it ends an episode.
func (e *Engine) Step(epsilon float64) StatusEvent {
	ev, _ := e.performStep(epsilon)
	return ev
}

// Episode resets the agent to the start and steps until it reaches the goal, falls
// into a penalty cell, or exceeds the step ceiling. Cancelling @ctx stops the episode
// between steps and returns ctx.Err(); the agent stays where it was.
func (e *Engine) Episode(ctx context.Context, epsilon float64) (StatusEvent, error) {
	res, err := e.runEpisode(ctx, epsilon)
	if err != nil {
		return e.status, err
	}
	if res.Outcome == MaxStepsExceeded {
		return e.emit(StatusEvent{Kind: MaxStepsExceeded}), nil
	}
	return e.status, nil
}

// Train runs @episodes full episodes back to back (DEFAULT_EPISODES if not positive).
// The value table is never reset, so learning accumulates across the run. Only a single
// TrainingFinished status is emitted, at the end; @progress, if non-nil, is told about
// every episode. On cancellation the partial report is returned with ctx.Err().
func (e *Engine) Train(
	ctx context.Context,
	epsilon float64,
	episodes int,
	progress ProgressFunc,
) (TrainingReport, error) {
	if episodes <= 0 {
		episodes = DEFAULT_EPISODES
	}
	report := TrainingReport{
		StepsPerEp:   make([]int, 0, episodes),
		ReturnsPerEp: make([]float64, 0, episodes),
	}

	// Per-episode statuses are kept from the sink during training.
	sink := e.sink
	e.sink = discardSink{}
	defer func() { e.sink = sink }()

	for episode := 1; episode <= episodes; episode++ {
		res, err := e.runEpisode(ctx, epsilon)
		if err != nil {
			return report, err
		}
		report.add(res)
		if progress != nil {
			progress(ctx, episode, res)
		}
	}

	e.sink = sink
	e.emit(StatusEvent{Kind: TrainingFinished})
	return report, nil
}

// runEpisode drives one episode from the start cell. Its outcome is AgentReachedGoal,
// AgentFell or MaxStepsExceeded; in every case the agent ends at the start.
func (e *Engine) runEpisode(ctx context.Context, epsilon float64) (EpisodeResult, error) {
	e.agent = e.spec.Start()
	res := EpisodeResult{}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.maxEpisodeSteps > 0 && res.Steps >= e.maxEpisodeSteps {
			e.agent = e.spec.Start()
			res.Outcome = MaxStepsExceeded
			return res, nil
		}

		ev, reward := e.performStep(epsilon)
		res.Steps++
		res.Return += reward
		if ev.Kind.IsTerminal() {
			res.Outcome = ev.Kind
			return res, nil
		}
	}
}

// performStep selects an on-grid action for the agent's cell, moves, rewards and updates the value table.
// Returns the emitted status and the reward received.
func (e *Engine) performStep(epsilon float64) (StatusEvent, float64) {
	state := e.spec.StateOf(e.agent)
	action, err := e.policy.SelectMaskedAction(state, e.spec.ValidActions(e.agent), epsilon)
	if err != nil {
		// Unreachable for grids of at least 2x2, which GridSpec guarantees.
		panic(err)
	}

	dest, _ := e.spec.ResolveMove(e.agent, action)
	reward := RewardFor(e.spec, e.penalties, dest)
	e.values.Update(state, action, reward, e.spec.StateOf(dest), e.alpha, e.gamma)

	switch reward {
	case PENALTY_REWARD:
		e.agent = e.spec.Start()
		return e.emit(StatusEvent{Kind: AgentFell}), reward
	case GOAL_REWARD:
		e.agent = e.spec.Start()
		return e.emit(StatusEvent{Kind: AgentReachedGoal}), reward
	default:
		e.agent = dest
		return e.emit(movedTo(dest)), reward
	}
}
