package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	. "qgrid/grid_world"
	"qgrid/reinforcement"
	"qgrid/server/fastview"
	"qgrid/status_text"

	"github.com/google/uuid"
)

var (
	ErrTrainingInProgress = errors.New("training in progress")
	ErrNoTraining         = errors.New("no training in progress")
)

// Job describes a bulk training run.
type Job struct {
	ID       uuid.UUID `json:"id"`
	Episodes int       `json:"episodes"`
	Epsilon  float64   `json:"epsilon"`
	Started  time.Time `json:"started"`
	// Progress is the number of completed episodes.
	Progress int `json:"progress"`
}

// Snapshot is the complete observable state of a session, published after every
// command and periodically during training.
type Snapshot struct {
	Size          int                       `json:"size"`
	Agent         Coordinate                `json:"agent"`
	Goal          Coordinate                `json:"goal"`
	Penalties     []Coordinate              `json:"penalties"`
	Status        reinforcement.StatusEvent `json:"status"`
	StatusText    string                    `json:"statusText"`
	Language      string                    `json:"language"`
	GoalReachable bool                      `json:"goalReachable"`
	Values        []float64                 `json:"values"`
	Job           *Job                      `json:"job,omitempty"`
}

// command runs on the session goroutine, which owns the engine.
type command struct {
	run   func(*reinforcement.Engine) (reinforcement.StatusEvent, error)
	reply chan result
}

type result struct {
	status reinforcement.StatusEvent
	err    error
}

// Session serializes all engine commands onto one goroutine; the engine itself has no locks.
// Snapshots are published to the hub, which the http and websocket handlers read.
type Session struct {
	engine     *reinforcement.Engine
	cfg        *reinforcement.TrainingConfig
	translator *status_text.Translator
	hub        *fastview.Hub[Snapshot]

	commands chan command
	events   chan reinforcement.StatusEvent

	// Orders snapshot publication between the session goroutine and handlers.
	pubMu sync.Mutex

	// Guards job, which the handlers read and the session goroutine clears.
	mu     sync.Mutex
	job    *Job
	cancel context.CancelFunc
}

// NewSession builds the engine from @cfg. The language may be empty for the default.
func NewSession(cfg *reinforcement.TrainingConfig, lang string) (*Session, error) {
	translator, err := status_text.NewTranslator(lang)
	if err != nil {
		return nil, err
	}

	events := make(chan reinforcement.StatusEvent, 64)
	engine, err := reinforcement.NewEngineFromConfig(cfg, reinforcement.WithSink(reinforcement.ChanSink(events)))
	if err != nil {
		return nil, err
	}

	sess := &Session{
		engine:     engine,
		cfg:        cfg,
		translator: translator,
		hub:        fastview.NewHub[Snapshot](),
		commands:   make(chan command),
		events:     events,
	}
	sess.publish()
	return sess, nil
}

func (sess *Session) Hub() *fastview.Hub[Snapshot] { return sess.hub }

func (sess *Session) Config() *reinforcement.TrainingConfig { return sess.cfg }

// Snapshot returns the latest published snapshot.
func (sess *Session) Snapshot() Snapshot {
	snap, _ := sess.hub.Latest()
	return snap
}

// Values samples the value table directly. This is safe during training since
// table cells are atomic; values may be mid-update relative to each other.
func (sess *Session) Values() [][]float64 {
	values := sess.engine.Values()
	rows := make([][]float64, values.NumStates())
	for state := range rows {
		rows[state] = values.Row(state)
	}
	return rows
}

// Run processes commands until @ctx is done. It must be running for any command to complete.
func (sess *Session) Run(ctx context.Context) error {
	go sess.logEvents(ctx)
	go func() {
		<-ctx.Done()
		_, _ = sess.CancelTraining()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-sess.commands:
			status, err := cmd.run(sess.engine)
			sess.publish()
			if cmd.reply != nil {
				cmd.reply <- result{status: status, err: err}
			}
		}
	}
}

// eventLog logs status text published to it.
type eventLog struct{}

func (eventLog) Publish(text string) {
	if text != "" {
		log.Printf("[SESSION] [INFO] %s", text)
	}
}

// logEvents logs terminal and obstacle events; moves are too frequent to be useful in a log.
func (sess *Session) logEvents(ctx context.Context) {
	toText := func(ev reinforcement.StatusEvent) string {
		if ev.Kind == reinforcement.AgentMoved {
			return ""
		}
		return sess.translator.Text(ev)
	}
	fastview.Feed[reinforcement.StatusEvent, string](ctx, sess.events, toText, eventLog{})
}

func (sess *Session) publish() {
	sess.pubMu.Lock()
	defer sess.pubMu.Unlock()

	status := sess.engine.Status()
	reachable := sess.engine.GoalReachable()
	snap := Snapshot{
		Size:          sess.engine.Spec().Size(),
		Agent:         sess.engine.Agent(),
		Goal:          sess.engine.Goal(),
		Penalties:     sess.engine.Penalties(),
		Status:        status,
		StatusText:    sess.statusText(status, reachable),
		Language:      sess.translator.Language(),
		GoalReachable: reachable,
		Values:        sess.engine.Values().StateValues(),
		Job:           sess.Job(),
	}
	sess.hub.Publish(snap)
}

// statusText renders @status, followed by a warning when the goal is walled off.
func (sess *Session) statusText(status reinforcement.StatusEvent, reachable bool) string {
	text := sess.translator.Text(status)
	if !reachable {
		text += ". " + sess.translator.Message(status_text.GOAL_UNREACHABLE)
	}
	return text
}

// Job returns a copy of the running training job, or nil.
func (sess *Session) Job() *Job {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.job == nil {
		return nil
	}
	job := *sess.job
	return &job
}

func (sess *Session) training() bool {
	return sess.Job() != nil
}

// do runs @fn on the session goroutine and waits for its result.
func (sess *Session) do(
	ctx context.Context,
	fn func(*reinforcement.Engine) (reinforcement.StatusEvent, error),
) (reinforcement.StatusEvent, error) {
	if sess.training() {
		return reinforcement.StatusEvent{}, ErrTrainingInProgress
	}
	cmd := command{run: fn, reply: make(chan result, 1)}
	select {
	case <-ctx.Done():
		return reinforcement.StatusEvent{}, ctx.Err()
	case sess.commands <- cmd:
	}
	select {
	case <-ctx.Done():
		return reinforcement.StatusEvent{}, ctx.Err()
	case res := <-cmd.reply:
		return res.status, res.err
	}
}

func (sess *Session) Step(ctx context.Context, epsilon float64) (reinforcement.StatusEvent, error) {
	return sess.do(ctx, func(e *reinforcement.Engine) (reinforcement.StatusEvent, error) {
		return e.Step(epsilon), nil
	})
}

// Episode runs one full episode, which ends early if @ctx is cancelled.
func (sess *Session) Episode(ctx context.Context, epsilon float64) (reinforcement.StatusEvent, error) {
	return sess.do(ctx, func(e *reinforcement.Engine) (reinforcement.StatusEvent, error) {
		return e.Episode(ctx, epsilon)
	})
}

func (sess *Session) ShufflePenalties(ctx context.Context) (reinforcement.StatusEvent, error) {
	return sess.do(ctx, func(e *reinforcement.Engine) (reinforcement.StatusEvent, error) {
		return e.RegeneratePenalties(), nil
	})
}

func (sess *Session) ClearPenalties(ctx context.Context) (reinforcement.StatusEvent, error) {
	return sess.do(ctx, func(e *reinforcement.Engine) (reinforcement.StatusEvent, error) {
		return e.ClearPenalties(), nil
	})
}

func (sess *Session) TogglePenalty(ctx context.Context, c Coordinate) (reinforcement.StatusEvent, error) {
	return sess.do(ctx, func(e *reinforcement.Engine) (reinforcement.StatusEvent, error) {
		return e.Status(), e.TogglePenaltyCell(c)
	})
}

// SetLanguage switches the status text language. It is allowed during training.
func (sess *Session) SetLanguage(ctx context.Context, lang string) (reinforcement.StatusEvent, error) {
	if err := sess.translator.SetLanguage(lang); err != nil {
		return reinforcement.StatusEvent{}, err
	}
	return sess.languageSwitched(ctx)
}

// ToggleLanguage flips between English and Russian.
func (sess *Session) ToggleLanguage(ctx context.Context) (reinforcement.StatusEvent, error) {
	sess.translator.Toggle()
	return sess.languageSwitched(ctx)
}

func (sess *Session) languageSwitched(ctx context.Context) (reinforcement.StatusEvent, error) {
	lang := sess.translator.Language()
	if sess.training() {
		sess.publishAsync()
		return reinforcement.StatusEvent{Kind: reinforcement.LanguageSwitched, Language: lang}, nil
	}
	return sess.do(ctx, func(e *reinforcement.Engine) (reinforcement.StatusEvent, error) {
		return e.SignalLanguageSwitched(lang), nil
	})
}

// publishAsync republishes the latest snapshot with refreshed text, without touching the engine.
func (sess *Session) publishAsync() {
	sess.pubMu.Lock()
	defer sess.pubMu.Unlock()

	snap, ok := sess.hub.Latest()
	if !ok {
		return
	}
	snap.StatusText = sess.statusText(snap.Status, snap.GoalReachable)
	snap.Language = sess.translator.Language()
	sess.hub.Publish(snap)
}

// StartTraining queues a training run of @episodes and returns immediately with the job.
// Only one run may be in progress. The run is bounded by the config's training deadline.
func (sess *Session) StartTraining(epsilon float64, episodes int) (*Job, error) {
	if episodes <= 0 {
		episodes = sess.cfg.Episodes()
	}
	jobCtx, cancel, err := sess.cfg.WithTrainingDeadline(context.Background())
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.job != nil {
		sess.mu.Unlock()
		cancel()
		return nil, ErrTrainingInProgress
	}
	job := &Job{
		ID:       uuid.New(),
		Episodes: episodes,
		Epsilon:  epsilon,
		Started:  time.Now(),
	}
	sess.job = job
	sess.cancel = cancel
	started := *job
	sess.mu.Unlock()

	interval := sess.cfg.ProgressInterval()
	progress := func(_ context.Context, episode int, _ reinforcement.EpisodeResult) {
		sess.mu.Lock()
		job.Progress = episode
		sess.mu.Unlock()
		if interval > 0 && episode%interval == 0 {
			sess.publish()
		}
	}

	train := command{run: func(e *reinforcement.Engine) (reinforcement.StatusEvent, error) {
		defer sess.finishTraining(job.ID)
		report, err := e.Train(jobCtx, epsilon, episodes, progress)
		log.Printf("[SESSION] [INFO] job %s: %d episodes, %d goals, %d falls, %d exceeded",
			job.ID, report.Episodes, report.Goals, report.Falls, report.Exceeded)
		if err != nil {
			log.Printf("[SESSION] [INFO] job %s stopped: %v", job.ID, err)
		}
		return e.Status(), err
	}}

	go func() {
		select {
		case sess.commands <- train:
		case <-jobCtx.Done():
			sess.finishTraining(job.ID)
		}
	}()

	return &started, nil
}

// CancelTraining cancels the running job, if any, and returns its id.
func (sess *Session) CancelTraining() (uuid.UUID, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.job == nil {
		return uuid.Nil, ErrNoTraining
	}
	sess.cancel()
	return sess.job.ID, nil
}

func (sess *Session) finishTraining(id uuid.UUID) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.job != nil && sess.job.ID == id {
		sess.cancel()
		sess.job = nil
		sess.cancel = nil
	}
}
