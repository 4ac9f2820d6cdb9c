package reinforcement

import (
	"encoding/json"
	"fmt"

	. "qgrid/grid_world"
)

// StatusKind is the semantic outcome of the most recent transition or command.
// Presentation layers localize it; the engine holds no text.
type StatusKind int

const (
	Idle StatusKind = iota
	ObstaclesPlaced
	ObstaclesCleared
	AgentMoved
	AgentFell
	AgentReachedGoal
	TrainingFinished
	LanguageSwitched
	MaxStepsExceeded
)

var statusKeys = map[StatusKind]string{
	Idle:             "idle",
	ObstaclesPlaced:  "obstacles_placed",
	ObstaclesCleared: "obstacles_cleared",
	AgentMoved:       "agent_moved",
	AgentFell:        "agent_fell",
	AgentReachedGoal: "agent_reached_goal",
	TrainingFinished: "training_finished",
	LanguageSwitched: "language_switched",
	MaxStepsExceeded: "max_steps_exceeded",
}

// String returns a stable key, used as message id by translators and as the JSON value.
func (k StatusKind) String() string {
	if key, ok := statusKeys[k]; ok {
		return key
	}
	return fmt.Sprintf("status(%d)", int(k))
}

func (k StatusKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// IsTerminal reports whether the status ends an episode.
func (k StatusKind) IsTerminal() bool {
	return k == AgentFell || k == AgentReachedGoal || k == MaxStepsExceeded
}

// StatusEvent describes the result of the most recent command.
// Position is set for AgentMoved, Language for LanguageSwitched.
type StatusEvent struct {
	Kind     StatusKind  `json:"kind"`
	Position *Coordinate `json:"position,omitempty"`
	Language string      `json:"language,omitempty"`
}

func movedTo(c Coordinate) StatusEvent {
	return StatusEvent{Kind: AgentMoved, Position: &c}
}

// StatusSink observes every status event an Engine emits.
type StatusSink interface {
	OnStatus(StatusEvent)
}

// SinkFunc adapts a function to a StatusSink.
type SinkFunc func(StatusEvent)

func (fn SinkFunc) OnStatus(ev StatusEvent) { fn(ev) }

// ChanSink forwards events to a channel without blocking the engine.
// Events are dropped when the channel is full.
type ChanSink chan<- StatusEvent

func (ch ChanSink) OnStatus(ev StatusEvent) {
	select {
	case ch <- ev:
	default:
	}
}

type discardSink struct{}

func (discardSink) OnStatus(StatusEvent) {}
