package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	. "qgrid/grid_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// CONFIG_KIND is the only supported value of the config file's outer 'kind' key.
const CONFIG_KIND = "qlearning"

// Hyper-parameter keys and their defaults. The epsilon defaults are the
// exploration rates of the step, episode and train commands respectively.
const (
	ALPHA             = "alpha"
	GAMMA             = "gamma"
	EPSILON_STEP      = "epsilonStep"
	EPSILON_EPISODE   = "epsilonEpisode"
	EPSILON_TRAIN     = "epsilonTrain"
	EPISODES          = "episodes"
	MAX_EPISODE_STEPS = "maxEpisodeSteps"
	SEED              = "seed"
	PROGRESS_INTERVAL = "progressInterval"

	DEFAULT_EPSILON_STEP      = 0.15
	DEFAULT_EPSILON_EPISODE   = 0.5
	DEFAULT_EPSILON_TRAIN     = 0.65
	DEFAULT_EPISODES          = 1000
	DEFAULT_MAX_EPISODE_STEPS = 10000
	DEFAULT_PROGRESS_INTERVAL = 100
)

// Obstacle draw-count formulas, selected by grid.drawCount.
const (
	DRAW_COUNT_THIRD = "third"
	DRAW_COUNT_FIXED = "fixed"
)

var (
	ErrUnsupportedKind = errors.New("unsupported config kind")
	ErrInvalidConfig   = errors.New("invalid config")
)

type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig encodes the grid and learning parameters outside of code.
// Keys are lowercase because viper folds all keys to lowercase before the
// definition is re-decoded here.
type TrainingConfig struct {
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	Grid        GridConfig       `yaml:"grid"`
	// TrainingDeadline is a fixed duration after which bulk training is cancelled.
	TrainingDeadline map[string]string `yaml:"trainingdeadline"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

type GridConfig struct {
	Size int `yaml:"size"`
	// DrawCount selects the obstacle formula: "third" draws floor(N²/3)+1 cells, "fixed" draws FixedDraws cells.
	DrawCount  string `yaml:"drawcount"`
	FixedDraws int    `yaml:"fixeddraws"`
}

// DefaultTrainingConfig returns the built-in configuration: a 5x5 grid and default hyper-parameters.
func DefaultTrainingConfig() *TrainingConfig {
	return &TrainingConfig{
		Grid: GridConfig{
			Size:      DEFAULT_SIZE,
			DrawCount: DRAW_COUNT_THIRD,
		},
	}
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// SetHyperParam overrides or adds a hyper-parameter, e.g. from a command line flag.
func (cfg *TrainingConfig) SetHyperParam(param string, val float64) {
	for i := range cfg.HyperParams {
		if cfg.HyperParams[i].Key == param {
			cfg.HyperParams[i].Val = val
			return
		}
	}
	cfg.HyperParams = append(cfg.HyperParams, HyperParameter{Key: param, Val: val})
}

func (cfg *TrainingConfig) Alpha() float64 { return cfg.GetHyperParamOrDefault(ALPHA, DEFAULT_ALPHA) }
func (cfg *TrainingConfig) Gamma() float64 { return cfg.GetHyperParamOrDefault(GAMMA, DEFAULT_GAMMA) }

func (cfg *TrainingConfig) EpsilonStep() float64 {
	return cfg.GetHyperParamOrDefault(EPSILON_STEP, DEFAULT_EPSILON_STEP)
}

func (cfg *TrainingConfig) EpsilonEpisode() float64 {
	return cfg.GetHyperParamOrDefault(EPSILON_EPISODE, DEFAULT_EPSILON_EPISODE)
}

func (cfg *TrainingConfig) EpsilonTrain() float64 {
	return cfg.GetHyperParamOrDefault(EPSILON_TRAIN, DEFAULT_EPSILON_TRAIN)
}

func (cfg *TrainingConfig) Episodes() int {
	return int(cfg.GetHyperParamOrDefault(EPISODES, DEFAULT_EPISODES))
}

// MaxEpisodeSteps is the per-episode step ceiling; zero disables it.
func (cfg *TrainingConfig) MaxEpisodeSteps() int {
	return int(cfg.GetHyperParamOrDefault(MAX_EPISODE_STEPS, DEFAULT_MAX_EPISODE_STEPS))
}

// Seed for the engine's random source; zero means seed from the clock.
func (cfg *TrainingConfig) Seed() int64 {
	return int64(cfg.GetHyperParamOrDefault(SEED, 0))
}

// ProgressInterval is how many training episodes pass between progress reports to views.
func (cfg *TrainingConfig) ProgressInterval() int {
	return int(cfg.GetHyperParamOrDefault(PROGRESS_INTERVAL, DEFAULT_PROGRESS_INTERVAL))
}

// DrawCountFunc returns the obstacle draw-count formula selected by the grid config.
func (cfg *TrainingConfig) DrawCountFunc() DrawCountFunc {
	if cfg.Grid.DrawCount == DRAW_COUNT_FIXED {
		return FixedDraws(cfg.Grid.FixedDraws)
	}
	return ThirdOfCells
}

// Validate checks ranges; it does not fill in defaults.
func (cfg *TrainingConfig) Validate() error {
	if cfg.Grid.Size < 2 {
		return fmt.Errorf("%w: grid size %d, must be at least 2", ErrInvalidConfig, cfg.Grid.Size)
	}
	switch cfg.Grid.DrawCount {
	case "", DRAW_COUNT_THIRD:
	case DRAW_COUNT_FIXED:
		if cfg.Grid.FixedDraws < 1 {
			return fmt.Errorf("%w: fixed draws %d, must be at least 1", ErrInvalidConfig, cfg.Grid.FixedDraws)
		}
	default:
		return fmt.Errorf("%w: unknown draw count formula %q", ErrInvalidConfig, cfg.Grid.DrawCount)
	}
	for _, param := range []string{ALPHA, GAMMA, EPSILON_STEP, EPSILON_EPISODE, EPSILON_TRAIN} {
		if val := cfg.GetHyperParamOrDefault(param, 0); val < 0 || val > 1 {
			return fmt.Errorf("%w: %s=%v, must be in [0,1]", ErrInvalidConfig, param, val)
		}
	}
	if cfg.Episodes() < 0 || cfg.MaxEpisodeSteps() < 0 {
		return fmt.Errorf("%w: episodes and maxEpisodeSteps must not be negative", ErrInvalidConfig)
	}
	if _, _, err := cfg.WithTrainingDeadline(context.Background()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, err
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a config file of the form:
//
//	kind: qlearning
//	def:
//	  grid: {size: 5, drawCount: third}
//	  hyperParams:
//	    - {key: alpha, val: 0.98}
//
// Values missing from the file keep the defaults of DefaultTrainingConfig.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if outerConfig.Kind != "" && outerConfig.Kind != CONFIG_KIND {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, outerConfig.Kind)
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := DefaultTrainingConfig()
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, err
	}
	if err = innerConfig.Validate(); err != nil {
		return nil, err
	}

	return innerConfig, nil
}
