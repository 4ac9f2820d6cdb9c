/*
Qgrid trains a tabular Q-learning agent to cross a small grid world from the top-left
cell to the bottom-right goal while avoiding penalty cells. It runs either headless,
training and then printing the learned policy, or as a server whose JSON api and
websocket drive the same engine interactively: single steps, whole episodes, bulk
training, obstacle placement and status text in English or Russian.

Process settings come from flags, then QGRID_* environment variables (a .env file
is loaded if present), then defaults. Learning settings come from the yaml config.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"qgrid/reinforcement"
	"qgrid/report"
	"qgrid/server"
	"qgrid/status_text"

	"github.com/joho/godotenv"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	ENV_PREFIX     = "QGRID"
	DEFAULT_ADDR   = ":8080"
	DEFAULT_CONFIG = "./config.yaml"
	progressPeriod = 2 * time.Second
)

// settings binds flags and environment variables, e.g. QGRID_ADDR for --addr.
var settings = viper.New()

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[APP] [INFO] .env file not found or could not be loaded: %v", err)
	}
	settings.SetEnvPrefix(ENV_PREFIX)
	settings.AutomaticEnv()
	settings.SetDefault("addr", DEFAULT_ADDR)
	settings.SetDefault("config", DEFAULT_CONFIG)
	settings.SetDefault("lang", "")
	settings.SetDefault("color", true)
}

// loadConfig reads the yaml config; a missing default config falls back to built-in values.
func loadConfig() (*reinforcement.TrainingConfig, error) {
	path := settings.GetString("config")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == DEFAULT_CONFIG {
		log.Printf("[APP] [INFO] %s not found, using defaults", path)
		return reinforcement.DefaultTrainingConfig(), nil
	}
	return reinforcement.FromYaml(path)
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "qgrid",
		Short:         "Tabular Q-learning on a grid world",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", DEFAULT_CONFIG, "path to the yaml learning config")
	_ = settings.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	root.PersistentFlags().String("lang", "", "status text language, en or ru")
	_ = settings.BindPFlag("lang", root.PersistentFlags().Lookup("lang"))

	root.AddCommand(trainCommand(), serveCommand())
	return root
}

func trainCommand() *cobra.Command {
	var (
		episodes int
		epsilon  float64
		seed     int64
		shuffle  bool
		chart    string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train headless, then print the grid, policy and values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("episodes") {
				cfg.SetHyperParam(reinforcement.EPISODES, float64(episodes))
			}
			if cmd.Flags().Changed("epsilon") {
				cfg.SetHyperParam(reinforcement.EPSILON_TRAIN, epsilon)
			}
			if cmd.Flags().Changed("seed") {
				cfg.SetHyperParam(reinforcement.SEED, float64(seed))
			}
			if err = cfg.Validate(); err != nil {
				return err
			}
			return runTraining(cmd.Context(), cfg, shuffle, chart)
		},
	}
	cmd.Flags().IntVar(&episodes, "episodes", reinforcement.DEFAULT_EPISODES, "number of training episodes")
	cmd.Flags().Float64Var(&epsilon, "epsilon", reinforcement.DEFAULT_EPSILON_TRAIN, "exploration rate")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed, 0 seeds from the clock")
	cmd.Flags().BoolVar(&shuffle, "shuffle", false, "place random obstacles before training")
	cmd.Flags().StringVar(&chart, "chart", "", "write an html chart of the run to this path")
	cmd.Flags().Bool("color", true, "colored console output")
	_ = settings.BindPFlag("color", cmd.Flags().Lookup("color"))
	return cmd
}

func runTraining(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	shuffle bool,
	chart string,
) error {
	engine, err := reinforcement.NewEngineFromConfig(cfg)
	if err != nil {
		return err
	}
	if shuffle {
		engine.RegeneratePenalties()
	}

	con := report.NewConsole(os.Stdout, settings.GetBool("color"))
	con.ShowGrid(engine)
	if !engine.GoalReachable() {
		translator, err := status_text.NewTranslator(settings.GetString("lang"))
		if err != nil {
			return err
		}
		log.Printf("[APP] [WARN] %s", translator.Message(status_text.GOAL_UNREACHABLE))
	}

	trainingCtx, cancel, err := cfg.WithTrainingDeadline(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	var done atomic.Int64
	go func() {
		for range channerics.NewTicker(trainingCtx.Done(), progressPeriod) {
			log.Printf("[APP] [INFO] %d/%d episodes", done.Load(), cfg.Episodes())
		}
	}()

	start := time.Now()
	result, err := engine.Train(
		trainingCtx,
		cfg.EpsilonTrain(),
		cfg.Episodes(),
		func(_ context.Context, episode int, _ reinforcement.EpisodeResult) {
			done.Store(int64(episode))
		})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err != nil {
		log.Printf("[APP] [INFO] training stopped early: %v", err)
	}
	log.Printf("[APP] [INFO] trained %d episodes in %v", result.Episodes, time.Since(start))

	con.ShowPolicy(engine)
	con.ShowMaxValues(engine)
	con.ShowTrainingSummary(result)

	if chart != "" && result.Episodes > 0 {
		f, err := os.Create(chart)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.WriteTrainingChart(f, result); err != nil {
			return fmt.Errorf("chart: %w", err)
		}
		log.Printf("[APP] [INFO] wrote %s", chart)
	}
	return nil
}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interactive json and websocket api",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			session, err := server.NewSession(cfg, settings.GetString("lang"))
			if err != nil {
				return err
			}
			return server.NewServer(settings.GetString("addr"), session).Serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", DEFAULT_ADDR, "listen address")
	_ = settings.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}
