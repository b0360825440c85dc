package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openpref/preflearn/internal/agent"
	"github.com/openpref/preflearn/internal/collector"
	"github.com/openpref/preflearn/internal/config"
	"github.com/openpref/preflearn/internal/envs"
	"github.com/openpref/preflearn/internal/labelapi"
	"github.com/openpref/preflearn/internal/network"
	"github.com/openpref/preflearn/internal/predictor"
	"github.com/openpref/preflearn/internal/runlog"
	"github.com/openpref/preflearn/internal/schedule"
	"github.com/openpref/preflearn/internal/segment"
	"github.com/openpref/preflearn/internal/video"
)

// #region run-cmd

func newRunCmd() *cobra.Command {
	cfg := config.DefaultRunConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train an agent against a reward predictor",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validation happens before any directory or network exists, so
			// a bad flag leaves nothing behind.
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runTraining(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.EnvID, "env", "e", "", "environment id (e.g. CartPole-v0)")
	f.StringVarP((*string)(&cfg.Predictor), "predictor", "p", string(cfg.Predictor), "reward predictor: rl, synth or human")
	f.StringVarP(&cfg.Name, "name", "n", "", "experiment name")
	f.Int64VarP(&cfg.Seed, "seed", "s", cfg.Seed, "random seed")
	f.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "parallel rollout workers")
	f.IntVarP(&cfg.NLabels, "n-labels", "l", 0, "total label budget (0 selects the unbounded schedule)")
	f.IntVarP(&cfg.PretrainLabels, "pretrain-labels", "L", 0, "labels before RL starts (default n-labels/4)")
	f.IntVarP(&cfg.NumTimesteps, "num-timesteps", "t", cfg.NumTimesteps, "environment steps to train for")
	f.StringVarP((*string)(&cfg.Agent), "agent", "a", string(cfg.Agent), "RL trainer: pg, a2c or ppo")
	f.IntVarP(&cfg.PretrainIters, "pretrain-iters", "i", cfg.PretrainIters, "predictor pretraining iterations")
	f.Float64VarP(&cfg.StartingBeta, "starting-beta", "b", cfg.StartingBeta, "initial exploration bonus")
	f.Float64VarP(&cfg.ClipLength, "clip-length", "c", cfg.ClipLength, "comparison clip length in seconds")
	f.BoolVarP(&cfg.NoVideos, "no-videos", "V", false, "disable periodic rollout captures")
	f.BoolVarP(&cfg.Restore, "restore", "R", false, "restore the predictor from its checkpoint")
	f.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "root for checkpoints and segments")
	f.StringVar(&cfg.LabelerAddr, "labeler-addr", cfg.LabelerAddr, "labeling service address for the human predictor")

	return cmd
}

// #endregion run-cmd

// #region training

func runTraining(parent context.Context, cfg config.RunConfig) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pred, store, err := buildPredictor(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	logRun := func(eventType string, detail any) {
		if store == nil {
			return
		}
		if err := runlog.LogEvent(store.DB(), runlog.Event{RunName: cfg.Name, EventType: eventType, Detail: detail}); err != nil {
			log.Printf("[RUN] run log write failed: %v", err)
		}
	}
	logRun("run_started", map[string]any{
		"env": cfg.EnvID, "predictor": cfg.Predictor, "agent": cfg.Agent,
		"timesteps": cfg.NumTimesteps, "labels": cfg.NLabels,
	})
	started := time.Now()

	cp, isComparison := pred.(*predictor.ComparisonPredictor)
	switch {
	case cfg.Restore && isComparison:
		if err := cp.LoadCheckpoint(cfg.CheckpointPath()); err != nil {
			return fmt.Errorf("restore predictor: %w", err)
		}
		log.Printf("[RUN] restored predictor from %s", cfg.CheckpointPath())
	case isComparison:
		nLabels := cfg.EffectivePretrainLabels()
		if err := cp.Pretrain(ctx, cfg.EnvID, nLabels, cfg.PretrainIters, cfg.ClipLength, cfg.Workers); err != nil {
			return fmt.Errorf("pretrain predictor: %w", err)
		}
		if err := cp.SaveCheckpoint(cfg.CheckpointPath()); err != nil {
			return fmt.Errorf("save pretrained predictor: %w", err)
		}
		logRun("pretrain_done", map[string]any{"labels": nLabels, "iters": cfg.PretrainIters})
	}

	if isComparison && !cfg.NoVideos {
		pred = video.NewSegmentRecorder(pred, cfg.EnvID, cfg.SegmentsDir(), config.Slugify(cfg.Name), 0, cfg.Seed)
	}

	tr, err := agent.ForKind(cfg.Agent, agent.DefaultTrainConfig(cfg))
	if err != nil {
		return err
	}
	trainErr := tr.Train(ctx, pred)
	if isComparison {
		if err := cp.SaveCheckpoint(cfg.CheckpointPath()); err != nil {
			log.Printf("[RUN] final checkpoint save failed: %v", err)
		} else {
			logRun("checkpoint", map[string]any{"path": cfg.CheckpointPath(), "iteration": cp.Iteration()})
		}
	}
	logRun("run_finished", map[string]any{"elapsed": time.Since(started).String(), "err": errString(trainErr)})

	if trainErr != nil && trainErr != context.Canceled {
		return trainErr
	}
	return nil
}

// buildPredictor resolves the predictor variant and its dependencies.
// The rl kind allocates nothing beyond the pass-through struct.
func buildPredictor(cfg config.RunConfig) (predictor.RewardPredictor, *segment.Store, error) {
	if cfg.Predictor == config.PredictorRL {
		pred, err := predictor.ForKind(cfg.Predictor, predictor.Config{}, nil, nil)
		return pred, nil, err
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create base dir: %w", err)
		}
		dbPath = filepath.Join(cfg.BaseDir, "teach.db")
	}
	store, err := segment.NewStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open run store: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	var coll collector.Collector
	switch cfg.Predictor {
	case config.PredictorSynth:
		coll = collector.NewSynthetic(collector.DefaultSyntheticConfig(), rng, store)
	case config.PredictorHuman:
		backend := labelapi.NewClient(cfg.LabelerAddr)
		coll = collector.NewHuman(backend, time.Second, rng, store)
	}

	var sched schedule.LabelSchedule
	if cfg.NLabels > 0 {
		sched, err = schedule.NewAnnealer(cfg.EffectivePretrainLabels(), cfg.NLabels, float64(cfg.NumTimesteps))
		if err != nil {
			store.Close()
			return nil, nil, err
		}
	} else {
		sched = schedule.NewConstantSchedule(cfg.EffectivePretrainLabels(), 0)
	}

	probe, err := envs.Make(cfg.EnvID, cfg.Seed)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	netCfg := network.DefaultConfig(probe.ObsShape(), probe.NumActions())
	netCfg.Seed = cfg.Seed

	pred, err := predictor.ForKind(cfg.Predictor, predictor.DefaultConfig(netCfg), coll, sched)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return pred, store, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// #endregion training
