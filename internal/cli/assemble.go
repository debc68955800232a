package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/scenecut/internal/pipeline"
	"github.com/forPelevin/scenecut/internal/platform/logger"
	"github.com/forPelevin/scenecut/internal/ports/adapters/redisbus"
	"github.com/forPelevin/scenecut/internal/types"
)

func assemble(cmd *cobra.Command, jobFile string) error {
	outDir, _ := cmd.Flags().GetString("out")
	quality, _ := cmd.Flags().GetString("quality")
	orientation, _ := cmd.Flags().GetString("orientation")
	showProgress, _ := cmd.Flags().GetBool("progress")

	cfg, err := configFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	absJob, err := filepath.Abs(jobFile)
	if err != nil {
		return err
	}
	cfg.JobFile = absJob
	cfg.OutDir = outDir
	cfg.Quality = types.Quality(quality)
	cfg.Orientation = types.Orientation(orientation)
	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("scenes") {
		cfg.SceneConcurrency, _ = cmd.Flags().GetInt("scenes")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	cfg.Log = log

	if showProgress {
		job, err := pipeline.LoadJob(cfg.JobFile)
		if err != nil {
			return err
		}
		cfg.Sink = newProgressSink(cmd.ErrOrStderr(), len(job.Scenes))
	}

	// An interrupt stops new scenes; running steps finish first.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Hour)
	defer cancel()

	res, err := pipeline.Run(ctx, cfg)
	if res.JobID != "" {
		printSummary(cmd, res)
	}
	return err
}

func printSummary(cmd *cobra.Command, res types.JobResult) {
	out := cmd.OutOrStdout()
	final := "none"
	if res.FinalVideoPath != nil {
		final = *res.FinalVideoPath
	}
	fmt.Fprintf(out, "%s: %d/%d scenes succeeded, %d failed; final video: %s\n",
		res.Status, res.ScenesSucceeded, res.ScenesTotal, res.ScenesTotal-res.ScenesSucceeded, final)
	for _, s := range res.Scenes {
		if !s.Success && s.Error != nil {
			fmt.Fprintf(out, "  scene %d [%s]: %s\n", s.SceneID, s.ErrorKind, *s.Error)
		}
	}
}

func sweepCache(cmd *cobra.Command) error {
	cfg, err := configFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cmd.Flags().Changed("max-age") {
		cfg.CacheMaxAge, _ = cmd.Flags().GetDuration("max-age")
	}
	if cfg.CacheMaxAge < 0 {
		return errors.New("config: cache max age must be >= 0")
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	cfg.Log = log

	rep, err := pipeline.Sweep(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached clips (%d failed, %d partial files)\n", rep.Removed, rep.Failed, rep.PartialFiles)
	return nil
}

func watch(cmd *cobra.Command) error {
	cfg, err := configFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	cfg.Log = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	return pipeline.Watch(ctx, cfg, func(env redisbus.Envelope) {
		_ = enc.Encode(env)
	})
}

func newLogger() (*logger.Logger, error) {
	log, err := logger.New(getenvDefault("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}
