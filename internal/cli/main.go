package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "scenecut",
		Short:        "Assemble narrated scenes into one video from stock footage",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.AddCommand(newAssembleCmd(), newCacheCmd(), newWatchCmd())
	return root
}

func newAssembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assemble <job.yaml>",
		Short: "Find, cut and mux footage for every scene of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return assemble(cmd, args[0])
		},
	}

	// Visible flags
	cmd.Flags().String("out", "out", "Output directory")
	cmd.Flags().String("quality", "", "Output quality: 480p, 720p or 1080p (default from job, else 720p)")
	cmd.Flags().String("orientation", "", "landscape or portrait (default from job)")
	cmd.Flags().Bool("progress", true, "Render a progress bar")

	// Hidden tuning flags (internal)
	cmd.Flags().Int("workers", 0, "Concurrent ffmpeg processes")
	cmd.Flags().Int("scenes", 0, "Scenes processed concurrently")
	_ = cmd.Flags().MarkHidden("workers")
	_ = cmd.Flags().MarkHidden("scenes")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the footage download cache",
	}
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete cached clips older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sweepCache(cmd)
		},
	}
	sweep.Flags().Duration("max-age", 0, "Maximum age of a cached clip (default SCENECUT_CACHE_MAX_AGE or 24h)")
	cmd.AddCommand(sweep)
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print job events published on the redis channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return watch(cmd)
		},
	}
}
