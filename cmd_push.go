package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"live_artifact_editor/config"
	"live_artifact_editor/devserver"
)

var (
	pushRoot  string
	pushWatch bool
)

var pushCmd = &cobra.Command{
	Use:   "push [patterns...]",
	Short: "Upload local files matching glob patterns to the dev server",
	Long: `Push uploads every file under --root matching the doublestar patterns
(default "src/**/*.js") to the connected dev server. With --watch it keeps
running and re-uploads files as they change.`,
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushRoot, "root", ".", "local directory patterns are relative to")
	pushCmd.Flags().BoolVarP(&pushWatch, "watch", "w", false, "re-push on change until interrupted")
}

func runPush(cmd *cobra.Command, args []string) error {
	patterns := args
	if len(patterns) == 0 {
		patterns = []string{"src/**/*.js"}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDevServer(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dev, err := connect(ctx, cfg.DevServer, false)
	if err != nil {
		return err
	}
	syncer, err := devserver.NewSyncer(devserver.SyncConfig{
		Root:     pushRoot,
		Patterns: patterns,
		Store:    dev,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	pushed, err := syncer.Push(ctx)
	if err != nil {
		return err
	}
	for _, p := range pushed {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	logger.Info("push done", zap.Int("files", len(pushed)), zap.String("app_url", dev.Info().EphemeralURL))
	if !pushWatch {
		return nil
	}
	return syncer.Watch(ctx)
}
