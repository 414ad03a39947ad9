package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"live_artifact_editor/devserver"
	"live_artifact_editor/generator"
	"live_artifact_editor/pipeline"
)

var offline bool

var generateCmd = &cobra.Command{
	Use:   "generate <idea>",
	Short: "Run the pipeline once and print the written artifact",
	Long: `Generate connects to the dev server, rewrites the artifact from the idea and
prints the written file. With --offline nothing external is called: a mock model
writes into an in-memory workspace seeded with a title card.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&offline, "offline", false, "use a mock model and an in-memory workspace")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	idea := strings.Join(args, " ")
	cfg, err := loadConfig(offline)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pcfg, err := buildPipeline(ctx, cfg, prometheus.NewRegistry(), offline)
	if err != nil {
		return err
	}

	var ws devserver.Workspace
	if offline {
		ws = devserver.NewMemoryStore(map[string]string{
			cfg.Artifact.Path: generator.TitleCard(pcfg.Constraints, "Game Zone", time.Now()),
		})
	} else {
		dev, err := connect(ctx, cfg.DevServer, cfg.DevServer.StartApp)
		if err != nil {
			return err
		}
		ws = dev
	}
	pcfg.Store = ws

	ctrl, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}
	out, err := ctrl.Run(ctx, idea)
	if err != nil {
		return err
	}
	info := ws.Info()
	logger.Info("artifact written",
		zap.String("run_id", out.Run.ID),
		zap.String("path", cfg.Artifact.Path),
		zap.Int("bytes", out.Bytes),
		zap.Duration("elapsed", out.Elapsed),
		zap.String("app_url", info.EphemeralURL))
	fmt.Fprintln(cmd.OutOrStdout(), out.Run.Written)
	return nil
}
