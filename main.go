package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"live_artifact_editor/config"
	"live_artifact_editor/devserver"
	"live_artifact_editor/generator"
	"live_artifact_editor/patcher"
	"live_artifact_editor/pipeline"
	"live_artifact_editor/runlog"
)

var (
	configPath string
	verbose    bool

	logger   *zap.Logger
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

var rootCmd = &cobra.Command{
	Use:          "live-editor",
	Short:        "Regenerate a live React component on a hosted dev server from a game idea",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		}
		zc.Level = logLevel
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
	rootCmd.AddCommand(serveCmd, generateCmd, pushCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the config; log.level applies unless
// --verbose already raised it.
func loadConfig(offline bool) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(offline); err != nil {
		return config.Config{}, err
	}
	if !verbose && cfg.Log.Level != "" {
		if err := logLevel.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return config.Config{}, &config.ConfigurationError{Problems: []string{"log.level: " + err.Error()}}
		}
	}
	return cfg, nil
}

func buildLLM(ctx context.Context, cfg config.LLMConfig) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	}
	switch cfg.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek serves an OpenAI-compatible API; base_url is mandatory.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "gemini":
		return generator.NewGeminiLLMFromConfig(ctx, settings)
	case "mock":
		return generator.MockLLM{}, nil
	case "":
		return nil, fmt.Errorf("llm config missing; please set llm.provider/model/api_key in config")
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

func buildPatcher(cfg config.PatchConfig) (patcher.Patcher, error) {
	mode, err := patcher.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if mode == patcher.ModeReplace {
		return patcher.Replace{}, nil
	}
	return patcher.NewApplyClient(patcher.Settings{Model: cfg.Model, APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
}

// buildPipeline assembles everything but the Store. offline swaps both model
// calls for local stand-ins.
func buildPipeline(ctx context.Context, cfg config.Config, reg prometheus.Registerer, offline bool) (pipeline.Config, error) {
	llmCfg, patchCfg := cfg.LLM, cfg.Patch
	if offline {
		llmCfg = config.LLMConfig{Provider: "mock"}
		patchCfg = config.PatchConfig{Mode: string(patcher.ModeReplace)}
	}
	llm, err := buildLLM(ctx, llmCfg)
	if err != nil {
		return pipeline.Config{}, err
	}
	constraints := cfg.Constraints()
	agent, err := generator.NewAgent(llm, constraints)
	if err != nil {
		return pipeline.Config{}, err
	}
	p, err := buildPatcher(patchCfg)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Path:        cfg.Artifact.Path,
		Constraints: constraints,
		Generator:   agent,
		Patcher:     p,
		Events:      runlog.NewEventLog(cfg.Log.Dir),
		Contents:    runlog.NewContentLog(cfg.Log.Dir),
		Metrics:     pipeline.NewMetrics(reg),
		Logger:      logger,
	}, nil
}

func connectOptions(cfg config.DevServerConfig, startApp bool) devserver.ConnectOptions {
	return devserver.ConnectOptions{
		Source:   devserver.RepoSource{Name: cfg.RepoName, URL: cfg.RepoURL, Public: cfg.Public},
		RepoID:   cfg.RepoID,
		EnvFile:  cfg.EnvFile,
		StartApp: startApp,
	}
}

func connect(ctx context.Context, cfg config.DevServerConfig, startApp bool) (*devserver.DevServer, error) {
	client, err := devserver.NewClient(cfg.BaseURL, cfg.APIKey, nil)
	if err != nil {
		return nil, err
	}
	return devserver.Connect(ctx, client, connectOptions(cfg, startApp), logger)
}
