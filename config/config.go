// Package config loads the service configuration from a YAML (or JSON) file,
// a local .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"live_artifact_editor/generator"
	"live_artifact_editor/patcher"
)

// Config is the whole service configuration.
type Config struct {
	ServerAddr string          `yaml:"server_addr,omitempty"`
	DevServer  DevServerConfig `yaml:"devserver"`
	LLM        LLMConfig       `yaml:"llm"`
	Patch      PatchConfig     `yaml:"patch"`
	Artifact   ArtifactConfig  `yaml:"artifact"`
	Log        LogConfig       `yaml:"log"`
}

// DevServerConfig locates the hosted repository. RepoID, when set, reuses an
// existing repository instead of creating one from RepoURL.
type DevServerConfig struct {
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	RepoName string `yaml:"repo_name,omitempty"`
	RepoURL  string `yaml:"repo_url,omitempty"`
	RepoID   string `yaml:"repo_id,omitempty"`
	Public   bool   `yaml:"public,omitempty"`
	EnvFile  string `yaml:"env_file,omitempty"`
	StartApp bool   `yaml:"start_app,omitempty"`
}

type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

type PatchConfig struct {
	Mode    string `yaml:"mode,omitempty"`
	Model   string `yaml:"model,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type ArtifactConfig struct {
	Path         string `yaml:"path,omitempty"`
	Component    string `yaml:"component,omitempty"`
	Prop         string `yaml:"prop,omitempty"`
	Format       string `yaml:"format,omitempty"`
	CanvasWidth  int    `yaml:"canvas_width,omitempty"`
	CanvasHeight int    `yaml:"canvas_height,omitempty"`
	AllowDeps    bool   `yaml:"allow_deps,omitempty"`
}

type LogConfig struct {
	Dir   string `yaml:"dir,omitempty"`
	Level string `yaml:"level,omitempty"`
}

// ConfigurationError reports missing or invalid startup configuration. The
// process must not start when one is returned.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// Default returns the configuration used when the file leaves fields empty.
func Default() Config {
	return Config{
		ServerAddr: ":8080",
		DevServer: DevServerConfig{
			RepoName: "live-artifact",
			Public:   true,
			EnvFile:  ".env",
		},
		LLM:   LLMConfig{Provider: "openai", Model: "gpt-4o"},
		Patch: PatchConfig{Mode: string(patcher.ModeApply)},
		Artifact: ArtifactConfig{
			Path:         "src/GameZone.js",
			Component:    "GameZone",
			Prop:         "currentGame",
			Format:       string(generator.FormatComponent),
			CanvasWidth:  400,
			CanvasHeight: 400,
		},
		Log: LogConfig{Dir: ".", Level: "info"},
	}
}

// Load reads .env (if present) next to the working directory, then the
// config file (if present), then applies environment overrides. It does not
// validate; call Validate before starting.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setIf(&cfg.ServerAddr, "LIVE_EDITOR_ADDR")
	setIf(&cfg.DevServer.APIKey, "FREESTYLE_API_KEY")
	setIf(&cfg.DevServer.BaseURL, "FREESTYLE_BASE_URL")
	setIf(&cfg.DevServer.RepoURL, "LIVE_EDITOR_REPO_URL")
	setIf(&cfg.Patch.APIKey, "MORPH_API_KEY")
	setIf(&cfg.Log.Dir, "LIVE_EDITOR_LOG_DIR")

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "deepseek":
			cfg.LLM.APIKey = os.Getenv("DEEPSEEK_API_KEY")
		case "gemini":
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

func setIf(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// Validate checks what the service needs to run. offline skips the remote
// credentials because no external service is called.
func (c Config) Validate(offline bool) error {
	var problems []string
	if c.Artifact.Path == "" {
		problems = append(problems, "artifact.path is required")
	}
	if _, err := generator.ParseFormat(c.Artifact.Format); err != nil {
		problems = append(problems, err.Error())
	}
	mode, err := patcher.ParseMode(c.Patch.Mode)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if !offline {
		problems = append(problems, c.DevServer.problems()...)
		switch c.LLM.Provider {
		case "openai", "gemini":
		case "deepseek":
			if c.LLM.BaseURL == "" {
				problems = append(problems, "llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
			}
		case "mock":
		case "":
			problems = append(problems, "llm.provider is required")
		default:
			problems = append(problems, fmt.Sprintf("llm provider %s not supported", c.LLM.Provider))
		}
		if c.LLM.Provider != "mock" && c.LLM.APIKey == "" {
			problems = append(problems, "llm.api_key is required")
		}
		if mode == patcher.ModeApply && c.Patch.APIKey == "" {
			problems = append(problems, "patch.api_key (or MORPH_API_KEY) is required in apply mode")
		}
	}
	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// ValidateDevServer checks only what connecting to the dev server needs.
func (c Config) ValidateDevServer() error {
	if problems := c.DevServer.problems(); len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func (d DevServerConfig) problems() []string {
	var problems []string
	if d.APIKey == "" {
		problems = append(problems, "devserver.api_key (or FREESTYLE_API_KEY) is required")
	}
	if d.RepoURL == "" && d.RepoID == "" {
		problems = append(problems, "devserver.repo_url or devserver.repo_id is required")
	}
	return problems
}

// Constraints converts the artifact section into generator constraints.
func (c Config) Constraints() generator.Constraints {
	format, _ := generator.ParseFormat(c.Artifact.Format)
	return generator.Constraints{
		Component:    c.Artifact.Component,
		Prop:         c.Artifact.Prop,
		CanvasWidth:  c.Artifact.CanvasWidth,
		CanvasHeight: c.Artifact.CanvasHeight,
		AllowDeps:    c.Artifact.AllowDeps,
		Format:       format,
	}
}
