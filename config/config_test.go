package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live_artifact_editor/generator"
	"live_artifact_editor/patcher"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LIVE_EDITOR_ADDR", "FREESTYLE_API_KEY", "FREESTYLE_BASE_URL", "LIVE_EDITOR_REPO_URL",
		"MORPH_API_KEY", "LIVE_EDITOR_LOG_DIR", "OPENAI_API_KEY", "DEEPSEEK_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "config.yaml", `
server_addr: ":9000"
devserver:
  repo_url: https://github.com/example/game
  start_app: true
llm:
  provider: gemini
  model: gemini-2.5-flash
patch:
  mode: replace
artifact:
  component: Arcade
  canvas_width: 640
`)
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("FREESTYLE_API_KEY", "fs-key")
	t.Setenv("LIVE_EDITOR_ADDR", ":7000")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ServerAddr)
	assert.Equal(t, "fs-key", cfg.DevServer.APIKey)
	assert.True(t, cfg.DevServer.StartApp)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	// unset fields keep their defaults
	assert.Equal(t, "src/GameZone.js", cfg.Artifact.Path)
	assert.Equal(t, 400, cfg.Artifact.CanvasHeight)

	require.NoError(t, cfg.Validate(false))

	c := cfg.Constraints()
	assert.Equal(t, "Arcade", c.Component)
	assert.Equal(t, 640, c.CanvasWidth)
	assert.Equal(t, generator.FormatComponent, c.Format)
}

func TestLoad_JSONIsAccepted(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "config.json", `{"llm": {"provider": "mock"}, "patch": {"mode": "replace"}}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, string(patcher.ModeReplace), cfg.Patch.Mode)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "config.yaml", "llm: [unterminated")
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.yaml")
}

func TestValidate_ReportsEveryMissingCredential(t *testing.T) {
	cfg := Default()
	err := cfg.Validate(false)

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Problems, "devserver.api_key (or FREESTYLE_API_KEY) is required")
	assert.Contains(t, cerr.Problems, "devserver.repo_url or devserver.repo_id is required")
	assert.Contains(t, cerr.Problems, "llm.api_key is required")
	assert.Contains(t, cerr.Problems, "patch.api_key (or MORPH_API_KEY) is required in apply mode")
}

func TestValidate_Offline(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate(true))

	cfg.Artifact.Format = "svg"
	cfg.Patch.Mode = "merge"
	var cerr *ConfigurationError
	require.ErrorAs(t, cfg.Validate(true), &cerr)
	assert.Len(t, cerr.Problems, 2)
}

func TestValidate_Providers(t *testing.T) {
	cfg := Default()
	cfg.DevServer.APIKey = "k"
	cfg.DevServer.RepoID = "repo-1"
	cfg.Patch.Mode = string(patcher.ModeReplace)

	cfg.LLM = LLMConfig{Provider: "mock"}
	assert.NoError(t, cfg.Validate(false))

	cfg.LLM = LLMConfig{Provider: "deepseek", APIKey: "k"}
	assert.ErrorContains(t, cfg.Validate(false), "requires base_url")

	cfg.LLM = LLMConfig{Provider: "claude", APIKey: "k"}
	assert.ErrorContains(t, cfg.Validate(false), "llm provider claude not supported")
}

func TestValidateDevServer(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ValidateDevServer())

	cfg.DevServer.APIKey = "k"
	cfg.DevServer.RepoURL = "https://github.com/example/game"
	assert.NoError(t, cfg.ValidateDevServer())
}
