package devserver

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// ConnectOptions drives Connect.
type ConnectOptions struct {
	Source RepoSource
	// RepoID reuses an existing hosted repository instead of creating one.
	RepoID string
	// EnvFile is a local dotenv file copied to the dev server as .env.
	EnvFile  string
	StartApp bool
}

// Connect creates (or reuses) the hosted repository, requests its dev server,
// injects the env file and optionally starts the app.
func Connect(ctx context.Context, p Provisioner, opts ConnectOptions, logger *zap.Logger) (*DevServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	repoID := opts.RepoID
	if repoID == "" {
		repo, err := p.CreateRepository(ctx, opts.Source)
		if err != nil {
			return nil, err
		}
		repoID = repo.ID
		logger.Info("repository connected", zap.String("repo_id", repoID), zap.String("source", opts.Source.URL))
	}

	dev, err := p.RequestDevServer(ctx, repoID)
	if err != nil {
		return nil, err
	}
	info := dev.Info()
	logger.Info("dev server ready",
		zap.String("repo_id", repoID),
		zap.String("app_url", info.EphemeralURL),
		zap.String("vscode_url", info.CodeServerURL))

	if opts.EnvFile != "" {
		if err := injectEnv(ctx, dev, opts.EnvFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			logger.Warn("env file not found, skipping injection", zap.String("path", opts.EnvFile))
		} else {
			logger.Info("env file injected", zap.String("path", opts.EnvFile))
		}
	}

	if opts.StartApp {
		if err := StartApp(ctx, dev, logger); err != nil {
			return nil, err
		}
	}
	return dev, nil
}

func injectEnv(ctx context.Context, store FileStore, local string) error {
	content, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	return store.WriteFile(ctx, ".env", string(content))
}

// StartApp installs dependencies and starts the dev command in the background.
func StartApp(ctx context.Context, store FileStore, logger *zap.Logger) error {
	res, err := store.Exec(ctx, "npm install", false)
	if err != nil {
		return err
	}
	if res.Stderr != "" {
		logger.Debug("npm install stderr", zap.String("stderr", res.Stderr))
	}
	if _, err := store.Exec(ctx, "npm run dev", true); err != nil {
		return err
	}
	logger.Info("app started")
	return nil
}
