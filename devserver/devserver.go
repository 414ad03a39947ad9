// Package devserver talks to the remote dev-server provisioning service:
// repository creation, dev-server requests, and the file/process interface
// of a running dev server.
package devserver

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FileStore.ReadFile for a missing path.
var ErrNotFound = errors.New("devserver: file not found")

// FileStore is the remote file and process interface of a dev server.
type FileStore interface {
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	ListFiles(ctx context.Context, dir string) ([]string, error)
	Exec(ctx context.Context, command string, background bool) (ExecResult, error)
}

// Workspace is a connected dev server.
type Workspace interface {
	FileStore
	Info() Info
	CommitAndPush(ctx context.Context, message string) error
	Shutdown(ctx context.Context) error
}

// Provisioner creates repositories and dev servers for them.
type Provisioner interface {
	CreateRepository(ctx context.Context, src RepoSource) (Repository, error)
	RequestDevServer(ctx context.Context, repoID string) (*DevServer, error)
}

// RepoSource describes the git repository a hosted repo is cloned from.
type RepoSource struct {
	Name   string
	URL    string
	Public bool
}

type Repository struct {
	ID string `json:"repo_id"`
}

// Info carries the identifiers and URLs callers show to users.
type Info struct {
	RepoID        string `json:"repo_id"`
	EphemeralURL  string `json:"app_url"`
	CodeServerURL string `json:"vscode_url"`
	MCPURL        string `json:"mcp_url,omitempty"`
}

type ExecResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}
