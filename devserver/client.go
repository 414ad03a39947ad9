package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.freestyle.sh"

	createRepoPath = "/git/v1/repo"
	devServerPath  = "/ephemeral/v1/dev-servers"
	readFilePath   = "/ephemeral/v1/dev-servers/files/read"
	writeFilePath  = "/ephemeral/v1/dev-servers/files/write"
	execPath       = "/ephemeral/v1/dev-servers/exec"
	commitPushPath = "/ephemeral/v1/dev-servers/git/commit-push"
	shutdownPath   = "/ephemeral/v1/dev-servers/shutdown"
)

// Client is the REST client for the provisioning service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("devserver api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: httpClient}, nil
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type createRepoReq struct {
	Name   string        `json:"name"`
	Public bool          `json:"public"`
	Source repoSourceReq `json:"source"`
}

type repoSourceReq struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type createRepoResp struct {
	RepoID string `json:"repoId"`
}

type devServerRef struct {
	RepoID string `json:"repoId"`
}

type devServerReq struct {
	DevServer devServerRef `json:"devServer"`
}

type devServerResp struct {
	EphemeralURL    string `json:"ephemeralUrl"`
	MCPEphemeralURL string `json:"mcpEphemeralUrl"`
	CodeServerURL   string `json:"codeServerUrl"`
	IsNew           bool   `json:"isNew"`
}

type readFileReq struct {
	DevServer devServerRef `json:"devServer"`
	Path      string       `json:"path"`
	Encoding  string       `json:"encoding"`
}

type readFileResp struct {
	Kind    string   `json:"kind"`
	Content string   `json:"content"`
	Files   []string `json:"files"`
}

type writeFileReq struct {
	DevServer devServerRef `json:"devServer"`
	Path      string       `json:"path"`
	Content   string       `json:"content"`
	Encoding  string       `json:"encoding"`
}

type execReq struct {
	DevServer  devServerRef `json:"devServer"`
	Command    string       `json:"command"`
	Background bool         `json:"background"`
}

type execResp struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

type commitPushReq struct {
	DevServer devServerRef `json:"devServer"`
	Message   string       `json:"message"`
}

// CreateRepository creates a hosted git repository cloned from src.URL.
func (c *Client) CreateRepository(ctx context.Context, src RepoSource) (Repository, error) {
	if src.URL == "" {
		return Repository{}, errors.New("repository source url is required")
	}
	body := createRepoReq{
		Name:   src.Name,
		Public: src.Public,
		Source: repoSourceReq{Type: "git", URL: src.URL},
	}
	var data createRepoResp
	if err := c.post(ctx, createRepoPath, body, &data); err != nil {
		return Repository{}, fmt.Errorf("create repository: %w", err)
	}
	if data.RepoID == "" {
		return Repository{}, errors.New("create repository: empty repo id")
	}
	return Repository{ID: data.RepoID}, nil
}

// RequestDevServer starts (or reuses) the dev server for repoID.
func (c *Client) RequestDevServer(ctx context.Context, repoID string) (*DevServer, error) {
	if repoID == "" {
		return nil, errors.New("repo id is required")
	}
	var data devServerResp
	if err := c.post(ctx, devServerPath, devServerReq{DevServer: devServerRef{RepoID: repoID}}, &data); err != nil {
		return nil, fmt.Errorf("request dev server: %w", err)
	}
	return &DevServer{
		client: c,
		info: Info{
			RepoID:        repoID,
			EphemeralURL:  data.EphemeralURL,
			CodeServerURL: data.CodeServerURL,
			MCPURL:        data.MCPEphemeralURL,
		},
	}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var data apiError
	if err := json.Unmarshal(raw, &data); err == nil {
		if data.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, data.Message)
		}
		if data.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, data.Error)
		}
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// DevServer is a running dev server. It implements Workspace.
type DevServer struct {
	client *Client
	info   Info
}

func (d *DevServer) Info() Info { return d.info }

func (d *DevServer) ref() devServerRef { return devServerRef{RepoID: d.info.RepoID} }

func (d *DevServer) ReadFile(ctx context.Context, path string) (string, error) {
	data, err := d.read(ctx, path)
	if err != nil {
		return "", err
	}
	if data.Kind == "directory" {
		return "", fmt.Errorf("read %s: is a directory", path)
	}
	return data.Content, nil
}

func (d *DevServer) ListFiles(ctx context.Context, dir string) ([]string, error) {
	data, err := d.read(ctx, dir)
	if err != nil {
		return nil, err
	}
	if data.Kind != "directory" {
		return nil, fmt.Errorf("list %s: not a directory", dir)
	}
	return data.Files, nil
}

func (d *DevServer) read(ctx context.Context, path string) (readFileResp, error) {
	var data readFileResp
	if err := d.client.post(ctx, readFilePath, readFileReq{DevServer: d.ref(), Path: path, Encoding: "utf-8"}, &data); err != nil {
		return data, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (d *DevServer) WriteFile(ctx context.Context, path, content string) error {
	req := writeFileReq{DevServer: d.ref(), Path: path, Content: content, Encoding: "utf-8"}
	if err := d.client.post(ctx, writeFilePath, req, nil); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (d *DevServer) Exec(ctx context.Context, command string, background bool) (ExecResult, error) {
	var data execResp
	if err := d.client.post(ctx, execPath, execReq{DevServer: d.ref(), Command: command, Background: background}, &data); err != nil {
		return ExecResult{}, fmt.Errorf("exec %q: %w", command, err)
	}
	return ExecResult{
		Stdout: strings.Join(data.Stdout, "\n"),
		Stderr: strings.Join(data.Stderr, "\n"),
	}, nil
}

func (d *DevServer) CommitAndPush(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("commit message is required")
	}
	if err := d.client.post(ctx, commitPushPath, commitPushReq{DevServer: d.ref(), Message: message}, nil); err != nil {
		return fmt.Errorf("commit and push: %w", err)
	}
	return nil
}

func (d *DevServer) Shutdown(ctx context.Context) error {
	if err := d.client.post(ctx, shutdownPath, devServerReq{DevServer: d.ref()}, nil); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
