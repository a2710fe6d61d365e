package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// restClient implements the shared portion of the Provider contract against
// a vendor's JSON/HTTP API. The concrete providers embed it and override the
// operations where their capabilities diverge.
type restClient struct {
	name    string
	ptype   string
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
	handles HandleCache
}

func newRESTClient(name, ptype, baseURL, apiKey string, handles HandleCache, log *zap.Logger) *restClient {
	if log == nil {
		log = zap.NewNop()
	}
	if handles == nil {
		handles = NewMemoryHandleCache()
	}
	return &restClient{
		name:    name,
		ptype:   ptype,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     log,
		handles: handles,
	}
}

func (c *restClient) Name() string      { return c.name }
func (c *restClient) Type() string      { return c.ptype }
func (c *restClient) IsAvailable() bool { return c.apiKey != "" && c.baseURL != "" }

// apiError carries a vendor response that wasn't 2xx.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("vendor API %d: %s", e.Status, e.Body)
}

// doJSON performs one JSON request. A 404 maps to ErrWorkspaceNotFound; any
// other non-2xx status becomes an *apiError for the caller to classify.
func (c *restClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrWorkspaceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// workspacePayload is the vendor wire shape for a workspace.
type workspacePayload struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	PreviewURL string            `json:"preview_url"`
	Metadata   map[string]string `json:"metadata"`
}

func (c *restClient) toWorkspace(p *workspacePayload) *Workspace {
	ws := &Workspace{
		ID:           p.ID,
		Status:       WorkspaceStatus(p.Status),
		PreviewURL:   p.PreviewURL,
		ProviderType: c.ptype,
		Metadata:     p.Metadata,
	}
	if ctxID, ok := c.handles.Get(p.ID); ok {
		ws.ContextID = ctxID
	}
	return ws
}

func (c *restClient) CreateWorkspace(ctx context.Context, opts CreateOptions) (*Workspace, error) {
	req := map[string]any{
		"repo_url":  opts.RepoURL,
		"branch":    opts.Branch,
		"git_token": opts.GitToken,
		"env":       opts.EnvVars,
	}
	if opts.Timeout > 0 {
		req["timeout_seconds"] = int(opts.Timeout.Seconds())
	}

	var p workspacePayload
	if err := c.doJSON(ctx, http.MethodPost, "/v1/workspaces", req, &p); err != nil {
		return nil, &ProvisioningError{Provider: c.name, Stage: "create", Err: err}
	}

	// The vendor clones the repository during create; dependency bootstrap is
	// a separate step so a broken install doesn't leave a half-built
	// workspace billing away. Tear down before reporting failure.
	bootstrap := "if [ -f package.json ]; then npm install --no-audit --no-fund; fi"
	res, err := c.ExecuteCommand(ctx, p.ID, bootstrap, ExecOptions{Timeout: opts.Timeout})
	if err == nil && res.ExitCode != 0 {
		err = fmt.Errorf("bootstrap exited %d: %s", res.ExitCode, res.Stderr)
	}
	if err != nil {
		if derr := c.DeleteWorkspace(ctx, p.ID); derr != nil {
			c.log.Warn("teardown after failed bootstrap",
				zap.String("provider", c.name),
				zap.String("workspace", p.ID),
				zap.Error(derr))
		}
		return nil, &ProvisioningError{Provider: c.name, Stage: "bootstrap", Err: err}
	}

	c.log.Info("workspace created",
		zap.String("provider", c.name),
		zap.String("workspace", p.ID),
		zap.String("repo", opts.RepoURL))
	return c.toWorkspace(&p), nil
}

func (c *restClient) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var p workspacePayload
	if err := c.doJSON(ctx, http.MethodGet, "/v1/workspaces/"+id, nil, &p); err != nil {
		return nil, err
	}
	return c.toWorkspace(&p), nil
}

// alreadyRunning matches vendor refusals that mean the workspace is in the
// requested state already.
func alreadyRunning(err error) bool {
	ae, ok := err.(*apiError)
	if !ok {
		return false
	}
	body := strings.ToLower(ae.Body)
	return strings.Contains(body, "already running") || strings.Contains(body, "already started")
}

func (c *restClient) ResumeWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var p workspacePayload
	err := c.doJSON(ctx, http.MethodPost, "/v1/workspaces/"+id+"/resume", nil, &p)
	if err != nil {
		if !alreadyRunning(err) {
			return nil, fmt.Errorf("resume workspace: %w", err)
		}
		return c.GetWorkspace(ctx, id)
	}
	return c.toWorkspace(&p), nil
}

func (c *restClient) PauseWorkspace(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/v1/workspaces/"+id+"/pause", nil, nil); err != nil {
		return fmt.Errorf("pause workspace: %w", err)
	}
	// A paused VM drops its interpreter state; force a context rebuild on
	// the next run.
	c.handles.Delete(id)
	return nil
}

func (c *restClient) DeleteWorkspace(ctx context.Context, id string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/v1/workspaces/"+id, nil, nil)
	if err != nil && !errors.Is(err, ErrWorkspaceNotFound) {
		return fmt.Errorf("delete workspace: %w", err)
	}
	c.handles.Delete(id)
	return nil
}

func (c *restClient) ExecuteCommand(ctx context.Context, id, cmd string, opts ExecOptions) (*ExecResult, error) {
	req := map[string]any{
		"command": cmd,
		"cwd":     opts.Cwd,
		"env":     opts.EnvVars,
	}
	if opts.Timeout > 0 {
		req["timeout_seconds"] = int(opts.Timeout.Seconds())
	}

	var res struct {
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
		ExitCode int    `json:"exit_code"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/workspaces/"+id+"/exec", req, &res); err != nil {
		return nil, fmt.Errorf("execute command: %w", err)
	}
	return &ExecResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}, nil
}

// ensureContext returns a live execution context id for the workspace,
// creating one when the process-local cache has none. Cache loss is
// recoverable by design: a fresh context is created transparently.
func (c *restClient) ensureContext(ctx context.Context, id string) (string, error) {
	if ctxID, ok := c.handles.Get(id); ok {
		return ctxID, nil
	}
	var res struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/workspaces/"+id+"/contexts", nil, &res); err != nil {
		return "", fmt.Errorf("create execution context: %w", err)
	}
	c.handles.Put(id, res.ID)
	return res.ID, nil
}

func (c *restClient) RunCode(ctx context.Context, id, code string, opts RunOptions) (<-chan Event, error) {
	resp, err := c.openRunStream(ctx, id, code, opts)
	if err != nil {
		// A stale context id is recoverable: rebuild it and retry once.
		if errors.Is(err, ErrWorkspaceNotFound) {
			return nil, err
		}
		c.handles.Delete(id)
		if _, cerr := c.ensureContext(ctx, id); cerr != nil {
			return nil, err
		}
		resp, err = c.openRunStream(ctx, id, code, opts)
		if err != nil {
			return nil, err
		}
	}

	ch := make(chan Event, 64)
	go c.pumpRunStream(ctx, resp, ch, opts)
	return ch, nil
}

func (c *restClient) openRunStream(ctx context.Context, id, code string, opts RunOptions) (*http.Response, error) {
	ctxID, err := c.ensureContext(ctx, id)
	if err != nil {
		return nil, err
	}

	lang := opts.Language
	if lang == "" {
		lang = "python"
	}
	body, err := json.Marshal(map[string]any{
		"code":       code,
		"language":   lang,
		"context_id": ctxID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/workspaces/"+id+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open run stream: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, ErrWorkspaceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// pumpRunStream drains the vendor's ndjson stream into ch. The channel
// always receives exactly one done event last, whatever happens upstream.
// Cancelling ctx stops reading; the remote process is not guaranteed to
// stop, only the client side does.
func (c *restClient) pumpRunStream(ctx context.Context, resp *http.Response, ch chan<- Event, opts RunOptions) {
	defer close(ch)
	defer func() { _ = resp.Body.Close() }()

	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	doneSent := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			c.log.Warn("malformed stream event", zap.String("provider", c.name), zap.String("line", line))
			continue
		}
		switch ev.Type {
		case EventStdout:
			if opts.OnStdout != nil {
				opts.OnStdout(ev.Content)
			}
		case EventStderr:
			if opts.OnStderr != nil {
				opts.OnStderr(ev.Content)
			}
		case EventDone:
			doneSent = true
		}
		if !send(ev) {
			return
		}
		if doneSent {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if !send(Event{Type: EventError, Content: err.Error()}) {
			return
		}
	}
	if !doneSent {
		send(Event{Type: EventDone})
	}
}

func (c *restClient) StartDevServer(ctx context.Context, id string, opts DevServerOptions) (string, error) {
	port := opts.Port
	if port == 0 {
		port = 3000
	}

	candidates := DefaultDevCommands
	if opts.Command != "" {
		candidates = []string{opts.Command}
	}

	for _, cmd := range candidates {
		var res struct {
			URL string `json:"url"`
		}
		err := c.doJSON(ctx, http.MethodPost, "/v1/workspaces/"+id+"/dev-server",
			map[string]any{"command": cmd, "port": port}, &res)
		if err == nil {
			c.log.Info("dev server started",
				zap.String("workspace", id),
				zap.String("command", cmd),
				zap.String("url", res.URL))
			return res.URL, nil
		}
		if errors.Is(err, ErrWorkspaceNotFound) || ctx.Err() != nil {
			return "", err
		}
		c.log.Debug("dev server candidate failed",
			zap.String("workspace", id),
			zap.String("command", cmd),
			zap.Error(err))
	}
	return "", ErrNoDevServer
}

func (c *restClient) GetPreviewURL(ctx context.Context, id string, port int) (string, error) {
	var res struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/workspaces/%s/ports/%d", id, port), nil, &res); err != nil {
		return "", fmt.Errorf("get preview url: %w", err)
	}
	return res.URL, nil
}

func (c *restClient) ReadFile(ctx context.Context, id, path string) ([]byte, error) {
	var res struct {
		Content string `json:"content"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/workspaces/"+id+"/files/content?path="+url.QueryEscape(path), nil, &res); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return []byte(res.Content), nil
}

func (c *restClient) WriteFile(ctx context.Context, id, path string, content []byte) error {
	req := map[string]any{"path": path, "content": string(content)}
	if err := c.doJSON(ctx, http.MethodPut, "/v1/workspaces/"+id+"/files/content", req, nil); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (c *restClient) ListFiles(ctx context.Context, id, path string) ([]FileInfo, error) {
	var res struct {
		Files []FileInfo `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/workspaces/"+id+"/files?path="+url.QueryEscape(path), nil, &res); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return res.Files, nil
}
