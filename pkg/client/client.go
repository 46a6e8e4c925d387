package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/mnemo/pkg/lockfile"
)

const (
	// DefaultHeartbeatInterval keeps a discovered backend alive while
	// this client exists.
	DefaultHeartbeatInterval = 240 * time.Second

	// DefaultSpawnAttempts and DefaultSpawnPollDelay bound how long a
	// freshly spawned backend may take to publish its port.
	DefaultSpawnAttempts  = 10
	DefaultSpawnPollDelay = 500 * time.Millisecond

	recallTimeout   = 120 * time.Second
	memorizeTimeout = 5 * time.Second
	controlTimeout  = 2 * time.Second
	probeTimeout    = 5 * time.Second

	// terminateGrace is how long an unresponsive backend gets to honor
	// SIGTERM before it is killed.
	terminateGrace = 2 * time.Second

	// clientIDHeader mirrors the header the backend logs per request.
	clientIDHeader = "X-Mnemo-Client"
)

// Config configures a frontend client for one project.
type Config struct {
	ProjectDir string
	StateDir   string

	// ServeCommand overrides how a backend is spawned. Defaults to the
	// running executable with "serve --project <dir>".
	ServeCommand []string

	HeartbeatInterval time.Duration
	SpawnAttempts     int
	SpawnPollDelay    time.Duration

	Logger zerolog.Logger
}

// Health is what GET /health reports.
type Health struct {
	Status      string
	ActiveTasks int
}

// Client talks to the project's backend over loopback HTTP, discovering
// it through the lock file and spawning one when none is running.
type Client struct {
	projectDir string
	lockPath   string
	serveCmd   []string
	instanceID string

	heartbeatInterval time.Duration
	spawnAttempts     int
	spawnPollDelay    time.Duration

	httpc  *http.Client
	logger zerolog.Logger

	mu      sync.Mutex
	baseURL string

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	heartbeatOn bool
}

// New creates a client. No backend is contacted until the first
// operation or Connect.
func New(cfg Config) (*Client, error) {
	if cfg.ProjectDir == "" {
		return nil, fmt.Errorf("project dir is required")
	}
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("state dir is required")
	}
	if len(cfg.ServeCommand) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		cfg.ServeCommand = []string{exe, "serve", "--project", cfg.ProjectDir}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.SpawnAttempts <= 0 {
		cfg.SpawnAttempts = DefaultSpawnAttempts
	}
	if cfg.SpawnPollDelay <= 0 {
		cfg.SpawnPollDelay = DefaultSpawnPollDelay
	}

	lockPath, err := lockfile.Path(cfg.StateDir, cfg.ProjectDir)
	if err != nil {
		return nil, err
	}

	instanceID, err := gonanoid.New(10)
	if err != nil {
		return nil, fmt.Errorf("generate instance id: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		projectDir:        cfg.ProjectDir,
		lockPath:          lockPath,
		serveCmd:          cfg.ServeCommand,
		instanceID:        instanceID,
		heartbeatInterval: cfg.HeartbeatInterval,
		spawnAttempts:     cfg.SpawnAttempts,
		spawnPollDelay:    cfg.SpawnPollDelay,
		httpc:             &http.Client{},
		logger:            cfg.Logger,
		ctx:               ctx,
		cancel:            cancel,
	}, nil
}

// InstanceID returns this client's identity as sent to the backend.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// Connect ensures a backend is running and starts the heartbeat loop
// that keeps it alive while the client exists.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.ensureBackend(ctx); err != nil {
		return err
	}
	c.startHeartbeat()
	return nil
}

// Close stops the heartbeat loop. The backend stays up and idles out on
// its own.
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	c.httpc.CloseIdleConnections()
	return nil
}

// Recall asks the backend for a report on the interest. A nil report
// means the backend produced none.
func (c *Client) Recall(ctx context.Context, interest string, deep bool) (*string, error) {
	payload, err := c.do(ctx, http.MethodPost, "/recall",
		map[string]interface{}{"interest": interest, "deep": deep}, recallTimeout)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	if payload["status"] != "success" {
		return nil, backendError(payload)
	}
	report, ok := payload["result"].(string)
	if !ok {
		return nil, nil
	}
	return &report, nil
}

// Memorize hands content to the backend; the save runs asynchronously
// there.
func (c *Client) Memorize(ctx context.Context, content string) error {
	payload, err := c.do(ctx, http.MethodPost, "/memorize",
		map[string]string{"content": content}, memorizeTimeout)
	if err != nil {
		return fmt.Errorf("memorize: %w", err)
	}
	if payload["status"] != "accepted" {
		return backendError(payload)
	}
	return nil
}

// CheckHealth fetches the backend's health snapshot.
func (c *Client) CheckHealth(ctx context.Context) (Health, error) {
	payload, err := c.do(ctx, http.MethodGet, "/health", nil, controlTimeout)
	if err != nil {
		return Health{}, fmt.Errorf("health check: %w", err)
	}
	health := Health{}
	health.Status, _ = payload["status"].(string)
	if health.Status != "healthy" {
		return Health{}, backendError(payload)
	}
	if n, ok := payload["active_tasks"].(float64); ok {
		health.ActiveTasks = int(n)
	}
	return health, nil
}

// Heartbeat tells the backend the client is still around.
func (c *Client) Heartbeat(ctx context.Context) error {
	payload, err := c.do(ctx, http.MethodPost, "/heartbeat", nil, controlTimeout)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if payload["status"] != "alive" {
		return backendError(payload)
	}
	return nil
}

// SetLogLevel changes the backend's log level and returns its
// confirmation message.
func (c *Client) SetLogLevel(ctx context.Context, level string) (string, error) {
	payload, err := c.do(ctx, http.MethodPost, "/log_level",
		map[string]string{"level": level}, controlTimeout)
	if err != nil {
		return "", fmt.Errorf("set log level: %w", err)
	}
	if payload["status"] != "success" {
		return "", backendError(payload)
	}
	message, _ := payload["message"].(string)
	return message, nil
}

func backendError(payload map[string]interface{}) error {
	if msg, ok := payload["error"].(string); ok && msg != "" {
		return fmt.Errorf("backend: %s", msg)
	}
	return fmt.Errorf("backend returned an unexpected response")
}

// do sends one request, recovering once when the backend is gone: the
// stale lock is cleaned up, a fresh backend is discovered or spawned,
// and the request is retried.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, timeout time.Duration) (map[string]interface{}, error) {
	payload, err := c.doOnce(ctx, method, path, body, timeout)
	if err == nil || !errors.Is(err, syscall.ECONNREFUSED) {
		return payload, err
	}

	c.logger.Warn().Err(err).Msg("Backend connection refused, recovering")

	c.mu.Lock()
	c.baseURL = ""
	rerr := c.ensureBackendLocked(ctx)
	c.mu.Unlock()
	if rerr != nil {
		return nil, rerr
	}

	return c.doOnce(ctx, method, path, body, timeout)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body interface{}, timeout time.Duration) (map[string]interface{}, error) {
	base, err := c.endpoint(ctx)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set(clientIDHeader, c.instanceID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}

// endpoint returns the backend base URL, discovering or spawning a
// backend on first use.
func (c *Client) endpoint(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.baseURL == "" {
		if err := c.ensureBackendLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.baseURL, nil
}

func (c *Client) ensureBackend(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureBackendLocked(ctx)
}

func (c *Client) ensureBackendLocked(ctx context.Context) error {
	if url, ok := c.discover(); ok {
		c.logger.Info().Str("url", url).Msg("Found existing backend")
		c.baseURL = url
		return nil
	}
	return c.spawnBackendLocked(ctx)
}

// discover reads the lock file and verifies the backend behind it is
// alive and answering. Dead or unresponsive backends are cleaned up so
// the caller can spawn a fresh one.
func (c *Client) discover() (string, bool) {
	info, err := lockfile.ReadInfo(c.lockPath)
	if err != nil {
		return "", false
	}

	if !lockfile.ProcessAlive(info.PID) {
		c.logger.Info().Int("pid", info.PID).Msg("Backend process is gone, removing stale lock")
		if err := lockfile.Remove(c.lockPath); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to remove stale lock")
		}
		return "", false
	}

	url := fmt.Sprintf("http://127.0.0.1:%d", info.Port)
	if !c.probe(url) {
		c.logger.Warn().Int("pid", info.PID).Msg("Backend is unresponsive, cleaning it up")
		if err := lockfile.Terminate(info.PID, terminateGrace); err != nil {
			c.logger.Warn().Err(err).Int("pid", info.PID).Msg("Failed to terminate backend")
		}
		if err := lockfile.Remove(c.lockPath); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to remove stale lock")
		}
		return "", false
	}

	return url, true
}

func (c *Client) probe(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set(clientIDHeader, c.instanceID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// spawnBackendLocked starts a detached backend process and polls until
// it publishes its port.
func (c *Client) spawnBackendLocked(ctx context.Context) error {
	cmd := exec.Command(c.serveCmd[0], c.serveCmd[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn backend: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	c.logger.Info().Int("pid", pid).Msg("Spawned backend process")

	for attempt := 0; attempt < c.spawnAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.spawnPollDelay):
		}

		if url, ok := c.discover(); ok {
			c.logger.Info().Str("url", url).Msg("Started new backend")
			c.baseURL = url
			return nil
		}
	}

	return fmt.Errorf("backend did not come up within %s",
		time.Duration(c.spawnAttempts)*c.spawnPollDelay)
}

func (c *Client) startHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.heartbeatOn {
		return
	}
	c.heartbeatOn = true

	c.wg.Add(1)
	go c.heartbeatLoop()

	c.logger.Info().Dur("interval", c.heartbeatInterval).Msg("Heartbeat started")
}

// heartbeatLoop keeps the backend's idle clock fresh. Failures fall
// through to the next tick; do already re-discovers and respawns on a
// refused connection.
func (c *Client) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info().Msg("Heartbeat stopped")
			return
		case <-ticker.C:
			if err := c.Heartbeat(c.ctx); err != nil {
				c.logger.Warn().Err(err).Msg("Heartbeat failed")
			}
		}
	}
}
