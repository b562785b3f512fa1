package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client provides HTTP client functionality to communicate with a drover daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8321",
		Timeout: 10 * time.Second,
	}
}

// Status mirrors the daemon's GET /status payload.
type Status struct {
	Paused       bool       `json:"paused"`
	LiveSessions int        `json:"live_sessions"`
	Decisions    []Decision `json:"decisions"`
	Accounts     []Account  `json:"accounts"`
}

type Decision struct {
	Account string        `json:"account"`
	Action  string        `json:"action"`
	Wait    time.Duration `json:"wait,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	At      time.Time     `json:"at"`
}

type Account struct {
	ID        string         `json:"id"`
	Behaviors []string       `json:"behaviors"`
	Limits    map[string]int `json:"limits"`
}

// Quota mirrors the daemon's GET /quota payload.
type Quota struct {
	Account    string        `json:"account"`
	ActionType string        `json:"action_type"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	Available  bool          `json:"available"`
	Wait       time.Duration `json:"wait"`
}

// New creates a new drover API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8321"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	var st Status
	if err := c.getJSON(ctx, "/status", &st); err != nil {
		c.logger.Debug("daemon unreachable", slog.Any("err", err))
		return false
	}
	return true
}

// Status fetches the daemon's current scheduling state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.getJSON(ctx, "/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Quota fetches window usage for one (account, action type) pair.
func (c *Client) Quota(ctx context.Context, account, actionType string) (*Quota, error) {
	path := "/quota?account=" + url.QueryEscape(account) + "&type=" + url.QueryEscape(actionType)
	var q Quota
	if err := c.getJSON(ctx, path, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// TriggerCycle asks the daemon to start one scheduling cycle now. The
// daemon runs the cycle in the background; a nil return means it was
// accepted, not that it finished.
func (c *Client) TriggerCycle(ctx context.Context) error {
	return c.post(ctx, "/cycle")
}

// Pause stops the daemon's future cycles from doing work.
func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "/pause")
}

// Resume re-enables the daemon's cycles after Pause.
func (c *Client) Resume(ctx context.Context) error {
	return c.post(ctx, "/resume")
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.errorFrom(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return c.errorFrom(resp)
	}
	return nil
}

func (c *Client) errorFrom(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, er.Error)
	}
	return fmt.Errorf("daemon returned %d", resp.StatusCode)
}
