// Package icat is a small client for the ICAT REST API.
//
// Only the calls needed to look up a data file by name are implemented:
// session login, entity manager queries and logout.
package icat

import (
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

var (
	// ErrNotLoggedIn is returned by queries issued before Login succeeded.
	ErrNotLoggedIn = errors.New("icat session not established")

	// ErrLogin wraps every failure to establish a session.
	ErrLogin = errors.New("icat login failed")
)

// Config holds ICAT connection settings.
type Config struct {
	URL           string            `yaml:"url"`
	Authenticator string            `yaml:"authenticator"`
	Username      string            `yaml:"username"`
	Password      string            `yaml:"password"`
	Timeout       time.Duration     `yaml:"timeout"`
	Prefixes      map[string]string `yaml:"instrument_prefixes,omitempty"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Authenticator == "" {
		c.Authenticator = "simple"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("icat url is required")
	}
	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return fmt.Errorf("invalid icat url: %w", err)
	}
	if c.Username == "" {
		return errors.New("icat username is required")
	}
	if c.Timeout <= 0 {
		return errors.New("icat timeout must be positive")
	}
	return nil
}

// APIError is an error response from the ICAT server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("icat returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("icat returned %d: %s", e.Status, e.Message)
}

// Client talks to one ICAT server. It holds at most one session and is not
// safe for concurrent use.
type Client struct {
	cfg       Config
	http      *http.Client
	logger    *zap.Logger
	sessionID string
}

// NewClient creates a client. No network calls are made until Login.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("icat"),
	}, nil
}

// LoggedIn reports whether the client holds a session.
func (c *Client) LoggedIn() bool {
	return c.sessionID != ""
}

type credential map[string]string

type loginRequest struct {
	Plugin      string       `json:"plugin"`
	Credentials []credential `json:"credentials"`
}

// Login establishes a session. Errors match ErrLogin.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{
		Plugin: c.cfg.Authenticator,
		Credentials: []credential{
			{"username": c.cfg.Username},
			{"password": c.cfg.Password},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}

	form := url.Values{"json": {string(body)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("session"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(req, &out); err != nil {
		return fmt.Errorf("%w: %w", ErrLogin, err)
	}
	if out.SessionID == "" {
		return fmt.Errorf("%w: response carried no sessionId", ErrLogin)
	}

	c.sessionID = out.SessionID
	c.logger.Info("Logged into ICAT", zap.String("url", c.cfg.URL), zap.String("authenticator", c.cfg.Authenticator))
	return nil
}

// Logout ends the session. It is a no-op without one.
func (c *Client) Logout(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("session/"+url.PathEscape(c.sessionID)), nil)
	if err != nil {
		return err
	}
	c.sessionID = ""
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to log out of icat: %w", err)
	}
	return nil
}

// Query runs a JPQL-style query and returns the raw result items.
func (c *Client) Query(ctx context.Context, query string) ([]json.RawMessage, error) {
	if c.sessionID == "" {
		return nil, ErrNotLoggedIn
	}

	params := url.Values{
		"sessionId": {c.sessionID},
		"query":     {query},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("entityManager")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := c.do(req, &items); err != nil {
		return nil, fmt.Errorf("icat query failed: %w", err)
	}
	return items, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.URL, "/") + "/icat/" + path
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
