// Package util holds the shared plumbing of loomctl subcommands: the
// resolved connection settings and a small portal REST client.
package util

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/moby/term"

	"github.com/loomhq/loom/pkg/utils/json"
)

// Config carries the connection settings shared by all subcommands.
// Flags win over the LOOM_SERVER / LOOM_API_KEY / LOOM_TOKEN
// environment variables.
type Config struct {
	Server string
	APIKey string
	Token  string
}

// NewConfig resolves defaults from the environment.
func NewConfig() *Config {
	cfg := &Config{
		Server: "http://localhost:3000",
		APIKey: os.Getenv("LOOM_API_KEY"),
		Token:  os.Getenv("LOOM_TOKEN"),
	}
	if server := os.Getenv("LOOM_SERVER"); server != "" {
		cfg.Server = server
	}
	return cfg
}

// Normalize fills in the URL scheme when omitted.
func (c *Config) Normalize() {
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		c.Server = "http://" + c.Server
	}
	c.Server = strings.TrimRight(c.Server, "/")
}

// CheckErr prints err and exits non-zero. No-op on nil.
func CheckErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
	os.Exit(1)
}

// TermWidth returns the terminal width, defaulting to 80.
func TermWidth() int {
	ws, err := term.GetWinsize(os.Stdout.Fd())
	if err != nil || ws.Width == 0 {
		return 80
	}
	return int(ws.Width)
}

// PortalClient is a minimal REST client for the /v1/portal surface.
type PortalClient struct {
	cfg  *Config
	http *http.Client
}

// NewPortalClient creates a PortalClient.
func NewPortalClient(cfg *Config) *PortalClient {
	return &PortalClient{cfg: cfg, http: &http.Client{Timeout: 30 * time.Second}}
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Do performs one portal request. in is marshalled as the body when
// non-nil; the response is unmarshalled into out when non-nil.
func (c *PortalClient) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Server+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
