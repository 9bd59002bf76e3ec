package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/WIPtitle/gpio-monitor/config"
	"github.com/WIPtitle/gpio-monitor/internal/store"
)

// apiClient talks to a running daemon's REST API on localhost.
type apiClient struct {
	base string
	http *http.Client
}

// newClient resolves the daemon's port from the config file named by
// the --config flag.
func newClient(cmd *cobra.Command) (*apiClient, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &apiClient{
		base: fmt.Sprintf("http://localhost:%d", cfg.Port),
		http: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// apiErrorBody mirrors the daemon's error response shape.
type apiErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// do sends a request and decodes the JSON response into out (when out
// is non-nil). Non-2xx responses become errors carrying the daemon's
// message.
func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiErrorBody
		if json.Unmarshal(data, &ae) == nil && ae.Message != "" {
			return fmt.Errorf("%s", ae.Message)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Response and request shapes of the daemon's API.

type pinListResponse struct {
	Port            int            `json:"port"`
	Pins            []store.Status `json:"pins"`
	Reserved        map[int]string `json:"reserved"`
	RestartRequired bool           `json:"restart_required"`
}

type daemonStatusResponse struct {
	UptimeSeconds   int64           `json:"uptime_seconds"`
	Port            int             `json:"port"`
	RestartRequired bool            `json:"restart_required"`
	Subscribers     int             `json:"subscribers"`
	Pins            []store.Status  `json:"pins"`
	Warnings        []store.Warning `json:"warnings"`
}

type mutationResponse struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

type setPortResponse struct {
	Message         string `json:"message"`
	RestartRequired bool   `json:"restart_required"`
}
