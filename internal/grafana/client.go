// Package grafana talks to the alert source's Alertmanager-compatible API.
// It exists for reconciliation: alerts the source no longer reports firing
// are resolved locally even if the resolution webhook was lost.
package grafana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "alertbridge/pkg/logx"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration // per-request; default 15s
}

type Client struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("grafana url is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, log: log, http: &http.Client{Timeout: timeout}}, nil
}

// ActiveFingerprints returns the fingerprints of all alerts the source
// currently reports as active.
func (c *Client) ActiveFingerprints(ctx context.Context) (map[string]bool, error) {
	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/api/alertmanager/grafana/api/v2/alerts?active=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grafana: fetch active alerts: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("grafana: fetch active alerts: %s", resp.Status)
	}

	var alerts []struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.Unmarshal(raw, &alerts); err != nil {
		return nil, fmt.Errorf("grafana: decode active alerts: %w", err)
	}

	out := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		if a.Fingerprint != "" {
			out[a.Fingerprint] = true
		}
	}
	return out, nil
}
