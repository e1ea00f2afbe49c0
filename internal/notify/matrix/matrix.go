// Package matrix implements notify.Notifier against the Matrix
// client-server API (r0/v3 message events in a single room).
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"alertbridge/internal/alert"
	logx "alertbridge/pkg/logx"
)

type Config struct {
	HomeserverURL string
	AccessToken   string
	RoomID        string
	RatePerSec    int           // outbound send throttle; default 1
	Timeout       time.Duration // per-request; default 10s
}

type Client struct {
	cfg     Config
	log     logx.Logger
	http    *http.Client
	limiter *rate.Limiter

	// txnSeq feeds transaction ids; Matrix dedups resends on (txn, token).
	txnSeq atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.HomeserverURL) == "" {
		return nil, errors.New("matrix homeserver url is empty")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("matrix access token is empty")
	}
	if strings.TrimSpace(cfg.RoomID) == "" {
		return nil, errors.New("matrix room id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (c *Client) SendNew(ctx context.Context, rec alert.Record) (string, error) {
	body, html := formatAlert(rec, "firing")
	return c.sendEvent(ctx, messageContent(body, html))
}

func (c *Client) EditExisting(ctx context.Context, eventID string, rec alert.Record) error {
	body, html := formatAlert(rec, "updated")
	content := messageContent("* "+body, html)
	content["m.new_content"] = messageContent(body, html)
	content["m.relates_to"] = map[string]any{
		"rel_type": "m.replace",
		"event_id": eventID,
	}
	_, err := c.sendEvent(ctx, content)
	return err
}

func (c *Client) SendResolved(ctx context.Context, eventID string, rec alert.Record) error {
	body, html := formatAlert(rec, "resolved")
	content := messageContent(body, html)
	if eventID != "" {
		content["m.relates_to"] = map[string]any{
			"m.in_reply_to": map[string]any{"event_id": eventID},
		}
	}
	_, err := c.sendEvent(ctx, content)
	return err
}

func (c *Client) SendDigest(ctx context.Context, tier alert.Tier, alerts []alert.Record, mentionToken string) error {
	body, html := formatDigest(tier, alerts, mentionToken)
	_, err := c.sendEvent(ctx, messageContent(body, html))
	return err
}

func messageContent(body, html string) map[string]any {
	content := map[string]any{
		"msgtype": "m.text",
		"body":    body,
	}
	if html != "" {
		content["format"] = "org.matrix.custom.html"
		content["formatted_body"] = html
	}
	return content
}

func (c *Client) sendEvent(ctx context.Context, content map[string]any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	txn := strconv.FormatInt(time.Now().UnixMilli(), 10) + "." + strconv.FormatUint(c.txnSeq.Add(1), 10)
	endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		strings.TrimRight(c.cfg.HomeserverURL, "/"),
		url.PathEscape(c.cfg.RoomID),
		url.PathEscape(txn),
	)

	payload, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("matrix send: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("matrix send: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var out struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("matrix send: decode response: %w", err)
	}
	if out.EventID == "" {
		return "", errors.New("matrix send: response missing event_id")
	}
	c.log.Debug("matrix event sent", logx.String("event_id", out.EventID))
	return out.EventID, nil
}
