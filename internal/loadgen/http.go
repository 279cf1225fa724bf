package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/http/api"
)

// httpClient wraps http.Client with the identity headers of the run.
type httpClient struct {
	client    *http.Client
	baseURL   string
	gamespace string
}

func newHTTPClient(cfg Config) *httpClient {
	return &httpClient{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		gamespace: cfg.Gamespace,
	}
}

func (c *httpClient) do(ctx context.Context, method, path, account string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(api.HeaderGamespace, c.gamespace)
	if account != "" {
		req.Header.Set(api.HeaderAccount, account)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func leaderboardPath(cfg Config) string {
	return "/leaderboard/" + string(cfg.Order) + "/" + url.PathEscape(cfg.Leaderboard)
}

func (c *httpClient) health(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/healthz", "", nil)
	if err != nil {
		return fmt.Errorf("connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("health check returned %d: %s", status, body)
	}
	return nil
}

// submit posts s and reports whether it created the entry.
func (c *httpClient) submit(ctx context.Context, cfg Config, s Submission) (bool, error) {
	status, body, err := c.do(ctx, http.MethodPost, leaderboardPath(cfg), s.Account, s)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusCreated:
		return true, nil
	case http.StatusOK:
		return false, nil
	default:
		return false, fmt.Errorf("submit returned %d: %s", status, body)
	}
}

// readAll pages through the leaderboard until a short page.
func (c *httpClient) readAll(ctx context.Context, cfg Config) ([]Entry, error) {
	var all []Entry
	for offset := 0; ; offset += cfg.PageSize {
		path := fmt.Sprintf("%s?offset=%d&limit=%d", leaderboardPath(cfg), offset, cfg.PageSize)
		status, body, err := c.do(ctx, http.MethodGet, path, "", nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("read returned %d: %s", status, body)
		}
		var page struct {
			Data []Entry `json:"data"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		all = append(all, page.Data...)
		if len(page.Data) < cfg.PageSize {
			return all, nil
		}
	}
}

func (c *httpClient) drop(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout+time.Second)
	defer cancel()
	status, body, err := c.do(ctx, http.MethodDelete, "/internal"+leaderboardPath(cfg), "", nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("delete returned %d: %s", status, body)
	}
	return nil
}
