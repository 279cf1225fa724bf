// Package social resolves an account's friends.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel kinds for social errors.
var (
	ErrUnexpectedStatus = errors.New("social: unexpected status")
)

const maxResponseBytes = 4 << 20

// connection is one element of the social service's connection list.
type connection struct {
	Account string `json:"account"`
}

// Client asks the social service for an account's connections.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ListFriends returns the account ids connected to account in gamespace.
func (c *Client) ListFriends(ctx context.Context, gamespace, account string) ([]string, error) {
	q := url.Values{}
	q.Set("gamespace", gamespace)
	q.Set("account", account)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/connections?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var conns []connection
	if err := json.Unmarshal(body, &conns); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}
	friends := make([]string, 0, len(conns))
	for _, conn := range conns {
		if conn.Account != "" {
			friends = append(friends, conn.Account)
		}
	}
	return friends, nil
}
