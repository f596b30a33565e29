// Package gateway talks to the chat gateway that owns the monitored area.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/attendance/internal/events"
)

// Snapshotter lists the members currently present in an area.
type Snapshotter interface {
	PresentMembers(ctx context.Context, areaID string) ([]string, error)
}

// NoopSnapshotter reports an empty area.
type NoopSnapshotter struct{}

// PresentMembers returns no members.
func (NoopSnapshotter) PresentMembers(context.Context, string) ([]string, error) { return nil, nil }

// Client fetches presence snapshots over HTTP.
type Client struct {
	client *http.Client
	base   string
	token  string
}

// NewClient constructs a Client for the gateway at endpoint.
func NewClient(endpoint, token string, timeout time.Duration) *Client {
	return &Client{
		client: &http.Client{Timeout: timeout},
		base:   strings.TrimRight(endpoint, "/"),
		token:  token,
	}
}

// PresentMembers calls GET {base}/areas/{id}/members and returns the non-bot user ids.
func (c *Client) PresentMembers(ctx context.Context, areaID string) ([]string, error) {
	endpoint := c.base + "/areas/" + url.PathEscape(areaID) + "/members"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Status: resp.StatusCode}
	}

	var snapshot events.PresenceSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	members := make([]string, 0, len(snapshot.Members))
	for _, m := range snapshot.Members {
		if m.Bot || m.UserID == "" {
			continue
		}
		members = append(members, m.UserID)
	}
	return members, nil
}

// StatusError represents a non-successful gateway response.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return "gateway snapshot failed with status " + http.StatusText(e.Status)
}
