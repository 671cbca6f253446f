// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authority

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Session client defaults.
const (
	DefaultHTTPTimeout = 5 * time.Second

	// OfficialSessionURL is the root of the official session server.
	OfficialSessionURL = "https://sessionserver.mojang.com"

	// FederatedHasJoinedPath is appended to a federated API root.
	FederatedHasJoinedPath = "/sessionserver/session/minecraft/hasJoined"

	// OfficialHasJoinedPath is appended to the official session host.
	OfficialHasJoinedPath = "/session/minecraft/hasJoined"

	// maxProfileBytes bounds the response body read from an authority.
	maxProfileBytes = 1 << 20
)

// SessionClient calls the hasJoined endpoint of a session server.
type SessionClient struct {
	baseURL string
	path    string
	http    *http.Client
}

// SessionClientOption configures a SessionClient.
type SessionClientOption func(*SessionClient)

// WithHTTPClient replaces the underlying HTTP client. The client's Timeout
// is the per-request budget.
func WithHTTPClient(c *http.Client) SessionClientOption {
	return func(s *SessionClient) {
		s.http = c
	}
}

// WithHasJoinedPath overrides the path appended to the base URL.
func WithHasJoinedPath(path string) SessionClientOption {
	return func(s *SessionClient) {
		if path != "" {
			s.path = "/" + strings.TrimLeft(path, "/")
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) SessionClientOption {
	return func(s *SessionClient) {
		if d > 0 {
			s.http = &http.Client{Timeout: d}
		}
	}
}

// NewSessionClient creates a client for the session server rooted at baseURL.
func NewSessionClient(baseURL string, opts ...SessionClientOption) (*SessionClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, oops.Code("PIPELINE_CONFIG_INVALID").Errorf("session server endpoint is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, oops.Code("PIPELINE_CONFIG_INVALID").
			With("endpoint", baseURL).
			Errorf("session server endpoint must be an absolute URL")
	}

	c := &SessionClient{
		baseURL: trimmed,
		path:    FederatedHasJoinedPath,
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewOfficialSessionClient creates a client for the official session host,
// which serves hasJoined without the federated /sessionserver prefix.
func NewOfficialSessionClient(baseURL string, opts ...SessionClientOption) (*SessionClient, error) {
	return NewSessionClient(baseURL, append([]SessionClientOption{WithHasJoinedPath(OfficialHasJoinedPath)}, opts...)...)
}

// BaseURL returns the endpoint root without trailing slash.
func (c *SessionClient) BaseURL() string {
	return c.baseURL
}

// HasJoinedURL returns the verification URL for name and serverID.
func (c *SessionClient) HasJoinedURL(name, serverID string) string {
	return c.baseURL + c.path +
		"?username=" + url.QueryEscape(name) +
		"&serverId=" + url.QueryEscape(serverID)
}

// HasJoined asks the session server whether name joined the session
// identified by serverID. It returns (nil, nil) on 204 No Content.
func (c *SessionClient) HasJoined(ctx context.Context, name, serverID string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HasJoinedURL(name, serverID), nil)
	if err != nil {
		return nil, oops.Code(CodeUnreachable).With("endpoint", c.baseURL).Wrap(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, oops.Code(CodeUnreachable).
			With("endpoint", c.baseURL).
			With("name", name).
			Wrap(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes)) //nolint:errcheck // drain for reuse
		_ = resp.Body.Close()                                                  //nolint:errcheck // read side
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, oops.Code(CodeProtocolError).
			With("endpoint", c.baseURL).
			With("status", resp.StatusCode).
			Errorf("unexpected status %d", resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&profile); err != nil {
		return nil, oops.Code(CodeProtocolError).
			With("endpoint", c.baseURL).
			With("name", name).
			Wrap(err)
	}
	if profile.Name == "" {
		profile.Name = name
	}
	return &profile, nil
}
