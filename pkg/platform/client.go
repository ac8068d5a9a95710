package platform

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
	"time"

	"github.com/cuemby/rolesweep/pkg/metrics"
	"github.com/cuemby/rolesweep/pkg/types"
	"golang.org/x/time/rate"
)

// errNotFound is the raw 404 before an endpoint maps it to a member or role error
var errNotFound = errors.New("platform: resource not found")

// Config configures the REST client
type Config struct {
	BaseURL           string
	Token             string
	CommunityID       string
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Client talks to the community platform's REST API
type Client struct {
	baseURL     *url.URL
	token       string
	communityID string
	http        *http.Client
	limiter     *rate.Limiter
}

// APIError describes a non-2xx response
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// NewClient creates a new platform client
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("platform base URL is required")
	}
	if cfg.CommunityID == "" {
		return nil, fmt.Errorf("community ID is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid platform base URL: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:     base,
		token:       cfg.Token,
		communityID: cfg.CommunityID,
		http:        httpClient,
		limiter:     rate.NewLimiter(limit, burst),
	}, nil
}

type communityPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type memberPayload struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

type rolePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type removeRolesPayload struct {
	RoleIDs []string `json:"role_ids"`
}

type messagePayload struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

func (c *Client) communityPath(parts ...string) string {
	p := "/communities/" + url.PathEscape(c.communityID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// Community fetches the configured community
func (c *Client) Community(ctx context.Context) (*types.Community, error) {
	var out communityPayload
	if err := c.do(ctx, http.MethodGet, c.communityPath(), nil, "", &out); err != nil {
		return nil, fmt.Errorf("resolve community %s: %w", c.communityID, err)
	}
	return &types.Community{ID: out.ID, Name: out.Name}, nil
}

// ResolveMember fetches a member together with its current roles
func (c *Client) ResolveMember(ctx context.Context, memberID string) (*types.Member, error) {
	var out memberPayload
	err := c.do(ctx, http.MethodGet, c.communityPath("members", memberID), nil, "", &out)
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("member %s: %w: %w", memberID, ErrMemberNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	roles := out.Roles
	if roles == nil {
		roles = []string{}
	}
	return &types.Member{ID: out.ID, Name: out.Name, RoleIDs: roles}, nil
}

// ResolveRole looks the role up in the community's role list
func (c *Client) ResolveRole(ctx context.Context, roleID string) (*types.Role, error) {
	var roles []rolePayload
	if err := c.do(ctx, http.MethodGet, c.communityPath("roles"), nil, "", &roles); err != nil {
		return nil, err
	}
	for _, r := range roles {
		if r.ID == roleID {
			return &types.Role{ID: r.ID, Name: r.Name}, nil
		}
	}
	return nil, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
}

// CurrentRoles returns the member's roles, reusing the roles fetched with the member when present
func (c *Client) CurrentRoles(ctx context.Context, member *types.Member) (map[string]struct{}, error) {
	ids := member.RoleIDs
	if ids == nil {
		fresh, err := c.ResolveMember(ctx, member.ID)
		if err != nil {
			return nil, err
		}
		ids = fresh.RoleIDs
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// RemoveRoles removes all roleIDs from the member in a single request
func (c *Client) RemoveRoles(ctx context.Context, member *types.Member, roleIDs []string, reason string) error {
	path := c.communityPath("members", member.ID, "roles", "remove")
	err := c.do(ctx, http.MethodPost, path, removeRolesPayload{RoleIDs: roleIDs}, reason, nil)
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("member %s: %w: %w", member.ID, ErrMemberNotFound, err)
	}
	return err
}

// SendDirectMessage delivers a private message to the member
func (c *Client) SendDirectMessage(ctx context.Context, memberID, content string) error {
	path := "/users/" + url.PathEscape(memberID) + "/messages"
	err := c.do(ctx, http.MethodPost, path, messagePayload{Content: content}, "", nil)
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("member %s: %w: %w", memberID, ErrMemberNotFound, err)
	}
	return err
}

// SendChannelMessage posts a message to a community channel
func (c *Client) SendChannelMessage(ctx context.Context, channelID, content string, mentions []string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	return c.do(ctx, http.MethodPost, path, messagePayload{Content: content, Mentions: mentions}, "", nil)
}

// do performs one rate-limited request and maps failures onto the sentinel errors
func (c *Client) do(ctx context.Context, method, path string, body interface{}, reason string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: rate limiter: %v: %w", method, path, err, ErrTransient)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}
	if reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(reason))
	}

	timer := metrics.NewTimer()
	resp, err := c.http.Do(req)
	timer.ObserveDurationVec(metrics.PlatformRequestDuration, method)
	if err != nil {
		metrics.PlatformRequests.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrTransient)
	}
	defer resp.Body.Close()
	metrics.PlatformRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %v: %w", method, path, err, ErrTransient)
		}
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(msg)),
		kind:       kindForStatus(resp.StatusCode),
	}
}

func kindForStatus(code int) error {
	switch code {
	case http.StatusNotFound:
		return errNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrPermissionDenied
	default:
		// 429, 5xx and anything unexpected are retried on the next run
		return ErrTransient
	}
}

var (
	_ MembershipProvider = (*Client)(nil)
	_ Messenger          = (*Client)(nil)
)
