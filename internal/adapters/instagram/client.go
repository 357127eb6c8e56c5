// Package instagram implements snapshot fetchers against the remote social
// network's private web API, authenticated with a stored session cookie jar.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/net/publicsuffix"

	"github.com/followscope/followscope/config"
	"github.com/followscope/followscope/internal/domain/model"
)

// maxPages caps a paginated walk so a remote handing out cursors forever
// cannot spin a fetch indefinitely.
const maxPages = 1000

// ClientOptions groups dependencies for Client.
type ClientOptions struct {
	Config  config.BotConfig    // Required: base URL, page size, extraction expressions
	Session model.RemoteSession // Required: cookies and remote account id
	Logger  *slog.Logger        // Optional: structured logger
	// HTTPClient overrides the default client; its Jar is replaced with the
	// session's cookies.
	HTTPClient *http.Client
}

// Client talks to the remote API as one authenticated account. A Client is
// built per bot run from the session stored at login; it is not shared
// across users.
type Client struct {
	baseURL        *url.URL
	remoteUserID   string
	pageSize       int
	userListExpr   string
	nextCursorExpr string

	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client with the session's cookies loaded into a jar.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Session.RemoteUserID == "" {
		return nil, errors.New("session has no remote user id")
	}

	base, err := url.Parse(opts.Config.FetchBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q has no scheme or host", opts.Config.FetchBaseURL)
	}

	for _, expr := range []string{opts.Config.UserListExpr, opts.Config.NextCursorExpr} {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("compile extraction expression %q: %w", expr, err)
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("build cookie jar: %w", err)
	}
	jar.SetCookies(base, sessionCookies(opts.Session, base))

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Config.FetchTimeout}
	}
	httpClient.Jar = jar

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "instagram_client")
	}

	return &Client{
		baseURL:        base,
		remoteUserID:   opts.Session.RemoteUserID,
		pageSize:       opts.Config.FetchPageSize,
		userListExpr:   opts.Config.UserListExpr,
		nextCursorExpr: opts.Config.NextCursorExpr,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

func sessionCookies(sess model.RemoteSession, base *url.URL) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(sess.Cookies))
	for _, c := range sess.Cookies {
		domain := c.Domain
		if domain == "" {
			domain = base.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		out = append(out, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: domain,
			Path:   path,
		})
	}
	return out
}

// Followers walks the followers list to completion.
func (c *Client) Followers(ctx context.Context) (model.IdentifierSet, error) {
	return c.fetchPaged(ctx, fmt.Sprintf("/api/v1/friendships/%s/followers/", c.remoteUserID))
}

// Following walks the following list to completion.
func (c *Client) Following(ctx context.Context) (model.IdentifierSet, error) {
	return c.fetchPaged(ctx, fmt.Sprintf("/api/v1/friendships/%s/following/", c.remoteUserID))
}

// Unfollow removes the friendship with the named account. The account is
// resolved to its remote id first because the destroy endpoint is id-keyed.
func (c *Client) Unfollow(ctx context.Context, username string) error {
	pk, err := c.lookupUserID(ctx, username)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", username, err)
	}

	endpoint := c.endpoint(fmt.Sprintf("/api/v1/friendships/destroy/%s/", pk), nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(""))
	if err != nil {
		return fmt.Errorf("build unfollow request: %w", err)
	}

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("unfollow %q: %w", username, err)
	}
	return nil
}

// fetchPaged walks a cursor-paginated list endpoint and collects the
// extracted identifiers from every page.
func (c *Client) fetchPaged(ctx context.Context, path string) (model.IdentifierSet, error) {
	out := make(model.IdentifierSet)
	cursor := ""

	for page := 0; page < maxPages; page++ {
		query := url.Values{"count": {strconv.Itoa(c.pageSize)}}
		if cursor != "" {
			query.Set("max_id", cursor)
		}

		body, err := c.getJSON(ctx, c.endpoint(path, query))
		if err != nil {
			return nil, err
		}

		identifiers, err := c.extractUserList(body)
		if err != nil {
			return nil, err
		}
		for _, id := range identifiers {
			out.Add(id)
		}

		cursor = c.extractCursor(body)
		if cursor == "" {
			return out, nil
		}
	}

	return nil, fmt.Errorf("pagination did not terminate after %d pages", maxPages)
}

// lookupUserID resolves a username to the remote numeric id via search.
func (c *Client) lookupUserID(ctx context.Context, username string) (string, error) {
	query := url.Values{"q": {username}, "count": {"10"}}
	body, err := c.getJSON(ctx, c.endpoint("/api/v1/users/search/", query))
	if err != nil {
		return "", err
	}

	users, ok := body["users"].([]any)
	if !ok {
		return "", errors.New("search response has no user list")
	}
	for _, raw := range users {
		user, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := user["username"].(string); name != username {
			continue
		}
		switch pk := user["pk"].(type) {
		case string:
			return pk, nil
		case float64:
			return strconv.FormatInt(int64(pk), 10), nil
		}
	}
	return "", fmt.Errorf("user %q not found", username)
}

func (c *Client) extractUserList(body map[string]any) ([]string, error) {
	raw, err := jmespath.Search(c.userListExpr, body)
	if err != nil {
		return nil, fmt.Errorf("extract user list: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("user list expression yielded %T, want list", raw)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok || s == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) extractCursor(body map[string]any) string {
	raw, err := jmespath.Search(c.nextCursorExpr, body)
	if err != nil || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, endpoint string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // nothing to do with a close error here

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote returned %s for %s", resp.Status, req.URL.Path)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body, nil
}
