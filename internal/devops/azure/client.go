// Package azure talks to the Azure DevOps REST and Analytics OData APIs.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"devopsdash/internal/core"
	"devopsdash/internal/devops"
)

const (
	DefaultBaseURL      = "https://dev.azure.com"
	DefaultAnalyticsURL = "https://analytics.dev.azure.com"
	DefaultAPIVersion   = "6.0"
	DefaultODataVersion = "v3.0-preview"

	// maxBatchSize is the work item batch limit of the REST API.
	maxBatchSize = 200

	contentTypeJSON      = "application/json"
	contentTypeJSONPatch = "application/json-patch+json"
)

// Config holds the endpoints and transport shared by every client built from
// it. Zero values fall back to the public service.
type Config struct {
	BaseURL      string
	AnalyticsURL string
	APIVersion   string
	ODataVersion string
	HTTPClient   *http.Client
	Now          func() time.Time
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.AnalyticsURL == "" {
		c.AnalyticsURL = DefaultAnalyticsURL
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.ODataVersion == "" {
		c.ODataVersion = DefaultODataVersion
	}
	if c.HTTPClient == nil {
		c.HTTPClient = newHTTPClientWithPooling()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.AnalyticsURL = strings.TrimRight(c.AnalyticsURL, "/")
	return c
}

// Client is bound to one organization/project (and optionally team).
type Client struct {
	cfg   Config
	creds core.Credentials
}

var _ devops.Client = (*Client)(nil)

// New validates the credentials and returns a client for them.
func New(creds core.Credentials, cfg Config) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg.withDefaults(), creds: creds}, nil
}

// NewFactory returns a devops.Factory sharing cfg (and its HTTP transport)
// across every client it builds.
func NewFactory(cfg Config) devops.Factory {
	cfg = cfg.withDefaults()
	return devops.FactoryFunc(func(creds core.Credentials) (devops.Client, error) {
		return New(creds, cfg)
	})
}

func (c *Client) orgURL(path string, query url.Values) string {
	return c.build(c.cfg.BaseURL+"/"+url.PathEscape(c.creds.Organization)+"/"+path, query)
}

func (c *Client) projectURL(path string, query url.Values) string {
	return c.build(c.cfg.BaseURL+"/"+url.PathEscape(c.creds.Organization)+"/"+url.PathEscape(c.creds.Project)+"/"+path, query)
}

// teamURL scopes to the team when one is configured, otherwise to the
// project's default team.
func (c *Client) teamURL(path string, query url.Values) string {
	if c.creds.Team == "" {
		return c.projectURL(path, query)
	}
	return c.build(c.cfg.BaseURL+"/"+url.PathEscape(c.creds.Organization)+"/"+
		url.PathEscape(c.creds.Project)+"/"+url.PathEscape(c.creds.Team)+"/"+path, query)
}

func (c *Client) build(raw string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if query.Get("api-version") == "" {
		query.Set("api-version", c.cfg.APIVersion)
	}
	return raw + "?" + query.Encode()
}

// odataURL builds an analytics URL. OData options are left unencoded apart
// from spaces so the service sees the expressions verbatim.
func (c *Client) odataURL(entity string, options [][2]string) string {
	var b strings.Builder
	b.WriteString(c.cfg.AnalyticsURL + "/" + url.PathEscape(c.creds.Organization) + "/" +
		url.PathEscape(c.creds.Project) + "/_odata/" + c.cfg.ODataVersion + "/" + entity)
	for i, opt := range options {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(opt[0] + "=" + strings.ReplaceAll(compact(opt[1]), " ", "%20"))
	}
	return b.String()
}

func compact(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	return c.do(ctx, http.MethodGet, rawURL, nil, "", out)
}

func (c *Client) send(ctx context.Context, method, rawURL, contentType string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return &core.APIError{Method: method, URL: redact(rawURL), Err: fmt.Errorf("encode body: %w", err)}
	}
	return c.do(ctx, method, rawURL, bytes.NewReader(b), contentType, out)
}

// do issues one request. Any status but 200, transport failure or decoding
// failure becomes a *core.APIError. There is no retry.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, out any) error {
	start := c.cfg.Now()
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return &core.APIError{Method: method, URL: redact(rawURL), Err: err}
	}
	req.SetBasicAuth(c.creds.Token, "")
	req.Header.Set("Accept", contentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return &core.APIError{Method: method, URL: redact(rawURL), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &core.APIError{Method: method, URL: redact(rawURL), StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	slog.DebugContext(ctx, "Azure DevOps request",
		"method", method,
		"path", req.URL.Path,
		"status_code", resp.StatusCode,
		"duration_ms", c.cfg.Now().Sub(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return &core.APIError{Method: method, URL: redact(rawURL), StatusCode: resp.StatusCode, Body: string(payload)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &core.APIError{Method: method, URL: redact(rawURL), StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// redact drops the query string from URLs placed in errors.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
