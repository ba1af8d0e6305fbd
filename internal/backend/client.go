// Package backend is a read-only facade over the reference data API.
//
// Every request goes to the live backend first. When the backend is
// unreachable, answers with a non-2xx status, or returns a body that is not
// JSON, the facade serves the embedded fixture for the same endpoint so the
// dashboard keeps working offline.
package backend

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cast"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// DefaultTimeout bounds one backend request.
const DefaultTimeout = 5 * time.Second

// maxBody caps backend responses read into memory.
const maxBody = 10 << 20

// Groups lists the endpoint groups the facade serves.
var Groups = []string{"dashboard", "system", "reference", "analytics", "chat", "navigation", "users"}

var (
	// ErrNoFixture is returned when the backend failed and no fixture exists
	// for the endpoint.
	ErrNoFixture = errors.New("backend unavailable and no fixture for endpoint")

	// ErrUnknownGroup is returned for a group outside Groups.
	ErrUnknownGroup = errors.New("unknown backend group")
)

//go:embed fixtures/*.json
var fixtureFS embed.FS

// Source says where a Result came from.
type Source string

const (
	SourceBackend Source = "backend"
	SourceFixture Source = "fixture"
)

// Result is one endpoint response.
type Result struct {
	Data   json.RawMessage
	Source Source
	Err    error // backend failure that caused a fixture fallback
}

// Client fetches backend data with fixture fallback.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	log     *slog.Logger
}

// New creates a client. Empty baseURL and zero timeout take defaults.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		log:     logger.With("component", "backend"),
	}
}

// Fetch issues GET {base}/{group}/{name}?{query}. On failure it falls back
// to the fixture, narrowed by the same query the backend would have applied.
func (c *Client) Fetch(ctx context.Context, group, name string, query url.Values) (Result, error) {
	if !slices.Contains(Groups, group) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownGroup, group)
	}

	data, err := c.get(ctx, group, name, query)
	if err == nil {
		return Result{Data: data, Source: SourceBackend}, nil
	}

	c.log.Warn("backend request failed, using fixture", "group", group, "name", name, "error", err)
	fixture, ferr := Fixture(group, name, query)
	if ferr != nil {
		return Result{}, fmt.Errorf("%s/%s: %w (backend: %v)", group, name, ferr, err)
	}
	return Result{Data: fixture, Source: SourceFixture, Err: err}, nil
}

// FetchInto decodes the Fetch result into out.
func (c *Client) FetchInto(ctx context.Context, group, name string, query url.Values, out any) (Source, error) {
	res, err := c.Fetch(ctx, group, name, query)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(res.Data, out); err != nil {
		return res.Source, fmt.Errorf("decode %s/%s: %w", group, name, err)
	}
	return res.Source, nil
}

func (c *Client) get(ctx context.Context, group, name string, query url.Values) (json.RawMessage, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	u.Path = path.Join(u.Path, group, name)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON from %s", u.Path)
	}
	return body, nil
}

// Status reports whether the backend health endpoint answers.
type Status struct {
	IsAvailable bool      `json:"isAvailable"`
	BaseURL     string    `json:"baseUrl"`
	Timestamp   time.Time `json:"timestamp"`
}

// Status probes system/health without falling back.
func (c *Client) Status(ctx context.Context) Status {
	_, err := c.get(ctx, "system", "health", nil)
	return Status{IsAvailable: err == nil, BaseURL: c.BaseURL, Timestamp: time.Now().UTC()}
}

// Fixture returns the embedded data for group/name. An array fixture is
// narrowed by query: limit truncates, and any other parameter keeps the
// elements whose field of that name equals (or, for list fields, contains)
// the value.
func Fixture(group, name string, query url.Values) (json.RawMessage, error) {
	raw, err := fixtureFS.ReadFile("fixtures/" + group + ".json")
	if err != nil {
		return nil, ErrNoFixture
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", group, err)
	}
	data, ok := entries[name]
	if !ok {
		return nil, ErrNoFixture
	}
	if len(query) == 0 {
		return data, nil
	}

	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		// Not an array of objects; query does not apply.
		return data, nil
	}
	items = narrow(items, query)
	return json.Marshal(items)
}

func narrow(items []map[string]any, query url.Values) []map[string]any {
	out := items
	for key, values := range query {
		if key == "limit" || len(values) == 0 || values[0] == "" || !hasField(out, key) {
			continue
		}
		want := values[0]
		out = slices.DeleteFunc(slices.Clone(out), func(item map[string]any) bool {
			switch v := item[key].(type) {
			case nil:
				return true
			case []any:
				return !slices.Contains(cast.ToStringSlice(v), want)
			default:
				return cast.ToString(v) != want
			}
		})
	}
	if n, err := strconv.Atoi(query.Get("limit")); err == nil && n >= 0 && n < len(out) {
		out = out[:n]
	}
	if out == nil {
		out = []map[string]any{}
	}
	return out
}

// hasField reports whether any item carries key. Parameters the fixture
// has no field for are ignored, as the backend would treat them as paging
// or presentation hints.
func hasField(items []map[string]any, key string) bool {
	for _, item := range items {
		if _, ok := item[key]; ok {
			return true
		}
	}
	return false
}
