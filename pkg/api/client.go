package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskstream/chatkit/pkg/model"
)

// Client talks to the support backend's REST surface. All methods are
// safe for concurrent use; results and errors are returned to the caller
// untouched so the coordinator can propagate them verbatim.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger overrides the client's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient builds a Client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type pluginConfigResponse struct {
	Plugin model.Plugin `json:"plugin"`
	Bot    *model.Bot   `json:"bot,omitempty"`
}

// FetchPluginConfig loads the widget's plugin configuration and its
// optional bot descriptor.
func (c *Client) FetchPluginConfig(ctx context.Context, pluginID string) (model.Plugin, *model.Bot, error) {
	var out pluginConfigResponse
	op := "fetch plugin config"
	path := fmt.Sprintf("/api/plugins/%s", url.PathEscape(pluginID))
	if err := c.getJSON(ctx, op, path, &out); err != nil {
		return model.Plugin{}, nil, err
	}
	return out.Plugin, out.Bot, nil
}

// FetchWelcomeScript loads the welcome script identified by key
// ("welcome" or "welcome_ghost").
func (c *Client) FetchWelcomeScript(ctx context.Context, pluginID, key string) (model.Script, error) {
	var out model.Script
	op := "fetch welcome script"
	path := fmt.Sprintf("/api/plugins/%s/scripts/%s", url.PathEscape(pluginID), url.PathEscape(key))
	if err := c.getJSON(ctx, op, path, &out); err != nil {
		return model.Script{}, err
	}
	return out, nil
}

// FetchChat loads one chat by id, including the staff roster.
func (c *Client) FetchChat(ctx context.Context, chatID string) (model.ChatSnapshot, error) {
	var out model.ChatSnapshot
	op := "fetch chat"
	path := fmt.Sprintf("/api/chats/%s", url.PathEscape(chatID))
	if err := c.getJSON(ctx, op, path, &out); err != nil {
		return model.ChatSnapshot{}, err
	}
	return out, nil
}

type createChatRequest struct {
	PluginID string     `json:"pluginId"`
	OpenedAt *time.Time `json:"openedAt,omitempty"`
}

type createChatResponse struct {
	Chat    model.Chat    `json:"chat"`
	Session model.Session `json:"session"`
}

// CreateChat creates a brand-new chat for the plugin. A zero openedAt is
// omitted from the request.
func (c *Client) CreateChat(ctx context.Context, pluginID string, openedAt time.Time) (model.Chat, model.Session, error) {
	req := createChatRequest{PluginID: pluginID}
	if !openedAt.IsZero() {
		req.OpenedAt = &openedAt
	}
	var out createChatResponse
	if err := c.postJSON(ctx, "create chat", "/api/chats", req, &out); err != nil {
		return model.Chat{}, model.Session{}, err
	}
	return out.Chat, out.Session, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return c.doJSON(op, req, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(op, req, out)
}

func (c *Client) doJSON(op string, req *http.Request, out any) error {
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Msg("request failed")
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("elapsed", time.Since(started)).Msg("request done")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Op: op, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Op: op, Err: err}
	}
	return nil
}
