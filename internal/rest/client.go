// Package rest is the client for the dashboard's chat REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/matheus3301/chatdeck/internal/store"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults for Options fields left zero.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultRPS             = 10
	DefaultBurst           = 20
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
)

// Options configures the client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	RPS             float64
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// ChatSummary is the chat-list record returned by GET /chats. The summary
// carries the server-reported last-message timestamp used for change
// detection; full message lists come from ListMessages.
type ChatSummary struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	ProfileImage  string         `json:"profileImage,omitempty"`
	LastMessage   *store.Message `json:"lastMessage"`
	LastMessageAt int64          `json:"lastMessageTimestamp"`
}

// Client talks to the REST API. All calls go through a request-rate
// limiter and a circuit breaker so a failing backend is backed off instead
// of hammered.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a REST client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RPS <= 0 {
		opts.RPS = DefaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = DefaultBreakerTimeout
	}

	st := gobreaker.Settings{
		Name:        "rest",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		base:    opts.BaseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		cb:      gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

// ListChats fetches the chat list summaries.
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	var out []ChatSummary
	if err := c.getJSON(ctx, "/chats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetChat fetches a single chat summary.
func (c *Client) GetChat(ctx context.Context, chatID string) (*ChatSummary, error) {
	var out ChatSummary
	if err := c.getJSON(ctx, "/chats/"+url.PathEscape(chatID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages fetches a chat's full message list, ascending by timestamp.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]*store.Message, error) {
	var out []*store.Message
	if err := c.getJSON(ctx, "/chats/"+url.PathEscape(chatID)+"/messages", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendText posts a text message and returns the server's message echo.
func (c *Client) SendText(ctx context.Context, chatID, content string) (*store.Message, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, err
	}
	var out store.Message
	if err := c.post(ctx, "/chats/"+url.PathEscape(chatID)+"/send",
		"application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMedia posts an image with an optional caption as multipart form data
// and returns the server's message echo.
func (c *Client) SendMedia(ctx context.Context, chatID string, image io.Reader, filename, caption string) (*store.Message, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, err
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out store.Message
	if err := c.post(ctx, "/chats/"+url.PathEscape(chatID)+"/send",
		mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	return c.do(ctx, http.MethodPost, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
		}
		if out == nil {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
		return nil, nil
	})
	return err
}
