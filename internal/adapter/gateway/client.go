// Package gateway talks to the messaging gateway: the HTTP service that holds
// the account session and exposes notification settings and self messages.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/correlation"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout    = 15 * time.Second
	maxErrorBodyBytes = 512
)

// Client is the HTTP client of the messaging gateway. It implements the
// status provider and mute command ports.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	metrics *metrics.GatewayMetrics
}

var (
	_ domain.MuteStatusProvider = (*Client)(nil)
	_ domain.MuteCommandIssuer  = (*Client)(nil)
)

type clientOptions struct {
	maxRetries   int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	transport    http.RoundTripper
	metrics      *metrics.GatewayMetrics
	logger       *slog.Logger
}

type Option func(*clientOptions)

// WithMaxRetries sets how often connection errors and 5xx responses are retried.
func WithMaxRetries(n int) Option {
	return func(o *clientOptions) { o.maxRetries = n }
}

// WithRetryWait bounds the wait between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(o *clientOptions) {
		o.retryWaitMin = minWait
		o.retryWaitMax = maxWait
	}
}

// WithTransport replaces the pooled default transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gateway URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway URL must be absolute, got %q", baseURL)
	}

	o := clientOptions{
		maxRetries:   3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	transport := o.transport
	if transport == nil {
		transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = transport
	retryClient.RetryMax = o.maxRetries
	retryClient.RetryWaitMin = o.retryWaitMin
	retryClient.RetryWaitMax = o.retryWaitMax
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: o.logger.With("subsystem", "gateway")})
	retryClient.CheckRetry = retryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	httpClient := retryClient.StandardClient()
	httpClient.Timeout = defaultTimeout

	return &Client{
		base:    base,
		token:   token,
		http:    httpClient,
		metrics: o.metrics,
	}, nil
}

// retryPolicy leaves 429 to the caller, which backs off at the command level.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// leveledSlog rewrites retryablehttp ERROR logs to WARN, since they are retried.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, kv ...any) { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Info(msg string, kv ...any)  { l.inner.Debug(msg, kv...) }
func (l leveledSlog) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }

type notifySettings struct {
	MuteUntil        int64  `json:"mute_until"`
	Silent           bool   `json:"silent"`
	AccessCredential string `json:"access_credential,omitempty"`
}

type updateNotifySettings struct {
	MuteUntil        int64  `json:"mute_until"`
	AccessCredential string `json:"access_credential,omitempty"`
}

type selfMessage struct {
	Text string `json:"text"`
}

// FetchStatus returns the notification settings of conv.
func (c *Client) FetchStatus(ctx context.Context, conv domain.Conversation) (domain.MuteStatus, error) {
	var settings notifySettings
	if err := c.do(ctx, "fetch_status", http.MethodGet, settingsPath(conv), nil, &settings); err != nil {
		return domain.MuteStatus{}, fmt.Errorf("failed to fetch notify settings of %s: %w", conv, err)
	}

	return domain.MuteStatus{
		MuteUntil:  fromUnix(settings.MuteUntil),
		Silent:     settings.Silent,
		Credential: settings.AccessCredential,
	}, nil
}

// SetMute mutes conv until the given time.
func (c *Client) SetMute(ctx context.Context, conv domain.Conversation, credential string, until time.Time) error {
	body := updateNotifySettings{
		MuteUntil:        toUnix(until),
		AccessCredential: credential,
	}
	if err := c.do(ctx, "set_mute", http.MethodPut, settingsPath(conv), body, nil); err != nil {
		return fmt.Errorf("failed to update notify settings of %s: %w", conv, err)
	}
	return nil
}

// SendSelfMessage posts text to the account's own saved-messages conversation.
func (c *Client) SendSelfMessage(ctx context.Context, text string) error {
	if err := c.do(ctx, "send_self_message", http.MethodPost, "messages/self", selfMessage{Text: text}, nil); err != nil {
		return fmt.Errorf("failed to send self message: %w", err)
	}
	return nil
}

// Ping checks that the gateway is reachable and its session is up.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveRequest(operation, resultLabel(err), time.Since(start).Seconds())
		}
	}()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set(correlation.Header, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

// statusError maps gateway status codes onto domain errors.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	detail := fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w (%s)", domain.ErrRateLimited, detail)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w (%s)", domain.ErrConversationNotFound, detail)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w (%s)", domain.ErrGatewayRejected, detail)
	default:
		return fmt.Errorf("gateway error (%s)", detail)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrGatewayRejected):
		return "rejected"
	default:
		return "error"
	}
}

func settingsPath(conv domain.Conversation) string {
	return "conversations/" + url.PathEscape(string(conv.Class)) + "/" + url.PathEscape(conv.ID) + "/notify-settings"
}

// Unix seconds on the wire, 0 meaning not muted.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(secs int64) time.Time {
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
