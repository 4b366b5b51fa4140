// Package backend talks to the conversational backend.
//
// A turn is a single JSON POST: the user's utterance as a base64 WAV plus a
// snapshot of the conversation state. The reply carries the character's text
// and speech, an updated negotiation state and happiness score, and an
// optional suggested reply for the user. [Client.SendTurn] returns at once
// with a [Pending] handle; the exchange runs in the background and is bounded
// only by the client timeout.
//
// The client does not touch conversation state. Applying the response is the
// caller's job.
package backend

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

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samvad-xr/samvad/internal/observe"
	"github.com/samvad-xr/samvad/internal/resilience"
	"github.com/samvad-xr/samvad/pkg/audio"
	"github.com/samvad-xr/samvad/pkg/types"
)

// DefaultTimeout bounds one exchange.
const DefaultTimeout = 60 * time.Second

// maxResponseBytes caps the response body. Five minutes of 48 kHz stereo
// reply audio fits with room to spare.
const maxResponseBytes = 128 << 20

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The turn timeout is applied through
// the request context, on top of any Timeout hc sets.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-turn timeout. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCircuitBreaker guards exchanges with cb. While it is open, turns fail
// immediately with a [NetworkError] wrapping [resilience.ErrCircuitOpen].
// Configure cb with [TripsBreaker] as its IsFailure so client errors do not
// open it.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHeader adds a static header to every request, e.g. for an API gateway
// key.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// Client is safe for concurrent use, though the orchestrator only ever has
// one turn in flight.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
	headers http.Header
}

// New returns a [Client] posting to endpoint, which must be an absolute
// http or https URL.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("backend: parse url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backend: url %q must be absolute http(s)", endpoint)
	}
	c := &Client{
		url:     endpoint,
		timeout: DefaultTimeout,
		headers: make(http.Header),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string { return c.url }

// Breaker returns the circuit breaker, or nil.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// SendTurn starts one exchange and returns immediately. Cancelling ctx does
// not abort the exchange; ctx only contributes trace context and values.
func (c *Client) SendTurn(ctx context.Context, u audio.Utterance, snap types.Snapshot) *Pending {
	p := newPending(uuid.NewString())
	ctx = context.WithoutCancel(ctx)
	go func() {
		resp, err := c.exchange(ctx, p.TurnID, u, snap)
		p.complete(resp, err)
	}()
	return p
}

func (c *Client) exchange(ctx context.Context, turnID string, u audio.Utterance, snap types.Snapshot) (types.TurnResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "backend.turn",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("turn.id", turnID),
			attribute.Float64("turn.audio_seconds", u.Duration().Seconds()),
			attribute.String("turn.input_language", snap.InputLanguage),
			attribute.String("turn.target_language", snap.TargetLanguage),
		),
	)
	defer span.End()
	log := observe.Logger(ctx).With("turn_id", turnID)

	body, err := c.encode(u, snap)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.TurnResponse{}, err
	}

	start := time.Now()
	var resp types.TurnResponse
	call := func() error {
		var callErr error
		resp, callErr = c.post(ctx, turnID, body, log)
		return callErr
	}
	if c.breaker != nil {
		err = c.breaker.Execute(call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = &NetworkError{URL: c.url, Err: err}
		}
	} else {
		err = call()
	}
	elapsed := time.Since(start)

	if err != nil {
		kind := "protocol"
		var ne *NetworkError
		if errors.As(err, &ne) {
			kind = "network"
		}
		c.metrics.RecordBackendRequest(ctx, "error", elapsed.Seconds())
		c.metrics.RecordBackendError(ctx, kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		log.Warn("backend turn failed", "err", err, "kind", kind, "elapsed", elapsed)
		return types.TurnResponse{}, err
	}

	c.metrics.RecordBackendRequest(ctx, "ok", elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("turn.happiness_score", resp.HappinessScore),
		attribute.Bool("turn.reply_audio", resp.HasReplyAudio()),
	)
	log.Info("backend turn completed",
		"elapsed", elapsed,
		"negotiation_state", resp.NegotiationState,
		"happiness_score", resp.HappinessScore,
		"reply_audio", resp.HasReplyAudio(),
		"suggestion", resp.SuggestedResponse != "")
	return resp, nil
}

func (c *Client) encode(u audio.Utterance, snap types.Snapshot) ([]byte, error) {
	req, err := newTurnRequest(u, snap)
	if err != nil {
		return nil, fmt.Errorf("backend: encode utterance: %w", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: marshal request: %w", err)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, turnID string, body []byte, log *slog.Logger) (types.TurnResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return types.TurnResponse{}, &NetworkError{URL: c.url, Err: err}
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Turn-ID", turnID)
	observe.InjectHeaders(ctx, req.Header)

	res, err := c.http.Do(req)
	if err != nil {
		return types.TurnResponse{}, &NetworkError{URL: c.url, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if err != nil {
		return types.TurnResponse{}, &NetworkError{URL: c.url, Err: fmt.Errorf("read body: %w", err)}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return types.TurnResponse{}, &ProtocolError{
			StatusCode: res.StatusCode,
			Reason:     "unexpected status",
			Err:        errors.New(snippet(data)),
		}
	}
	if len(data) > maxResponseBytes {
		return types.TurnResponse{}, &ProtocolError{Reason: fmt.Sprintf("body exceeds %d bytes", maxResponseBytes)}
	}
	return parseTurnResponse(data, log)
}

// snippet returns the start of an error body for inclusion in messages.
func snippet(b []byte) string {
	const limit = 200
	s := string(bytes.TrimSpace(b))
	if len(s) > limit {
		s = s[:limit] + "…"
	}
	if s == "" {
		s = "empty body"
	}
	return s
}
