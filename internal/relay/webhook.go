package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/jieqi-arena/pkg/matchdto"
)

// HeaderProvider allows injecting per-request headers.
type HeaderProvider func() map[string]string

// Webhook posts match events as JSON to a single URL.
type Webhook struct {
	url     string
	http    *fasthttp.Client
	headers HeaderProvider
	log     *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
	gameEvents     bool
}

type WebhookOption func(*Webhook)

func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.defaultTimeout = d }
}

func WithRetry(n int) WebhookOption {
	return func(w *Webhook) { w.retryMax = n }
}

func WithHeaderProvider(h HeaderProvider) WebhookOption {
	return func(w *Webhook) { w.headers = h }
}

// WithGameEvents also posts every finished game, not only the summary.
func WithGameEvents(on bool) WebhookOption {
	return func(w *Webhook) { w.gameEvents = on }
}

func WithWebhookLogger(log *zap.Logger) WebhookOption {
	return func(w *Webhook) {
		if log != nil {
			w.log = log
		}
	}
}

func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:            strings.TrimSpace(url),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		log:            zap.NewNop(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Event is the webhook body.
type Event struct {
	Type    string                 `json:"type"`
	Game    *matchdto.GameRecord   `json:"game,omitempty"`
	Summary *matchdto.MatchSummary `json:"summary,omitempty"`
}

func (w *Webhook) GameFinished(ctx context.Context, rec matchdto.GameRecord, _ bool) {
	if !w.gameEvents {
		return
	}
	rec.Moves = nil
	if err := w.Post(ctx, Event{Type: "game_finished", Game: &rec}); err != nil {
		w.log.Warn("webhook_game_failed", zap.Int("game", rec.GameNumber), zap.Error(err))
	}
}

func (w *Webhook) StandingsUpdated(context.Context, matchdto.Standings) {}

func (w *Webhook) MatchFinished(ctx context.Context, sum matchdto.MatchSummary) {
	if err := w.Post(ctx, Event{Type: "match_finished", Summary: &sum}); err != nil {
		w.log.Warn("webhook_summary_failed", zap.String("match", sum.Standings.MatchID), zap.Error(err))
		return
	}
	w.log.Info("webhook_summary_sent", zap.String("match", sum.Standings.MatchID))
}

// Post sends one JSON body. Failures the receiver may recover from are
// retried with backoff, never past the context deadline.
func (w *Webhook) Post(ctx context.Context, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	attempts := max(w.retryMax, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		wait, err := w.deliver(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if wait < 0 || attempt == attempts {
			break
		}
		if wait == 0 {
			wait = retryDelay(attempt)
		}
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < wait {
			break
		}
		w.log.Debug("webhook_retry", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return lastErr
		case <-t.C:
		}
	}
	return lastErr
}

// deliver makes one request. The returned wait is negative when the failure
// is final, zero for the default backoff, or the receiver's Retry-After.
func (w *Webhook) deliver(ctx context.Context, payload []byte) (time.Duration, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(w.url)
	req.Header.SetContentType("application/json")
	if w.headers != nil {
		for k, v := range w.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	req.SetBody(payload)

	deadline := time.Now().Add(w.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := w.http.DoDeadline(req, resp, deadline); err != nil {
		if ctx.Err() != nil {
			return -1, fmt.Errorf("webhook request failed: %w", err)
		}
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return 0, nil
	}
	body := resp.Body()
	if len(body) > 256 {
		body = body[:256]
	}
	err := fmt.Errorf("webhook error: status=%d body=%s", status, body)
	switch {
	case status == fasthttp.StatusTooManyRequests, status == fasthttp.StatusServiceUnavailable:
		return retryAfter(resp.Header.Peek(fasthttp.HeaderRetryAfter)), err
	case status == fasthttp.StatusRequestTimeout, status >= 500 && status != fasthttp.StatusNotImplemented:
		return 0, err
	default:
		return -1, err
	}
}

// retryDelay is 250ms doubled per attempt, at most 2s. Summaries are small
// and a match has just ended, so the receiver gets a few quick tries.
func retryDelay(attempt int) time.Duration {
	return 250 * time.Millisecond << min(max(attempt-1, 0), 3)
}

// retryAfter reads a delay in seconds, capped at 10s. Missing or dated
// values fall back to the default backoff.
func retryAfter(v []byte) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(string(v)))
	if err != nil || n <= 0 {
		return 0
	}
	return min(time.Duration(n)*time.Second, 10*time.Second)
}
