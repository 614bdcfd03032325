package relay

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/jieqi-arena/pkg/matchdto"
)

// Frame is one telemetry message.
type Frame struct {
	Type      string              `json:"type"`
	Line      string              `json:"line,omitempty"`
	Standings *matchdto.Standings `json:"standings,omitempty"`
	At        time.Time           `json:"at"`
}

// Telemetry streams host protocol lines and standings to a websocket
// listener. Publishing never blocks the match; frames are dropped while
// the queue is full or the connection is down.
type Telemetry struct {
	wsURL   string
	headers HeaderProvider
	log     *zap.Logger

	queue chan Frame

	maxReconnectAttempts int
	reconnectDelay       time.Duration

	conn *websocket.Conn // owned by the send loop

	dropped atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type TelemetryOption func(*Telemetry)

func WithQueueSize(n int) TelemetryOption {
	return func(t *Telemetry) {
		if n > 0 {
			t.queue = make(chan Frame, n)
		}
	}
}

func WithReconnect(maxAttempts int, delay time.Duration) TelemetryOption {
	return func(t *Telemetry) {
		t.maxReconnectAttempts = maxAttempts
		t.reconnectDelay = delay
	}
}

func WithTelemetryHeaders(h HeaderProvider) TelemetryOption {
	return func(t *Telemetry) { t.headers = h }
}

func WithTelemetryLogger(log *zap.Logger) TelemetryOption {
	return func(t *Telemetry) {
		if log != nil {
			t.log = log
		}
	}
}

func NewTelemetry(wsURL string, opts ...TelemetryOption) *Telemetry {
	t := &Telemetry{
		wsURL:                strings.TrimSpace(wsURL),
		log:                  zap.NewNop(),
		queue:                make(chan Frame, 256),
		maxReconnectAttempts: 5,
		reconnectDelay:       100 * time.Millisecond,
		stopCh:               make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the send loop. The first dial happens lazily with the
// first frame.
func (t *Telemetry) Start(ctx context.Context) {
	t.wg.Add(1)
	go t.loop(ctx)
}

// Line queues a host line. It has the signature of an output tap.
func (t *Telemetry) Line(line string) {
	t.publish(Frame{Type: "line", Line: line, At: time.Now()})
}

func (t *Telemetry) GameFinished(context.Context, matchdto.GameRecord, bool) {}

func (t *Telemetry) StandingsUpdated(_ context.Context, st matchdto.Standings) {
	t.publish(Frame{Type: "standings", Standings: &st, At: time.Now()})
}

func (t *Telemetry) MatchFinished(_ context.Context, sum matchdto.MatchSummary) {
	st := sum.Standings
	t.publish(Frame{Type: "finished", Standings: &st, At: time.Now()})
}

// Dropped reports how many frames were discarded.
func (t *Telemetry) Dropped() int64 { return t.dropped.Load() }

func (t *Telemetry) publish(f Frame) {
	if t.isStopping() {
		return
	}
	select {
	case t.queue <- f:
	default:
		t.dropped.Add(1)
	}
}

func (t *Telemetry) loop(ctx context.Context) {
	defer t.wg.Done()
	defer t.closeConn(websocket.StatusNormalClosure, "close")
	for {
		select {
		case <-t.stopCh:
			t.drain(ctx)
			return
		case <-ctx.Done():
			return
		case f := <-t.queue:
			t.send(ctx, f)
		}
	}
}

// drain flushes what is already queued when the relay is closed.
func (t *Telemetry) drain(ctx context.Context) {
	for {
		select {
		case f := <-t.queue:
			if !t.send(ctx, f) {
				return
			}
		default:
			return
		}
	}
}

func (t *Telemetry) send(ctx context.Context, f Frame) bool {
	if t.conn == nil && !t.connect(ctx) {
		t.dropped.Add(1)
		return false
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := wsjson.Write(writeCtx, t.conn, f)
	cancel()
	if err != nil {
		t.log.Warn("telemetry_write_failed", zap.Error(err))
		t.closeConn(websocket.StatusGoingAway, "reconnect")
		t.dropped.Add(1)
		return false
	}
	return true
}

func (t *Telemetry) connect(ctx context.Context) bool {
	attempts := t.maxReconnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.Dial(dialCtx, t.wsURL, &websocket.DialOptions{
			CompressionMode: websocket.CompressionNoContextTakeover,
			HTTPHeader:      t.buildHeaders(),
		})
		cancel()
		if err == nil {
			t.conn = conn
			t.log.Debug("telemetry_connected", zap.String("url", t.wsURL))
			return true
		}
		t.log.Debug("telemetry_dial_failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * t.reconnectDelay):
		}
	}
	return false
}

// Close stops the send loop after flushing queued frames.
func (t *Telemetry) Close(ctx context.Context) error {
	t.stopOnce.Do(func() { close(t.stopCh) })

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (t *Telemetry) closeConn(code websocket.StatusCode, reason string) {
	if t.conn == nil {
		return
	}
	_ = t.conn.Close(code, reason)
	t.conn = nil
}

func (t *Telemetry) isStopping() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

func (t *Telemetry) buildHeaders() http.Header {
	hdr := http.Header{}
	if t.headers == nil {
		return hdr
	}
	for k, v := range t.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
