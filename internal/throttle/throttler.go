// internal/throttle/throttler.go
package throttle

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTick = 50 * time.Millisecond

	secondWindow = time.Second
	minuteWindow = time.Minute
)

var (
	// ErrThrottleTimeout means a request waited in the admission queue
	// beyond the configured guard. Retryable from the caller's side.
	ErrThrottleTimeout = errors.New("throttle queue wait exceeded limit")

	// ErrClosed means the throttler was shut down while the request was
	// still pending.
	ErrClosed = errors.New("throttler closed")
)

// Thunk is the unit of admitted work.
type Thunk func() (interface{}, error)

// Config carries the admission ceilings and drain behavior.
type Config struct {
	MaxPerSecond int
	MaxPerMinute int
	// Tick is the drain interval. Defaults to 50ms.
	Tick time.Duration
	// Jitter spreads admitted thunks over a random delay in [0, Jitter)
	// instead of firing them in a tight burst. Zero disables it.
	Jitter time.Duration
	// MaxWait rejects requests that sat in the queue longer than this.
	// Zero disables the guard and requests wait as long as it takes.
	MaxWait time.Duration
}

type outcome struct {
	result interface{}
	err    error
}

type queuedRequest struct {
	thunk      Thunk
	ctx        context.Context
	enqueuedAt time.Time
	done       chan outcome
}

// Throttler admits queued thunks in FIFO order while the per-second and
// per-minute window counters stay below their ceilings. Windows reset
// exactly at their boundary, not by leaky decay.
type Throttler struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	queue    []*queuedRequest
	secCount int
	secStart time.Time
	minCount int
	minStart time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats (accessed atomically)
	admitted uint64
	timedOut uint64
}

// Stats is a snapshot of throttler activity.
type Stats struct {
	Admitted   uint64 `json:"admitted"`
	TimedOut   uint64 `json:"timed_out"`
	QueueDepth int    `json:"queue_depth"`
}

// New creates a running Throttler. Callers must Close it to stop the drain
// loop and release pending requests.
func New(cfg Config, logger *zap.Logger) *Throttler {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	t := &Throttler{
		cfg:      cfg,
		logger:   logger.Named("throttle"),
		secStart: now,
		minStart: now,
		ctx:      ctx,
		cancel:   cancel,
	}

	t.wg.Add(1)
	go t.run()
	return t
}

// Admit enqueues the thunk and blocks until it has been admitted and
// executed, returning the thunk's own outcome. Before admission the caller
// may cancel via ctx; once admitted the thunk runs to completion.
func (t *Throttler) Admit(ctx context.Context, thunk Thunk) (interface{}, error) {
	if t.ctx.Err() != nil {
		return nil, ErrClosed
	}

	req := &queuedRequest{
		thunk:      thunk,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		done:       make(chan outcome, 1),
	}

	t.mu.Lock()
	t.queue = append(t.queue, req)
	depth := len(t.queue)
	t.mu.Unlock()

	if depth > 1 {
		t.logger.Debug("Request queued behind others", zap.Int("queue_depth", depth))
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-req.done:
		return out.result, out.err
	}
}

// run is the drain loop: every tick it rolls the windows and admits as many
// queued requests as the remaining window capacity allows.
func (t *Throttler) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case now := <-ticker.C:
			t.drain(now)
		}
	}
}

func (t *Throttler) drain(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollWindows(now)

	// Expired waiters cluster at the head in FIFO order, reject them first
	// so saturation cannot hold them hostage forever.
	if t.cfg.MaxWait > 0 {
		for len(t.queue) > 0 && now.Sub(t.queue[0].enqueuedAt) > t.cfg.MaxWait {
			req := t.queue[0]
			t.queue = t.queue[1:]
			atomic.AddUint64(&t.timedOut, 1)
			req.done <- outcome{err: ErrThrottleTimeout}
		}
	}

	for len(t.queue) > 0 && t.secCount < t.cfg.MaxPerSecond && t.minCount < t.cfg.MaxPerMinute {
		req := t.queue[0]
		t.queue = t.queue[1:]

		// The caller gave up before admission, skip without consuming capacity.
		if req.ctx != nil && req.ctx.Err() != nil {
			continue
		}

		t.secCount++
		t.minCount++
		atomic.AddUint64(&t.admitted, 1)

		t.wg.Add(1)
		go t.execute(req)
	}
}

func (t *Throttler) rollWindows(now time.Time) {
	if now.Sub(t.secStart) >= secondWindow {
		t.secStart = now
		t.secCount = 0
	}
	if now.Sub(t.minStart) >= minuteWindow {
		t.minStart = now
		t.minCount = 0
	}
}

// execute runs one admitted thunk in its own goroutine so a slow call never
// stalls draining. An error rejects only this request's waiter.
func (t *Throttler) execute(req *queuedRequest) {
	defer t.wg.Done()

	if t.cfg.Jitter > 0 {
		time.Sleep(rand.N(t.cfg.Jitter))
	}

	result, err := req.thunk()
	req.done <- outcome{result: result, err: err}
}

// Close stops the drain loop, rejects everything still queued and waits for
// in-flight thunks to finish.
func (t *Throttler) Close() {
	t.cancel()

	t.mu.Lock()
	pending := t.queue
	t.queue = nil
	t.mu.Unlock()

	for _, req := range pending {
		req.done <- outcome{err: ErrClosed}
	}
	t.wg.Wait()
}

// GetStats returns a snapshot of throttler counters.
func (t *Throttler) GetStats() Stats {
	t.mu.Lock()
	depth := len(t.queue)
	t.mu.Unlock()

	return Stats{
		Admitted:   atomic.LoadUint64(&t.admitted),
		TimedOut:   atomic.LoadUint64(&t.timedOut),
		QueueDepth: depth,
	}
}
