// Package resilience protects the sale path from a failing dependency.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker opens once the failure ratio over at least minRequests calls
// reaches failureRatio. After openFor it lets a single trial call through; other
// callers are refused until that call reports or another openFor passes.
type Breaker struct {
	mu           sync.Mutex
	state        State
	trialAt      time.Time
	failures     int
	calls        int
	minRequests  int
	failureRatio float64
	openedAt     time.Time
	openFor      time.Duration
	dependency   string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewBreaker constructs a closed breaker.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = 0.5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		dependency:   "default",
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

// WithTarget names the protected dependency in metrics and logs.
func (b *Breaker) WithTarget(dependency string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d := strings.TrimSpace(dependency); d != "" {
		b.dependency = d
	}
	b.observeStateLocked()
	return b
}

// WithLogger sets the logger used for transitions.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker whose cool-off
// elapsed moves to half-open and admits one trial call. A trial that never
// reports is replaced after openFor.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if now.Sub(b.trialAt) < b.openFor {
			return false
		}
	default:
		if now.Sub(b.openedAt) < b.openFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
	}
	b.trialAt = now
	return true
}

// Report records the outcome of an admitted call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}
	b.calls++
	if !success {
		b.failures++
	}
	if b.calls < b.minRequests {
		return
	}
	if float64(b.failures)/float64(b.calls) >= b.failureRatio {
		b.moveLocked(ctx, Open)
		return
	}
	if b.calls > b.minRequests*2 {
		b.calls /= 2
		b.failures /= 2
	}
}

// Do runs fn when the breaker admits it. healthy decides which errors still
// count as a working dependency, such as business rule rejections; nil
// treats only a nil error as healthy.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error, healthy func(error) bool) error {
	if b == nil {
		return fn(ctx)
	}
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	ok := err == nil
	if !ok && healthy != nil {
		ok = healthy(err)
	}
	b.Report(ctx, ok)
	return err
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.calls, b.failures = 0, 0
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.observeStateLocked()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.dependency, prev.String(), next.String()).Inc()
	}
	evt := b.loggerFor(ctx).Warn()
	if next == Closed {
		evt = b.loggerFor(ctx).Info()
	}
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Str("dependency", b.dependency).Str("from", prev.String()).Str("to", next.String()).Msg("breaker transition")
}

func (b *Breaker) observeStateLocked() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.dependency).Set(float64(b.state))
	}
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &b.logger
}

// Backoff returns base·2^(attempt-1) spread by ±jitterPct.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*jitter)
}
