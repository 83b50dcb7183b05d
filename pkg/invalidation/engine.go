package invalidation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sternrassler/dashboard-cache/pkg/cache"
	"github.com/Sternrassler/dashboard-cache/pkg/logging"
)

const tracerName = "github.com/Sternrassler/dashboard-cache/pkg/invalidation"

// Invalidator removes keys from named caches. *cache.Manager implements it.
type Invalidator interface {
	InvalidateRegexp(cacheName string, re *regexp.Regexp) int
	CacheNames() []string
}

// ResponseInvalidator removes cached HTTP responses. *cache.ResponseCache
// implements it.
type ResponseInvalidator interface {
	InvalidateRegexp(re *regexp.Regexp) int
}

// Publisher forwards locally queued events to other instances.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithResponseCache routes apiResponses invalidations through rc so its tag
// index stays consistent.
func WithResponseCache(rc ResponseInvalidator) Option {
	return func(e *Engine) { e.responses = rc }
}

// WithTracerProvider sets the provider for invalidation spans. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// WithPublisher publishes every queued event to other instances.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithRules replaces the default rule table.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = slices.Clone(rules) }
}

// WithClock sets the clock used for event and log timestamps.
func WithClock(clock cache.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// Engine applies invalidation rules to caches in response to events.
//
// Queued events are applied strictly in FIFO order by a single drain
// goroutine: an event, including any rule delay, is fully applied before the
// next one starts. A failing or panicking rule is logged and recorded in the
// invalidation log; the drain moves on.
type Engine struct {
	caches    Invalidator
	responses ResponseInvalidator
	publisher Publisher
	clock     cache.Clock
	logger    zerolog.Logger
	tracer    trace.Tracer

	rulesMu sync.RWMutex
	rules   []Rule

	mu         sync.Mutex
	queue      []Event
	processing bool
	closed     bool
	idle       chan struct{} // closed while no drain is running

	history *eventLog
}

// New creates an engine over caches loaded with DefaultRules.
func New(caches Invalidator, opts ...Option) *Engine {
	if caches == nil {
		panic("invalidation target cannot be nil")
	}

	idle := make(chan struct{})
	close(idle)

	e := &Engine{
		caches:  caches,
		clock:   cache.SystemClock(),
		logger:  logging.NewLogger(logging.ComponentInvalidation),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
		rules:   DefaultRules(),
		idle:    idle,
		history: newEventLog(MaxLogEntries),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// QueueInvalidation stamps ev, appends it to the queue and starts a drain if
// none is running. With a publisher configured the event is also sent to
// other instances; a publish failure is logged and does not affect the local
// invalidation.
func (e *Engine) QueueInvalidation(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock.Now()
	}
	if err := e.enqueue(ev); err != nil {
		return err
	}
	e.publish(ctx, ev)
	return nil
}

// publish forwards a local event to other instances. Failures only cost
// remote consistency and are logged.
func (e *Engine) publish(ctx context.Context, ev Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn().
			Err(err).
			Str("event", ev.Key()).
			Msg("Failed to publish invalidation event")
	}
}

// QueueRemote enqueues an event received from another instance. It is never
// published again.
func (e *Engine) QueueRemote(ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock.Now()
	}
	return e.enqueue(ev)
}

func (e *Engine) enqueue(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	e.queue = append(e.queue, ev)
	invalidationQueueDepth.Set(float64(len(e.queue)))

	e.logger.Debug().
		Str("event", ev.Key()).
		Str("entity_id", ev.EntityID).
		Int("queue_length", len(e.queue)).
		Msg("Invalidation queued")

	if !e.processing {
		e.processing = true
		e.idle = make(chan struct{})
		go e.processQueue()
	}
	return nil
}

// processQueue drains the queue one event at a time.
func (e *Engine) processQueue() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.processing = false
			close(e.idle)
			e.mu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue[0] = Event{}
		e.queue = e.queue[1:]
		invalidationQueueDepth.Set(float64(len(e.queue)))
		e.mu.Unlock()

		if err := e.processEvent(context.Background(), ev); err != nil {
			e.logger.Error().
				Err(err).
				Str("event", ev.Key()).
				Str("entity_id", ev.EntityID).
				Msg("Invalidation event failed")
		}
	}
}

// InvalidateImmediate applies ev in the calling goroutine, bypassing the
// queue, and publishes it to other instances like a queued event. ctx bounds
// rule delays.
func (e *Engine) InvalidateImmediate(ctx context.Context, ev Event) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrEngineClosed
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock.Now()
	}
	e.publish(ctx, ev)
	return e.processEvent(ctx, ev)
}

// WaitIdle blocks until the queue is drained or ctx is done.
func (e *Engine) WaitIdle(ctx context.Context) error {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting events and waits for queued events to be applied.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	if err := e.WaitIdle(ctx); err != nil {
		return fmt.Errorf("wait for invalidation queue: %w", err)
	}
	e.logger.Info().Msg("Invalidation engine stopped")
	return nil
}

// QueueLength returns the number of events waiting to be processed. The
// event currently being applied is not counted.
func (e *Engine) QueueLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// ClearQueue drops every waiting event and returns how many were dropped.
func (e *Engine) ClearQueue() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.queue)
	e.queue = nil
	invalidationQueueDepth.Set(0)
	if n > 0 {
		e.logger.Warn().Int("dropped", n).Msg("Invalidation queue cleared")
	}
	return n
}

// Rules returns a copy of the rule table.
func (e *Engine) Rules() []Rule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return slices.Clone(e.rules)
}

// AddRule appends a rule. Rules without a name or kinds are rejected.
func (e *Engine) AddRule(rule Rule) error {
	if err := rule.validate(); err != nil {
		return err
	}
	e.rulesMu.Lock()
	e.rules = append(e.rules, rule)
	e.rulesMu.Unlock()

	e.logger.Debug().Str("rule", rule.Name).Msg("Invalidation rule added")
	return nil
}

// RemoveRule removes every rule called name and reports whether any existed.
func (e *Engine) RemoveRule(name string) bool {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()

	before := len(e.rules)
	e.rules = slices.DeleteFunc(e.rules, func(r Rule) bool { return r.Name == name })
	return len(e.rules) != before
}

// Log returns up to n most recent log entries, oldest first. n <= 0 returns
// the whole log.
func (e *Engine) Log(n int) []LogEntry {
	return e.history.last(n)
}

// ClearLog empties the invalidation log.
func (e *Engine) ClearLog() {
	e.history.clear()
}

func (e *Engine) matchingRules(kind EventKind) []Rule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()

	var matched []Rule
	for _, r := range e.rules {
		if r.Matches(kind) {
			matched = append(matched, r)
		}
	}
	return matched
}

// processEvent applies every matching rule in table order and records the
// result in the log.
func (e *Engine) processEvent(ctx context.Context, ev Event) error {
	start := e.clock.Now()
	kind := ev.Kind()

	ctx, span := e.tracer.Start(ctx, "invalidation.process", trace.WithAttributes(
		attribute.String("invalidation.event", ev.Key()),
		attribute.String("invalidation.entity_id", ev.EntityID),
		attribute.String("invalidation.source", ev.Source),
	))
	defer span.End()

	rules := e.matchingRules(kind)
	if kind == KindUnknown {
		e.logger.Warn().Str("event", ev.Key()).Msg("No invalidation kind for event")
	}

	var errs []error
	processed, invalidated := 0, 0
	for _, rule := range rules {
		n, applied, err := e.applyRule(ctx, rule, ev)
		if applied {
			processed++
		}
		invalidated += n
		if err != nil {
			invalidationRuleErrorsTotal.WithLabelValues(rule.Name).Inc()
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	span.SetAttributes(
		attribute.Int("invalidation.rules", processed),
		attribute.Int("invalidation.entries", invalidated),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	duration := e.clock.Now().Sub(start)
	entry := LogEntry{
		Timestamp:          ev.Timestamp,
		EventKey:           ev.Key(),
		EntityID:           ev.EntityID,
		AffectedFields:     ev.AffectedFields,
		RulesProcessed:     processed,
		EntriesInvalidated: invalidated,
		Source:             ev.Source,
		Metadata:           ev.Metadata,
		Duration:           duration,
	}
	if err != nil {
		entry.Err = err.Error()
	}
	e.history.append(entry)

	invalidationEventsTotal.WithLabelValues(kind.String()).Inc()
	invalidationDuration.WithLabelValues(kind.String()).Observe(duration.Seconds())

	e.logger.Debug().
		Str("event", ev.Key()).
		Str("entity_id", ev.EntityID).
		Str("source", ev.Source).
		Int("rules", processed).
		Int("entries", invalidated).
		Dur("duration", duration).
		Msg("Invalidation applied")

	return err
}

// applyRule runs one rule. A panic in the condition or while invalidating
// is turned into an ErrRuleFailed error.
func (e *Engine) applyRule(ctx context.Context, rule Rule, ev Event) (invalidated int, applied bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrRuleFailed, rule.Name, r)
			e.logger.Error().
				Str("rule", rule.Name).
				Str("event", ev.Key()).
				Interface("panic", r).
				Msg("Invalidation rule panicked")
		}
	}()

	if rule.Condition != nil && !rule.Condition(ev) {
		return 0, false, nil
	}
	applied = true

	if rule.Delay > 0 {
		timer := time.NewTimer(rule.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return 0, applied, fmt.Errorf("%w: %s: %w", ErrRuleFailed, rule.Name, ctx.Err())
		}
	}

	patterns := make([]*regexp.Regexp, 0, len(rule.CachePatterns))
	for _, p := range rule.CachePatterns {
		re, compileErr := regexp.Compile(expandPattern(p, ev.EntityID))
		if compileErr != nil {
			return 0, applied, fmt.Errorf("%w: %s: %w", ErrRuleFailed, rule.Name, compileErr)
		}
		patterns = append(patterns, re)
	}

	for _, name := range e.targetCaches(rule) {
		for _, re := range patterns {
			var n int
			if name == cache.APIResponsesCache && e.responses != nil {
				n = e.responses.InvalidateRegexp(re)
			} else {
				n = e.caches.InvalidateRegexp(name, re)
			}
			if n > 0 {
				invalidationEntriesTotal.WithLabelValues(name).Add(float64(n))
			}
			invalidated += n
		}
	}

	e.logger.Debug().
		Str("rule", rule.Name).
		Str("event", ev.Key()).
		Int("entries", invalidated).
		Msg("Invalidation rule applied")
	return invalidated, applied, nil
}

// targetCaches expands AllCaches to the registered cache names.
func (e *Engine) targetCaches(rule Rule) []string {
	if !slices.Contains(rule.CacheNames, AllCaches) {
		return rule.CacheNames
	}
	names := e.caches.CacheNames()
	for _, n := range rule.CacheNames {
		if n != AllCaches && !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	return names
}
