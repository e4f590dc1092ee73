package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cronverge/cronverge/pkg/engine"
)

// EventSubscriber is a function that handles run events.
type EventSubscriber func(event engine.Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event engine.Event) bool

// Broadcaster fans run events out to sinks and subscribers. Sinks are
// durable destinations such as the run store; subscribers are in-process
// listeners such as the watch console. Delivery failures are logged and
// never propagate back into the run.
type Broadcaster struct {
	config      EventsConfig
	buffer      chan engine.Event
	sinks       []engine.EventPublisher
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

var _ engine.EventPublisher = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster with the given configuration.
func NewBroadcaster(cfg EventsConfig) (*Broadcaster, error) {
	if !cfg.Enabled {
		return &Broadcaster{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Broadcaster{
		config:      cfg,
		buffer:      make(chan engine.Event, cfg.BufferSize),
		sinks:       make([]engine.EventPublisher, 0),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		b.wg.Add(1)
		go b.processEvents()
	}

	return b, nil
}

// Publish delivers the event to every sink and subscriber. ID, timestamp and
// level are filled in when the caller leaves them empty.
func (b *Broadcaster) Publish(ctx context.Context, event *engine.Event) error {
	if !b.config.Enabled || event == nil {
		return nil
	}

	ev := *event
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Level == "" {
		ev.Level = ev.Type.Severity()
	}

	b.mu.RLock()
	for _, filter := range b.filters {
		if !filter(ev) {
			b.mu.RUnlock()
			return nil
		}
	}
	b.mu.RUnlock()

	if b.config.EnableAsync {
		select {
		case b.buffer <- ev:
			return nil
		case <-b.ctx.Done():
			return fmt.Errorf("event broadcaster stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	b.dispatch(ctx, ev)
	return nil
}

// AddSink registers a durable event destination. Sink failures are logged
// at debug level; events are advisory and must not fail the run.
func (b *Broadcaster) AddSink(sink engine.EventPublisher) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sinks = append(b.sinks, sink)
}

// Subscribe adds an in-process event subscriber. A nil filter receives every
// event.
func (b *Broadcaster) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = append(b.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter applied before any delivery.
func (b *Broadcaster) AddFilter(filter EventFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.filters = append(b.filters, filter)
}

// processEvents delivers buffered events in publish order.
func (b *Broadcaster) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.buffer:
			b.dispatch(b.ctx, event)
		case <-b.ctx.Done():
			b.drain()
			return
		}
	}
}

// drain delivers whatever is still buffered during shutdown.
func (b *Broadcaster) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case event := <-b.buffer:
			b.dispatch(ctx, event)
		default:
			return
		}
	}
}

// dispatch delivers one event to every sink and matching subscriber.
// Subscribers run on the delivery goroutine so events arrive in publish
// order; they must not block.
func (b *Broadcaster) dispatch(ctx context.Context, event engine.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sink := range b.sinks {
		if err := sink.Publish(ctx, &event); err != nil {
			log.Debug().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Event sink delivery failed")
		}
	}

	for _, entry := range b.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the broadcaster and flushes buffered events.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	if !b.config.Enabled {
		return nil
	}

	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event broadcaster shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level
// or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		"info":    0,
		"warning": 1,
		"error":   2,
	}

	minLevelValue := levels[minLevel]

	return func(event engine.Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...engine.EventType) EventFilter {
	typeSet := make(map[engine.EventType]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event engine.Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event engine.Event) bool {
		return event.RunID == runID
	}
}

// FilterByDeployment creates a filter that only allows events for a specific
// deployment.
func FilterByDeployment(name string) EventFilter {
	return func(event engine.Event) bool {
		return event.Deployment == name
	}
}
