package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/utils/cache"
)

const (
	EventTTLSuccess = 1 * time.Hour  // last event of a finished session
	EventTTLFailure = 24 * time.Hour // failed or cancelled sessions
	EventTTLPending = 24 * time.Hour // sessions still running

	subscriberBuffer    = 64
	memoryHistoryLimit  = 512
	memorySweepInterval = time.Minute
)

// Publisher receives progress events for sessions
type Publisher interface {
	Publish(ctx context.Context, event model.ProgressEvent) error
}

// Subscriber streams progress events of one session
type Subscriber interface {
	// Subscribe returns a channel of events and a func that ends the subscription
	Subscribe(ctx context.Context, sessionID string) (<-chan model.ProgressEvent, func(), error)
	// LastEvent returns the most recent event, nil when there is none
	LastEvent(ctx context.Context, sessionID string) (*model.ProgressEvent, error)
}

// Broker both publishes and serves subscriptions
type Broker interface {
	Publisher
	Subscriber
}

func eventTTL(event model.ProgressEvent) time.Duration {
	switch {
	case event.Type == model.EventComplete && event.Status == model.SessionStatusCompleted:
		return EventTTLSuccess
	case event.Type == model.EventComplete || event.Type == model.EventError:
		return EventTTLFailure
	}
	return EventTTLPending
}

// RedisBroker fans events out over Redis pub/sub so any API instance can
// stream a session's progress. The last event is kept for late subscribers.
type RedisBroker struct {
	cache *cache.RedisCache
}

// NewRedisBroker creates a Redis-backed broker
func NewRedisBroker(redisCache *cache.RedisCache) *RedisBroker {
	return &RedisBroker{cache: redisCache}
}

func (b *RedisBroker) Publish(ctx context.Context, event model.ProgressEvent) error {
	err := b.cache.SetAndPublishJSON(ctx,
		fmt.Sprintf(model.RedisKeySessionLastEvent, event.SessionID),
		fmt.Sprintf(model.RedisKeySessionEvents, event.SessionID),
		event, eventTTL(event))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (<-chan model.ProgressEvent, func(), error) {
	sub, err := b.cache.Subscribe(ctx, fmt.Sprintf(model.RedisKeySessionEvents, sessionID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan model.ProgressEvent, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			sub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event model.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Warnf("ProgressBroker: Dropping malformed event on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				}
			}
		}
	}()

	return out, stop, nil
}

func (b *RedisBroker) LastEvent(ctx context.Context, sessionID string) (*model.ProgressEvent, error) {
	var event model.ProgressEvent
	err := b.cache.GetJSON(ctx, fmt.Sprintf(model.RedisKeySessionLastEvent, sessionID), &event)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// MemoryBroker delivers events within one process. It keeps the recent
// history of each session so callers can inspect it. A session's history
// expires like the Redis last-event key does, measured from its latest event.
type MemoryBroker struct {
	mu        sync.Mutex
	history   map[string][]model.ProgressEvent
	expires   map[string]time.Time
	subs      map[string]map[chan model.ProgressEvent]struct{}
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryBroker creates an in-process broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		history: make(map[string][]model.ProgressEvent),
		expires: make(map[string]time.Time),
		subs:    make(map[string]map[chan model.ProgressEvent]struct{}),
		now:     time.Now,
	}
}

func (b *MemoryBroker) Publish(_ context.Context, event model.ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.lastSweep) >= memorySweepInterval {
		b.sweep(now)
	}

	events := append(b.history[event.SessionID], event)
	if len(events) > memoryHistoryLimit {
		events = events[len(events)-memoryHistoryLimit:]
	}
	b.history[event.SessionID] = events
	b.expires[event.SessionID] = now.Add(eventTTL(event))
	for ch := range b.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
			// slow subscriber, drop rather than block the pipeline
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, sessionID string) (<-chan model.ProgressEvent, func(), error) {
	ch := make(chan model.ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan model.ProgressEvent]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs[sessionID], ch)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return ch, stop, nil
}

func (b *MemoryBroker) LastEvent(_ context.Context, sessionID string) (*model.ProgressEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.retained(sessionID)
	if len(events) == 0 {
		return nil, nil
	}
	last := events[len(events)-1]
	return &last, nil
}

// Events returns a copy of the retained events of a session
func (b *MemoryBroker) Events(sessionID string) []model.ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.ProgressEvent(nil), b.retained(sessionID)...)
}

// Subscribers reports how many streams are attached to a session
func (b *MemoryBroker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

// retained returns the history of a session unless it has expired.
// Callers hold b.mu.
func (b *MemoryBroker) retained(sessionID string) []model.ProgressEvent {
	if exp, ok := b.expires[sessionID]; ok && !b.now().Before(exp) {
		return nil
	}
	return b.history[sessionID]
}

// sweep drops expired histories of sessions nobody is streaming.
// Callers hold b.mu.
func (b *MemoryBroker) sweep(now time.Time) {
	b.lastSweep = now
	for id, exp := range b.expires {
		if now.Before(exp) || len(b.subs[id]) > 0 {
			continue
		}
		delete(b.expires, id)
		delete(b.history, id)
	}
}
