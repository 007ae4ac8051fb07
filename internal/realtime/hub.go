package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"coach-chat/internal/feed"
	"coach-chat/internal/models"
	"coach-chat/internal/observability"
)

const defaultBuffer = 64

var ErrUnknownSubscription = errors.New("unknown subscription")

// Hub fans insert events out to subscriptions keyed by scope. Each subscription has its
// own buffered queue drained by a single goroutine, so callbacks for one subscription
// run sequentially and in publish order.
type Hub struct {
	rooms  map[string]map[feed.Subscription]*subscriber
	subs   map[feed.Subscription]*subscriber
	next   feed.Subscription
	buffer int
	log    *zap.Logger
	mu     sync.RWMutex
}

type subscriber struct {
	id       feed.Subscription
	scopeKey string
	events   chan models.InsertRow
	done     chan struct{}
	once     sync.Once
	onInsert func(models.InsertRow)
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewHub creates an empty hub. buffer bounds the per-subscription queue; a full queue
// drops events.
func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[feed.Subscription]*subscriber),
		subs:   make(map[feed.Subscription]*subscriber),
		buffer: buffer,
		log:    log,
	}
}

var _ feed.EventFeed = (*Hub)(nil)

// Subscribe registers onInsert for rows of scope. The subscription ends on Unsubscribe
// or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, scope models.Scope, onInsert func(models.InsertRow)) (feed.Subscription, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	if onInsert == nil {
		return 0, errors.New("nil insert callback")
	}

	h.mu.Lock()
	h.next++
	sub := &subscriber{
		id:       h.next,
		scopeKey: scope.Key(),
		events:   make(chan models.InsertRow, h.buffer),
		done:     make(chan struct{}),
		onInsert: onInsert,
	}
	if _, ok := h.rooms[sub.scopeKey]; !ok {
		h.rooms[sub.scopeKey] = make(map[feed.Subscription]*subscriber)
	}
	h.rooms[sub.scopeKey][sub.id] = sub
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	observability.SetFeedSubscriptions(count)
	go h.deliver(ctx, sub)
	return sub.id, nil
}

// Unsubscribe removes a subscription and stops its delivery goroutine. A callback
// already running is not interrupted.
func (h *Hub) Unsubscribe(id feed.Subscription) error {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		if room, exists := h.rooms[sub.scopeKey]; exists {
			delete(room, id)
			if len(room) == 0 {
				delete(h.rooms, sub.scopeKey)
			}
		}
	}
	count := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return ErrUnknownSubscription
	}
	sub.stop()
	observability.SetFeedSubscriptions(count)
	return nil
}

// Publish queues row for every subscription of its scope.
func (h *Hub) Publish(row models.InsertRow) {
	key := row.Scope.Key()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.rooms[key] {
		select {
		case sub.events <- row:
		default:
			observability.IncFeedDropped()
			h.log.Warn("feed subscriber queue full, dropping event",
				zap.Uint64("subscription", uint64(sub.id)),
				zap.String("scope", key),
				zap.String("message_id", row.ID))
		}
	}
}

// Subscribers reports how many subscriptions follow scope.
func (h *Hub) Subscribers(scope models.Scope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[scope.Key()])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[feed.Subscription]*subscriber)
	h.rooms = make(map[string]map[feed.Subscription]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	observability.SetFeedSubscriptions(0)
}

func (h *Hub) deliver(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			_ = h.Unsubscribe(sub.id)
			return
		case row := <-sub.events:
			select {
			case <-sub.done:
				return
			default:
			}
			sub.onInsert(row)
		}
	}
}
