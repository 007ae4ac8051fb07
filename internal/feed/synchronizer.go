package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"coach-chat/internal/models"
	"coach-chat/internal/observability"
)

const (
	// DefaultLimit is the number of messages loaded on activation.
	DefaultLimit          = 50
	defaultResolveTimeout = 5 * time.Second
)

// Contract errors a Gateway returns so the synchronizer can classify failures.
var (
	ErrNotFound  = errors.New("message not found")
	ErrNotAuthor = errors.New("actor is not the message author")
)

// State is the lifecycle position of a Synchronizer.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSubscribing
	StateLive
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateErrored:
		return "errored"
	default:
		return "idle"
	}
}

// ChangeKind tells listeners how the store changed.
type ChangeKind string

const (
	ChangeReset  ChangeKind = "reset"
	ChangeInsert ChangeKind = "insert"
	ChangeRemove ChangeKind = "remove"
	ChangeRead   ChangeKind = "read"
)

// Change describes one store mutation of the active scope.
type Change struct {
	Kind     ChangeKind
	Scope    models.Scope
	Message  models.Message
	Messages []models.Message
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLimit sets how many messages Activate loads.
func WithLimit(limit int) Option {
	return func(s *Synchronizer) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Synchronizer) {
		if log != nil {
			s.log = log
		}
	}
}

// WithResolveTimeout bounds the author lookup done for each insert event.
func WithResolveTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.resolveTimeout = d
		}
	}
}

// Synchronizer keeps a Store consistent with the gateway and the event feed for one
// scope at a time, on behalf of one user.
type Synchronizer struct {
	gateway Gateway
	blobs   BlobStorage
	events  EventFeed
	userID  string

	limit          int
	resolveTimeout time.Duration
	log            *zap.Logger
	tracer         trace.Tracer

	store *Store

	// mu serializes store mutation, state transitions and generation checks.
	mu         sync.Mutex
	state      State
	scope      models.Scope
	generation uint64
	sub        Subscription
	subscribed bool
	listeners  []func(Change)
}

// NewSynchronizer wires a synchronizer acting as userID.
func NewSynchronizer(gateway Gateway, blobs BlobStorage, events EventFeed, userID string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		gateway:        gateway,
		blobs:          blobs,
		events:         events,
		userID:         userID,
		limit:          DefaultLimit,
		resolveTimeout: defaultResolveTimeout,
		log:            zap.NewNop(),
		tracer:         otel.Tracer("coach-chat/feed"),
		store:          NewStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the message store for reading.
func (s *Synchronizer) Store() *Store {
	return s.store
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scope returns the scope of the last activation.
func (s *Synchronizer) Scope() models.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// UserID returns the user the synchronizer acts as.
func (s *Synchronizer) UserID() string {
	return s.userID
}

// OnChange registers a listener called after every store mutation. Listeners run
// while the synchronizer lock is held: they may read the Store but must not call
// Synchronizer methods.
func (s *Synchronizer) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Activate loads the scope and subscribes to its insert events. Any previous
// subscription is released first. Failures leave the synchronizer Errored; callers
// retry by calling Activate again.
func (s *Synchronizer) Activate(ctx context.Context, scope models.Scope) error {
	if err := scope.Validate(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	ctx, span := s.tracer.Start(ctx, "feed.activate", trace.WithAttributes(attribute.String("scope", scope.Key())))
	defer span.End()

	s.Deactivate()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.scope = scope
	s.state = StateLoading
	s.mu.Unlock()

	records, err := s.gateway.FetchMessages(ctx, scope, s.limit)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return s.fail(gen, &GatewayError{Reason: "fetch messages", Err: err})
	}

	// newest first from the gateway, oldest first in the store
	ordered := make([]models.Message, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Scope.Key() != scope.Key() {
			continue
		}
		ordered = append(ordered, records[i])
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		observability.IncFeedEvent("superseded")
		return ErrSuperseded
	}
	s.store.Initialize(ordered)
	s.state = StateSubscribing
	s.notifyLocked(Change{Kind: ChangeReset, Messages: s.store.Snapshot()})
	s.mu.Unlock()

	// The subscription outlives ctx; it is released by Deactivate.
	sub, err := s.events.Subscribe(context.WithoutCancel(ctx), scope, func(row models.InsertRow) {
		s.handleInsert(gen, row)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return s.fail(gen, &SubscriptionError{Reason: "subscribe " + scope.Key(), Err: err})
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		if err := s.events.Unsubscribe(sub); err != nil {
			s.log.Warn("release stale subscription failed", zap.String("scope", scope.Key()), zap.Error(err))
		}
		observability.IncFeedEvent("superseded")
		return ErrSuperseded
	}
	s.sub = sub
	s.subscribed = true
	s.state = StateLive
	s.mu.Unlock()

	s.log.Debug("feed live", zap.String("scope", scope.Key()), zap.String("user_id", s.userID), zap.Int("messages", len(ordered)))
	return nil
}

// Deactivate releases the subscription and returns to Idle. It is safe to call in any
// state and more than once. No callback changes the store after it returns; the store
// keeps its contents.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	s.generation++
	sub, had := s.sub, s.subscribed
	s.subscribed = false
	s.sub = 0
	s.state = StateIdle
	s.mu.Unlock()

	if !had {
		return
	}
	if err := s.events.Unsubscribe(sub); err != nil {
		s.log.Warn("unsubscribe failed", zap.Uint64("subscription", uint64(sub)), zap.Error(err))
	}
}

// Reload refetches the active scope while keeping the subscription. From Idle or
// Errored it performs a full Activate of the last scope. Messages merged from insert
// events while the fetch was in flight survive the reload.
func (s *Synchronizer) Reload(ctx context.Context) error {
	s.mu.Lock()
	scope, state, gen := s.scope, s.state, s.generation
	before := make(map[string]struct{}, s.store.Len())
	for _, m := range s.store.Snapshot() {
		before[m.ID] = struct{}{}
	}
	s.mu.Unlock()

	if state != StateLive && state != StateSubscribing {
		return s.Activate(ctx, scope)
	}

	records, err := s.gateway.FetchMessages(ctx, scope, s.limit)
	if err != nil {
		return &GatewayError{Reason: "fetch messages", Err: err}
	}
	ordered := make([]models.Message, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Scope.Key() == scope.Key() {
			ordered = append(ordered, records[i])
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrSuperseded
	}
	// entries that arrived after the reload started may be missing from the fetch
	var arrived []models.Message
	for _, m := range s.store.Snapshot() {
		if _, ok := before[m.ID]; !ok {
			arrived = append(arrived, m)
		}
	}
	s.store.Initialize(ordered)
	for _, m := range arrived {
		s.store.Merge(m)
	}
	s.notifyLocked(Change{Kind: ChangeReset, Messages: s.store.Snapshot()})
	return nil
}

// Send writes a message to the active scope. The message becomes visible when its
// insert event arrives; it is never appended locally.
func (s *Synchronizer) Send(ctx context.Context, body string, attachment *Attachment) error {
	body = strings.TrimSpace(body)
	hasAttachment := attachment != nil && len(attachment.Data) > 0
	if body == "" && !hasAttachment {
		return &ValidationError{Reason: "message is empty"}
	}

	scope, ok := s.activeScope()
	if !ok {
		return &ValidationError{Reason: "no active scope"}
	}

	ctx, span := s.tracer.Start(ctx, "feed.send", trace.WithAttributes(
		attribute.String("scope", scope.Key()),
		attribute.Bool("attachment", hasAttachment),
	))
	defer span.End()

	var url string
	if hasAttachment {
		var err error
		url, err = s.blobs.Upload(ctx, s.userID, attachment.Data, attachment.ContentType)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return &StorageError{Reason: "upload attachment", Err: err}
		}
	}
	if body == "" {
		body = models.AttachmentPlaceholder
	}

	if _, err := s.gateway.InsertMessage(ctx, scope, s.userID, body, url); err != nil {
		span.SetStatus(codes.Error, err.Error())
		if url != "" {
			if derr := s.blobs.Delete(context.WithoutCancel(ctx), url); derr != nil {
				s.log.Warn("orphaned attachment", zap.String("url", url), zap.Error(derr))
			}
		}
		return &GatewayError{Reason: "insert message", Err: err}
	}
	return nil
}

// Delete removes a message authored by the current user. The store is updated as
// soon as the gateway confirms; no delete event is ever delivered by the feed.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Reason: "message id is required"}
	}

	msg, ok := s.store.Get(id)
	if !ok {
		var err error
		msg, err = s.gateway.FetchOne(ctx, id)
		if err != nil {
			return &GatewayError{Reason: "load message", Err: err}
		}
	}
	if msg.AuthorID != s.userID {
		return &AuthorizationError{Reason: "only the author can delete a message"}
	}

	if err := s.gateway.DeleteMessage(ctx, id, s.userID); err != nil {
		if errors.Is(err, ErrNotAuthor) {
			return &AuthorizationError{Reason: "only the author can delete a message", Err: err}
		}
		return &GatewayError{Reason: "delete message", Err: err}
	}

	s.mu.Lock()
	if s.store.Remove(id) {
		s.notifyLocked(Change{Kind: ChangeRemove, Message: msg})
	}
	s.mu.Unlock()

	if msg.HasAttachment() {
		if err := s.blobs.Delete(context.WithoutCancel(ctx), msg.AttachmentURL); err != nil {
			s.log.Warn("attachment cleanup failed", zap.String("message_id", id), zap.Error(err))
		}
	}
	return nil
}

// MarkRead marks the peer's messages in a direct conversation as read. Other scopes
// have no read tracking.
func (s *Synchronizer) MarkRead(ctx context.Context) error {
	scope, ok := s.activeScope()
	if !ok {
		return &ValidationError{Reason: "no active scope"}
	}
	if scope.Kind != models.ScopeDirect {
		return nil
	}
	if err := s.gateway.MarkRead(ctx, scope, s.userID); err != nil {
		return &GatewayError{Reason: "mark read", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope.Key() != scope.Key() {
		return nil
	}
	if s.store.MarkReadFrom(scope.Peer(s.userID)) > 0 {
		s.notifyLocked(Change{Kind: ChangeRead})
	}
	return nil
}

// activeScope returns the scope writes go to. After Deactivate there is none, even
// though Scope still reports the last one.
func (s *Synchronizer) activeScope() (models.Scope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || s.scope.Validate() != nil {
		return models.Scope{}, false
	}
	return s.scope, true
}

func (s *Synchronizer) handleInsert(gen uint64, row models.InsertRow) {
	s.mu.Lock()
	current := s.generation == gen
	scope := s.scope
	s.mu.Unlock()
	if !current {
		return
	}
	if row.Scope.Key() != scope.Key() {
		observability.IncFeedEvent("ignored")
		return
	}
	if _, ok := s.store.Get(row.ID); ok {
		observability.IncFeedEvent("duplicate")
		return
	}

	msg := s.resolve(row)
	if msg.Scope.Key() != scope.Key() {
		observability.IncFeedEvent("ignored")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	if !s.store.Merge(msg) {
		observability.IncFeedEvent("duplicate")
		return
	}
	observability.IncFeedEvent("merged")
	s.notifyLocked(Change{Kind: ChangeInsert, Message: msg})
}

// resolve loads the full message for an insert row. A failed lookup still yields a
// message, carrying the unknown-author identity and no content until the next reload.
func (s *Synchronizer) resolve(row models.InsertRow) models.Message {
	ctx, cancel := context.WithTimeout(context.Background(), s.resolveTimeout)
	defer cancel()

	msg, err := s.gateway.FetchOne(ctx, row.ID)
	if err != nil {
		s.log.Warn("resolve insert event failed, using fallback author", zap.String("message_id", row.ID), zap.Error(err))
		observability.IncFeedEvent("fallback")
		return row.Message(models.UnknownAuthor)
	}
	if msg.Author.Email == "" {
		msg.Author = models.UnknownAuthor
	}
	return msg
}

func (s *Synchronizer) fail(gen uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrSuperseded
	}
	s.state = StateErrored
	s.log.Warn("feed activation failed", zap.String("scope", s.scope.Key()), zap.Error(err))
	return err
}

func (s *Synchronizer) notifyLocked(change Change) {
	change.Scope = s.scope
	for _, fn := range s.listeners {
		fn(change)
	}
}
