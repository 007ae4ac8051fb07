package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"coach-chat/internal/feed"
	"coach-chat/internal/middleware"
	"coach-chat/internal/models"
	"coach-chat/internal/observability"
	"coach-chat/internal/telemetry"
)

const (
	wsKind       = "feed"
	routingKey   = "ws_events.feed"
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 8 << 20
	outboundSize = 64
)

// EventPublisher publishes websocket lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// FeedHandlerConfig holds the collaborators of a FeedHandler.
type FeedHandlerConfig struct {
	Gateway   feed.Gateway
	Blobs     feed.BlobStorage
	Events    feed.EventFeed
	Validator middleware.TokenValidator
	Publisher EventPublisher
	Audit     *telemetry.AuditEmitter
	Limit     int
	Logger    *zap.Logger
}

// FeedHandler serves feed websocket sessions. Every session owns one Synchronizer and
// streams its store changes to the client.
type FeedHandler struct {
	cfg FeedHandlerConfig
	log *zap.Logger
}

// NewFeedHandler constructs a FeedHandler.
func NewFeedHandler(cfg FeedHandlerConfig) *FeedHandler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &FeedHandler{cfg: cfg, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection and runs the session until the client
// goes away. An optional scope query parameter activates a feed right away.
func (h *FeedHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("coach-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, err := middleware.BearerToken(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	userID, err := h.cfg.Validator.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var initial *models.Scope
	if raw := c.Query("scope"); raw != "" {
		scope, err := models.ParseScope(raw, userID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		initial = &scope
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := newConnInfo(c.Request, userID, span.SpanContext().TraceID().String())

	s := h.newSession(conn, info)
	observability.IncWSActive(wsKind)
	h.publish(info, "ws_connect", "", "")
	h.log.Info("ws connected", info.fields()...)

	go s.writeLoop()
	go s.readLoop(initial)
}

func (h *FeedHandler) publish(info ConnInfo, name, scope, reason string) {
	observability.IncWSEvent(wsKind, name)
	if h.cfg.Publisher == nil {
		return
	}
	event := info.Event(name, scope, reason)
	if err := h.cfg.Publisher.Publish(context.Background(), routingKey, event, observability.BuildHeaders(info.RequestID, info.TraceID)); err != nil {
		h.log.Warn("ws event publish failed", zap.String("event", name), zap.Error(err))
	}
}

type session struct {
	h    *FeedHandler
	conn *websocket.Conn
	sync *feed.Synchronizer
	info ConnInfo
	out  chan models.FeedEvent

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	reason string
}

func (h *FeedHandler) newSession(conn *websocket.Conn, info ConnInfo) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		h:      h,
		conn:   conn,
		info:   info,
		out:    make(chan models.FeedEvent, outboundSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.sync = feed.NewSynchronizer(h.cfg.Gateway, h.cfg.Blobs, h.cfg.Events, info.UserID,
		feed.WithLimit(h.cfg.Limit),
		feed.WithLogger(h.log.With(info.fields()...)),
	)
	// runs under the synchronizer lock: only reads the change and queues
	s.sync.OnChange(func(change feed.Change) {
		s.push(changeEvent(change))
	})
	return s
}

// push queues an event without blocking. A client too slow to drain its queue is
// disconnected.
func (s *session) push(ev models.FeedEvent) {
	select {
	case s.out <- ev:
	case <-s.ctx.Done():
	default:
		s.close("slow consumer")
	}
}

func (s *session) close(reason string) {
	s.once.Do(func() {
		s.reason = reason
		s.cancel()
	})
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, s.reason), time.Now().Add(writeWait))
			return
		case ev := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				s.close(err.Error())
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.close(err.Error())
				return
			}
		}
	}
}

func (s *session) readLoop(initial *models.Scope) {
	defer s.finish()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if initial != nil {
		s.handle(clientFrame{Type: frameSubscribe, Scope: initial.Key()}, initial)
	}

	for {
		var frame clientFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.ctx.Err() == nil {
				s.h.publish(s.info, "ws_error", s.sync.Scope().Key(), err.Error())
			}
			s.close(err.Error())
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handle(frame, nil)
	}
}

func (s *session) finish() {
	s.sync.Deactivate()
	observability.DecWSActive(wsKind)
	s.h.publish(s.info, "ws_disconnect", s.sync.Scope().Key(), s.reason)
	s.h.log.Info("ws disconnected", append(s.info.fields(),
		zap.String("reason", s.reason),
		zap.Duration("duration", time.Since(s.info.ConnectedAt)))...)
}

// handle runs one client command. Commands of a session run one at a time.
func (s *session) handle(frame clientFrame, parsed *models.Scope) {
	var err error
	switch frame.Type {
	case frameSubscribe:
		scope := parsed
		if scope == nil {
			var p models.Scope
			p, err = models.ParseScope(frame.Scope, s.info.UserID)
			if err != nil {
				err = &feed.ValidationError{Reason: err.Error()}
				break
			}
			scope = &p
		}
		err = s.subscribe(*scope)
	case frameUnsubscribe:
		s.sync.Deactivate()
	case frameSend:
		err = s.sync.Send(s.ctx, frame.Body, frame.attachment())
		if err == nil {
			s.audit(frame.RequestID, "message sent", "")
		}
	case frameDelete:
		err = s.sync.Delete(s.ctx, frame.MessageID)
		if err == nil {
			s.audit(frame.RequestID, "message deleted", frame.MessageID)
		}
	case frameMarkRead:
		err = s.sync.MarkRead(s.ctx)
	case frameReload:
		err = s.sync.Reload(s.ctx)
	default:
		err = &feed.ValidationError{Reason: "unknown frame type " + frame.Type}
	}

	if err != nil {
		if !isClientError(err) {
			s.h.log.Warn("ws command failed", zap.String("conn_id", s.info.ConnID), zap.String("type", frame.Type), zap.Error(err))
		}
		s.push(errorEvent(frame.RequestID, err))
		return
	}
	s.push(models.FeedEvent{Type: eventAck, RequestID: frame.RequestID})
}

// subscribe activates scope and marks a direct conversation read once it is open.
func (s *session) subscribe(scope models.Scope) error {
	if err := s.sync.Activate(s.ctx, scope); err != nil {
		return err
	}
	s.h.publish(s.info, "ws_subscribe", scope.Key(), "")
	if scope.Kind == models.ScopeDirect {
		if err := s.sync.MarkRead(s.ctx); err != nil {
			s.h.log.Warn("mark read on open failed", zap.String("scope", scope.Key()), zap.Error(err))
		}
	}
	return nil
}

func (s *session) audit(requestID, text, messageID string) {
	if requestID == "" {
		requestID = s.info.RequestID
	}
	s.h.cfg.Audit.Emit(s.ctx, requestID, s.info.UserID, telemetry.AuditPayload{
		Level:   "INFO",
		Text:    text,
		Scope:   s.sync.Scope().Key(),
		Message: messageID,
	})
}

func isClientError(err error) bool {
	var (
		validation    *feed.ValidationError
		authorization *feed.AuthorizationError
	)
	return errors.As(err, &validation) || errors.As(err, &authorization) || errors.Is(err, feed.ErrSuperseded)
}
