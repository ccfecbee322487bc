package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/galleria/internal/interactions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 4096
	wsSendBuffer     = 64

	wsOpSubscribe   = "subscribe"
	wsOpUnsubscribe = "unsubscribe"

	wsScopeImage = "image"
	wsScopeFeed  = "feed"
)

type wsClientMessage struct {
	Op      string `json:"op"`
	Scope   string `json:"scope"`
	ImageID string `json:"image_id,omitempty"`
}

type wsServerMessage struct {
	Type    string `json:"type"`
	Scope   string `json:"scope,omitempty"`
	ImageID string `json:"image_id,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// wsSession multiplexes live subscriptions over one WebSocket connection. Reads happen on the
// handler goroutine; writes are serialized through the send channel.
type wsSession struct {
	handler *httpHandler
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	send    chan wsServerMessage

	mu            sync.Mutex
	subscriptions map[string]context.CancelFunc
}

func (h *httpHandler) handleWebSocket(c *gin.Context) {
	responseHeader := http.Header{}
	for _, cookie := range c.Writer.Header().Values("Set-Cookie") {
		responseHeader.Add("Set-Cookie", cookie)
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, responseHeader)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	session := &wsSession{
		handler:       h,
		conn:          conn,
		ctx:           ctx,
		cancel:        cancel,
		send:          make(chan wsServerMessage, wsSendBuffer),
		subscriptions: make(map[string]context.CancelFunc),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		session.writePump()
	}()

	session.readPump()
	cancel()
	<-writerDone
	_ = conn.Close()
}

func (s *wsSession) readPump() {
	s.conn.SetReadLimit(wsMaxMessageSize)
	pongWait := s.handler.pongWait()
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var message wsClientMessage
		if err := s.conn.ReadJSON(&message); err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				s.handler.logger.Info("websocket client stopped answering pings")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
				s.handler.logger.Info("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		s.handleMessage(message)
	}
}

// pongWait is how long a client may stay silent before the session is dropped. Pings go
// out every heartbeat, leaving a tenth of the window for the pong to arrive.
func (h *httpHandler) pongWait() time.Duration {
	return h.heartbeat * 10 / 9
}

func (s *wsSession) writePump() {
	defer s.cancel()
	ticker := time.NewTicker(s.handler.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case message := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := s.conn.WriteJSON(message); err != nil {
				s.handler.logger.Info("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				s.handler.logger.Info("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *wsSession) handleMessage(message wsClientMessage) {
	key, ok := s.subscriptionKey(message)
	if !ok {
		s.enqueue(wsServerMessage{Type: realtimeEventError, Scope: message.Scope, Error: "invalid_scope"})
		return
	}
	switch message.Op {
	case wsOpSubscribe:
		s.subscribe(key, message)
	case wsOpUnsubscribe:
		s.unsubscribe(key)
		s.enqueue(wsServerMessage{Type: "unsubscribed", Scope: message.Scope, ImageID: message.ImageID})
	default:
		s.enqueue(wsServerMessage{Type: realtimeEventError, Error: "unknown_op"})
	}
}

func (s *wsSession) subscriptionKey(message wsClientMessage) (string, bool) {
	switch message.Scope {
	case wsScopeFeed:
		return wsScopeFeed, true
	case wsScopeImage:
		imageID, err := interactions.NewImageID(message.ImageID)
		if err != nil {
			return "", false
		}
		return wsScopeImage + ":" + imageID.String(), true
	default:
		return "", false
	}
}

func (s *wsSession) subscribe(key string, message wsClientMessage) {
	s.mu.Lock()
	if _, exists := s.subscriptions[key]; exists {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.subscriptions[key] = cancel
	s.mu.Unlock()

	if message.Scope == wsScopeFeed {
		feed, stop := s.handler.live.SubscribeFeed(ctx)
		go func() {
			defer stop()
			forward(ctx, s, feed, func(snapshot interactions.Snapshot[interactions.FeedItem]) wsServerMessage {
				if snapshot.Err != nil {
					return wsServerMessage{Type: realtimeEventError, Scope: wsScopeFeed, Error: "read_failed"}
				}
				return wsServerMessage{Type: realtimeEventFeed, Scope: wsScopeFeed, Data: s.handler.buildFeedPayload(snapshot.Items)}
			})
		}()
		return
	}

	imageID := strings.TrimPrefix(key, wsScopeImage+":")
	streams := s.handler.subscribeImage(ctx, imageID)
	var forwarders sync.WaitGroup
	forwarders.Add(3)
	go func() {
		defer forwarders.Done()
		forward(ctx, s, streams.reactions, func(snapshot interactions.Snapshot[interactions.Reaction]) wsServerMessage {
			return imageMessage(realtimeEventReactions, imageID, snapshot.Err, reactionsOnlyPayload{ImageID: imageID, Reactions: snapshot.Items})
		})
	}()
	go func() {
		defer forwarders.Done()
		forward(ctx, s, streams.groups, func(snapshot interactions.Snapshot[interactions.ReactionGroup]) wsServerMessage {
			return imageMessage(realtimeEventGroups, imageID, snapshot.Err, groupsPayload{ImageID: imageID, Groups: snapshot.Items})
		})
	}()
	go func() {
		defer forwarders.Done()
		forward(ctx, s, streams.comments, func(snapshot interactions.Snapshot[interactions.Comment]) wsServerMessage {
			return imageMessage(realtimeEventComments, imageID, snapshot.Err, commentsPayload{ImageID: imageID, Comments: snapshot.Items})
		})
	}()
	go func() {
		forwarders.Wait()
		streams.stop()
	}()
}

func (s *wsSession) unsubscribe(key string) {
	s.mu.Lock()
	cancel, ok := s.subscriptions[key]
	delete(s.subscriptions, key)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *wsSession) enqueue(message wsServerMessage) bool {
	select {
	case s.send <- message:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func imageMessage(eventType, imageID string, err error, payload any) wsServerMessage {
	if err != nil {
		return wsServerMessage{Type: realtimeEventError, Scope: wsScopeImage, ImageID: imageID, Data: eventType, Error: "read_failed"}
	}
	return wsServerMessage{Type: eventType, Scope: wsScopeImage, ImageID: imageID, Data: payload}
}

func forward[T any](ctx context.Context, s *wsSession, snapshots <-chan interactions.Snapshot[T], render func(interactions.Snapshot[T]) wsServerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			if snapshot.Err != nil {
				s.handler.logger.Warn("live snapshot failed", zap.Error(snapshot.Err))
			}
			message := render(snapshot)
			select {
			case s.send <- message:
			case <-ctx.Done():
				return
			}
		}
	}
}
