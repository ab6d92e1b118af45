package chathub

import (
	"anonchat/backend/internal/apperr"
	"anonchat/backend/internal/auth"
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/models"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Authenticator interface {
	VerifyCredential(ctx context.Context, token string) (*auth.Identity, error)
}

// MessageService is the part of the messaging engine the gateway drives. The
// engine does its own fanout through the registry.
type MessageService interface {
	SendMessage(ctx context.Context, senderID, receiverID, content string) (*models.MessageView, error)
	MarkRead(ctx context.Context, readerID, otherUserID string) (int64, error)
}

type GatewayOptions struct {
	// AuthTimeout bounds how long an unauthenticated socket may stay open.
	AuthTimeout time.Duration
	// SendBuffer is the per-session outbound queue length.
	SendBuffer int
}

type eventHandler func(ctx context.Context, c Client, payload json.RawMessage) error

// Gateway owns the life cycle of realtime connections: authenticate, register
// the session, route inbound events, and clean up exactly once on close.
type Gateway struct {
	registry *Registry
	presence *PresenceTracker
	messages MessageService
	auth     Authenticator
	log      *slog.Logger
	opts     GatewayOptions

	handlers map[string]eventHandler
}

func NewGateway(registry *Registry, presence *PresenceTracker, messages MessageService, authn Authenticator, logger *slog.Logger, opts GatewayOptions) *Gateway {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = config.DefaultAuthTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = config.DefaultSendBuffer
	}

	g := &Gateway{
		registry: registry,
		presence: presence,
		messages: messages,
		auth:     authn,
		log:      logger,
		opts:     opts,
	}
	g.handlers = map[string]eventHandler{
		models.EventAuthenticate:     g.handleAuthenticateAgain,
		models.EventJoinRoom:         g.handleJoinRoom,
		models.EventLeaveRoom:        g.handleLeaveRoom,
		models.EventSendMessage:      g.handleSendMessage,
		models.EventTypingStart:      g.typingHandler(true),
		models.EventTypingStop:       g.typingHandler(false),
		models.EventMarkMessagesRead: g.handleMarkRead,
	}
	return g
}

// Serve runs one upgraded connection until it closes. token is the credential
// presented with the upgrade request; when empty the client has AuthTimeout
// to send an authenticate event instead.
func (g *Gateway) Serve(conn *websocket.Conn, token string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	identity, err := g.authenticate(ctx, conn, token)
	if err != nil {
		g.reject(conn, err)
		return
	}

	client := NewWebSocketClient(conn, identity.UserID, identity.Username, g.opts.SendBuffer, g.log)
	client.Send(models.NewAuthenticatedEvent(identity.UserID, identity.Username, client.GetSessionID()))

	g.registry.Register(client)
	g.presence.OnConnect(ctx, identity.UserID, identity.Username)
	g.log.Info("gateway - serve - session live", "user_id", identity.UserID, "session_id", client.GetSessionID())

	go client.writePump()
	client.readPump(func(raw []byte) {
		g.dispatch(ctx, client, raw)
	})

	g.disconnect(ctx, client)
}

// Shutdown closes every live connection. Their Serve calls then run the
// normal disconnect path.
func (g *Gateway) Shutdown() {
	for _, c := range g.registry.All() {
		c.Close()
	}
}

func (g *Gateway) authenticate(ctx context.Context, conn *websocket.Conn, token string) (*auth.Identity, error) {
	deadline := time.Now().Add(g.opts.AuthTimeout)

	if token == "" {
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, apperr.Wrap(apperr.Unauthorized, "Authentication timed out", err)
		}

		var frame models.InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Type != models.EventAuthenticate {
			return nil, apperr.New(apperr.Unauthorized, "Authentication required")
		}
		var p models.AuthenticatePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Token == "" {
			return nil, apperr.New(apperr.Unauthorized, "Authentication required")
		}
		token = p.Token
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	identity, err := g.auth.VerifyCredential(ctx, token)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, "Invalid or expired token", err)
	}
	return identity, nil
}

// reject is terminal: nothing was registered, so there is nothing to clean up.
func (g *Gateway) reject(conn *websocket.Conn, err error) {
	g.log.Warn("gateway - authenticate - rejected", "remote", conn.RemoteAddr().String(), "err", err)

	reason := apperr.ReasonOf(err)
	deadline := time.Now().Add(writeWait)
	conn.SetWriteDeadline(deadline)
	conn.WriteJSON(models.NewErrorEvent(string(apperr.Unauthorized), reason))
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	conn.Close()
}

// disconnect runs at most once per client however many times it is reached.
func (g *Gateway) disconnect(ctx context.Context, c *WebSocketClient) {
	c.cleanupOnce.Do(func() {
		c.Close()
		userID, _ := g.registry.Unregister(c.GetSessionID())
		if userID == "" {
			return
		}
		g.presence.OnDisconnect(ctx, userID, c.GetUsername())
		g.log.Info("gateway - disconnect - session closed", "user_id", userID, "session_id", c.GetSessionID())
	})
}

func (g *Gateway) dispatch(ctx context.Context, c Client, raw []byte) {
	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		g.fail(c, "", apperr.Wrap(apperr.InvalidInput, "Malformed event", err))
		return
	}

	handle, ok := g.handlers[frame.Type]
	if !ok {
		g.fail(c, frame.Type, apperr.New(apperr.InvalidInput, "Unknown event type"))
		return
	}
	if err := handle(ctx, c, frame.Payload); err != nil {
		g.fail(c, frame.Type, err)
	}
}

// fail reports err to the originating session only. The connection stays up.
func (g *Gateway) fail(c Client, eventType string, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		g.log.Error("gateway - dispatch - event failed", "type", eventType, "user_id", c.GetUserID(), "err", err)
	} else {
		g.log.Debug("gateway - dispatch - event rejected", "type", eventType, "user_id", c.GetUserID(), "kind", kind, "err", err)
	}
	c.Send(models.NewErrorEvent(string(kind), apperr.ReasonOf(err)))
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, apperr.New(apperr.InvalidInput, "Missing payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, apperr.Wrap(apperr.InvalidInput, "Malformed payload", err)
	}
	return v, nil
}

func checkUserID(id, field string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.New(apperr.InvalidInput, "Malformed "+field)
	}
	return nil
}

func (g *Gateway) handleAuthenticateAgain(context.Context, Client, json.RawMessage) error {
	return apperr.New(apperr.InvalidInput, "Already authenticated")
}

// Rooms are keyed by the canonical pair key, and a session may only join a
// room of a conversation it takes part in.
func (g *Gateway) handleJoinRoom(_ context.Context, c Client, payload json.RawMessage) error {
	p, err := decode[models.RoomPayload](payload)
	if err != nil {
		return err
	}
	a, b, ok := models.ParseChatKey(p.Room)
	if !ok || (a != c.GetUserID() && b != c.GetUserID()) {
		return apperr.New(apperr.InvalidInput, "Invalid room")
	}
	if !g.registry.JoinRoom(c.GetSessionID(), p.Room) {
		return apperr.New(apperr.Internal, "Session is not registered")
	}
	return nil
}

func (g *Gateway) handleLeaveRoom(_ context.Context, c Client, payload json.RawMessage) error {
	p, err := decode[models.RoomPayload](payload)
	if err != nil {
		return err
	}
	if p.Room == "" {
		return apperr.New(apperr.InvalidInput, "Invalid room")
	}
	g.registry.LeaveRoom(c.GetSessionID(), p.Room)
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, c Client, payload json.RawMessage) error {
	p, err := decode[models.SendMessagePayload](payload)
	if err != nil {
		return err
	}
	if err := checkUserID(p.ReceiverID, "receiverId"); err != nil {
		return err
	}
	_, err = g.messages.SendMessage(ctx, c.GetUserID(), p.ReceiverID, p.Content)
	return err
}

// Typing notices are relayed to the receiver's sessions and never stored.
func (g *Gateway) typingHandler(typing bool) eventHandler {
	return func(_ context.Context, c Client, payload json.RawMessage) error {
		p, err := decode[models.TypingPayload](payload)
		if err != nil {
			return err
		}
		if err := checkUserID(p.ReceiverID, "receiverId"); err != nil {
			return err
		}
		if p.ReceiverID == c.GetUserID() {
			return apperr.New(apperr.InvalidInput, "Cannot send typing notice to yourself")
		}
		g.registry.SendToUser(p.ReceiverID, models.NewTypingEvent(c.GetUserID(), c.GetUsername(), typing))
		return nil
	}
}

func (g *Gateway) handleMarkRead(ctx context.Context, c Client, payload json.RawMessage) error {
	p, err := decode[models.MarkReadPayload](payload)
	if err != nil {
		return err
	}
	if err := checkUserID(p.SenderID, "senderId"); err != nil {
		return err
	}
	_, err = g.messages.MarkRead(ctx, c.GetUserID(), p.SenderID)
	return err
}
