package models

import (
	"encoding/json"
	"time"
)

// Inbound event types.
const (
	EventAuthenticate     = "authenticate"
	EventJoinRoom         = "join_room"
	EventLeaveRoom        = "leave_room"
	EventSendMessage      = "send_message"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventMarkMessagesRead = "mark_messages_read"
)

// Outbound event types.
const (
	EventAuthenticated = "authenticated"
	EventNewMessage    = "new_message"
	EventChatUpdated   = "chat_updated"
	EventUserOnline    = "user_online"
	EventUserOffline   = "user_offline"
	EventUserTyping    = "user_typing"
	EventMessagesRead  = "messages_read"
	EventError         = "error"
)

// InboundFrame is the envelope of everything a client sends. Payload is
// decoded into one of the *Payload types according to Type.
type InboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

type SendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
}

type MarkReadPayload struct {
	SenderID string `json:"senderId"`
}

// ServerEvent is the envelope of everything the server pushes.
type ServerEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type AuthenticatedPayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	SessionID string `json:"sessionId"`
}

type ChatUpdatedPayload struct {
	ChatID       string    `json:"chatId"`
	Participants []string  `json:"participants"`
	LastMessage  string    `json:"lastMessage"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type PresencePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

type TypingNotice struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type ReadReceipt struct {
	ReadBy string `json:"readBy"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewAuthenticatedEvent(userID, username, sessionID string) ServerEvent {
	return ServerEvent{Type: EventAuthenticated, Payload: AuthenticatedPayload{UserID: userID, Username: username, SessionID: sessionID}}
}

func NewMessageEvent(view *MessageView) ServerEvent {
	return ServerEvent{Type: EventNewMessage, Payload: view}
}

func NewChatUpdatedEvent(chat *Chat) ServerEvent {
	return ServerEvent{Type: EventChatUpdated, Payload: ChatUpdatedPayload{
		ChatID:       chat.ID,
		Participants: chat.Participants(),
		LastMessage:  chat.LastMessage,
		UpdatedAt:    chat.LastMessageTime,
	}}
}

func NewPresenceEvent(userID, username string, online bool) ServerEvent {
	t := EventUserOffline
	if online {
		t = EventUserOnline
	}
	return ServerEvent{Type: t, Payload: PresencePayload{UserID: userID, Username: username, IsOnline: online}}
}

func NewTypingEvent(userID, username string, typing bool) ServerEvent {
	return ServerEvent{Type: EventUserTyping, Payload: TypingNotice{UserID: userID, Username: username, IsTyping: typing}}
}

func NewMessagesReadEvent(readBy string) ServerEvent {
	return ServerEvent{Type: EventMessagesRead, Payload: ReadReceipt{ReadBy: readBy}}
}

func NewErrorEvent(kind, message string) ServerEvent {
	return ServerEvent{Type: EventError, Payload: ErrorPayload{Kind: kind, Message: message}}
}
