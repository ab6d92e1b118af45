// Package messaging validates, stores and delivers direct messages and read
// receipts, and keeps the per-pair chat summaries up to date.
package messaging

import (
	"anonchat/backend/internal/alert"
	"anonchat/backend/internal/apperr"
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/moderation"
	"anonchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store is the persistence the engine and the reconciler need.
type Store interface {
	GetPublicProfile(ctx context.Context, id string) (*models.PublicProfile, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	UpsertChat(ctx context.Context, x, y, lastMessage string, at time.Time) (*models.Chat, error)
	MarkRead(ctx context.Context, readerID, otherID string) (int64, error)
	LatestMessageBetween(ctx context.Context, x, y string) (*models.Message, error)
	MessagePairs(ctx context.Context) ([]string, error)
	EnqueueReconcile(ctx context.Context, pairKey string) error
	PopReconcile(ctx context.Context) (string, error)
}

// Deliverer pushes an event to every live session of a user.
type Deliverer interface {
	SendToUser(userID string, ev models.ServerEvent) (delivered, dropped int)
}

type ContentFilter interface {
	Evaluate(text string) moderation.Verdict
}

type Engine struct {
	store    Store
	sessions Deliverer
	filter   ContentFilter
	notifier alert.Notifier
	log      *slog.Logger
	tracer   trace.Tracer
	locks    pairLocks
	now      func() time.Time
}

func NewEngine(store Store, sessions Deliverer, filter ContentFilter, notifier alert.Notifier, logger *slog.Logger) *Engine {
	if notifier == nil {
		notifier = alert.Nop{}
	}
	return &Engine{
		store:    store,
		sessions: sessions,
		filter:   filter,
		notifier: notifier,
		log:      logger,
		tracer:   otel.Tracer("anonchat/messaging"),
		now:      time.Now,
	}
}

// SendMessage stores a message from senderID to receiverID, moves the pair's
// chat summary forward and pushes the result to both users' sessions.
//
// Messages of one pair are stored and fanned out in call order. A failed
// summary update does not fail the send; the pair is queued for
// reconciliation instead.
func (e *Engine) SendMessage(ctx context.Context, senderID, receiverID, content string) (*models.MessageView, error) {
	ctx, span := e.tracer.Start(ctx, "messaging.SendMessage", trace.WithAttributes(
		attribute.String("sender_id", senderID),
		attribute.String("receiver_id", receiverID),
	))
	defer span.End()

	view, err := e.send(ctx, senderID, receiverID, content)
	if err != nil {
		kind := apperr.KindOf(err)
		metrics.MessagesRejectedTotal.WithLabelValues(string(kind)).Inc()
		span.SetAttributes(attribute.String("error_kind", string(kind)))
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.ReasonOf(err))
		return nil, err
	}
	metrics.MessagesSentTotal.Inc()
	span.SetAttributes(attribute.String("message_id", view.ID))
	return view, nil
}

func (e *Engine) send(ctx context.Context, senderID, receiverID, content string) (*models.MessageView, error) {
	if senderID == receiverID {
		return nil, apperr.New(apperr.InvalidInput, "Cannot send a message to yourself")
	}

	receiver, err := e.profile(ctx, receiverID, "Receiver not found")
	if err != nil {
		return nil, err
	}

	if verdict := e.filter.Evaluate(content); !verdict.Allowed {
		e.log.Info("messaging - SendMessage - blocked by filter", "sender_id", senderID, "rule", verdict.Rule)
		return nil, apperr.New(apperr.PolicyViolation, verdict.Reason)
	}

	text := strings.TrimSpace(content)
	if text == "" {
		return nil, apperr.New(apperr.InvalidInput, "Message content cannot be empty")
	}
	if utf8.RuneCountInString(text) > config.MaxMessageLength {
		return nil, apperr.New(apperr.InvalidInput, fmt.Sprintf("Message cannot exceed %d characters", config.MaxMessageLength))
	}

	sender, err := e.profile(ctx, senderID, "Sender not found")
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(models.ChatKey(senderID, receiverID))
	defer unlock()

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    text,
		Timestamp:  e.now().UTC(),
	}
	if err := e.store.SaveMessage(ctx, msg); err != nil {
		e.log.Error("messaging - SendMessage - persist failed", "sender_id", senderID, "receiver_id", receiverID, "err", err)
		return nil, apperr.Wrap(apperr.Internal, "Failed to send message", err)
	}

	chat, err := e.store.UpsertChat(ctx, senderID, receiverID, text, msg.Timestamp)
	if err != nil {
		e.summaryFailed(ctx, msg, err)
		chat = nil
	}

	view := models.NewMessageView(msg, *sender, *receiver)
	e.Fanout(view, chat)
	return view, nil
}

func (e *Engine) profile(ctx context.Context, userID, notFoundReason string) (*models.PublicProfile, error) {
	p, err := e.store.GetPublicProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, notFoundReason)
	}
	if err != nil {
		e.log.Error("messaging - profile - lookup failed", "user_id", userID, "err", err)
		return nil, apperr.Wrap(apperr.Internal, "Failed to send message", err)
	}
	return p, nil
}

// summaryFailed leaves the message in place and hands the pair to the
// reconciler.
func (e *Engine) summaryFailed(ctx context.Context, msg *models.Message, cause error) {
	key := models.ChatKey(msg.SenderID, msg.ReceiverID)
	metrics.ChatSummaryFailuresTotal.Inc()
	e.log.Error("messaging - SendMessage - chat summary upsert failed, queued for reconciliation",
		"pair", key, "message_id", msg.ID, "err", cause)

	if err := e.store.EnqueueReconcile(ctx, key); err != nil {
		e.log.Error("messaging - SendMessage - reconcile enqueue failed", "pair", key, "err", err)
	}

	text := fmt.Sprintf("chat summary for %s is stale (message %s): %v", key, msg.ID, cause)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.notifier.Notify(ctx, text); err != nil {
			e.log.Warn("messaging - SendMessage - alert failed", "err", err)
		}
	}()
}

// Fanout delivers view to every live session of both participants, the
// sender's own sessions included. chat may be nil when the summary could not
// be written; chat_updated is then skipped.
func (e *Engine) Fanout(view *models.MessageView, chat *models.Chat) {
	targets := []string{view.SenderID, view.ReceiverID}

	newMessage := models.NewMessageEvent(view)
	for _, userID := range targets {
		e.sessions.SendToUser(userID, newMessage)
	}

	if chat == nil {
		return
	}
	updated := models.NewChatUpdatedEvent(chat)
	for _, userID := range targets {
		e.sessions.SendToUser(userID, updated)
	}
}

// MarkRead marks everything otherUserID sent to readerID as read and, if
// anything changed, sends a receipt to otherUserID's sessions. Calling it
// again is a no-op.
func (e *Engine) MarkRead(ctx context.Context, readerID, otherUserID string) (int64, error) {
	ctx, span := e.tracer.Start(ctx, "messaging.MarkRead", trace.WithAttributes(
		attribute.String("reader_id", readerID),
		attribute.String("other_id", otherUserID),
	))
	defer span.End()

	if readerID == otherUserID {
		return 0, apperr.New(apperr.InvalidInput, "Cannot mark your own messages as read")
	}

	n, err := e.store.MarkRead(ctx, readerID, otherUserID)
	if err != nil {
		e.log.Error("messaging - MarkRead - update failed", "reader_id", readerID, "other_id", otherUserID, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read failed")
		return 0, apperr.Wrap(apperr.Internal, "Failed to mark messages as read", err)
	}
	span.SetAttributes(attribute.Int64("marked", n))

	if n > 0 {
		e.sessions.SendToUser(otherUserID, models.NewMessagesReadEvent(readerID))
	}
	return n, nil
}
