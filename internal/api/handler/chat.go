package handler

import (
	"anonchat/backend/internal/apperr"
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/storage"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId" binding:"required,uuid"`
	Content    string `json:"content" binding:"required,max=1000"`
}

// SendMessage is the HTTP twin of the send_message event; live sessions get
// the same fanout.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Wrap(apperr.InvalidInput, "Valid receiverId and content (at most 1000 characters) are required", err))
		return
	}

	view, err := h.Messages.SendMessage(c.Request.Context(), caller(c).UserID, req.ReceiverID, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func queryInt(c *gin.Context, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// GetHistory returns one page of the conversation with :userId and marks what
// the caller received from them as read.
func (h *Handler) GetHistory(c *gin.Context) {
	me := caller(c).UserID
	otherID := c.Param("userId")
	if _, err := uuid.Parse(otherID); err != nil {
		h.respondError(c, apperr.New(apperr.InvalidInput, "Malformed userId"))
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Storage.GetUserByID(ctx, otherID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondError(c, apperr.New(apperr.NotFound, "User not found"))
			return
		}
		h.respondError(c, err)
		return
	}

	page := queryInt(c, "page", 1)
	limit := min(queryInt(c, "limit", config.DefaultHistoryLimit), config.MaxHistoryLimit)

	messages, hasMore, err := h.Storage.GetHistory(ctx, me, otherID, page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if _, err := h.Messages.MarkRead(ctx, me, otherID); err != nil {
		// The page is still valid; the receipt is retried on the next read.
		h.log.Warn("handler - GetHistory - mark read failed", "user_id", me, "other_id", otherID, "err", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"pagination": gin.H{
			"page":    page,
			"limit":   limit,
			"hasMore": hasMore,
		},
	})
}

type chatListItem struct {
	ID              string             `json:"id"`
	OtherUser       models.UserSummary `json:"otherUser"`
	LastMessage     string             `json:"lastMessage"`
	LastMessageTime time.Time          `json:"lastMessageTime"`
	UnreadCount     int64              `json:"unreadCount"`
}

// GetChats lists the caller's conversations, most recent first.
func (h *Handler) GetChats(c *gin.Context) {
	me := caller(c).UserID
	ctx := c.Request.Context()

	chats, err := h.Storage.GetChatsForUser(ctx, me)
	if err != nil {
		h.respondError(c, err)
		return
	}

	items := make([]chatListItem, 0, len(chats))
	for i := range chats {
		chat := &chats[i]
		otherID := chat.OtherParticipant(me)

		other, err := h.Storage.GetUserByID(ctx, otherID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			h.respondError(c, err)
			return
		}
		unread, err := h.Storage.CountUnread(ctx, me, otherID)
		if err != nil {
			h.respondError(c, err)
			return
		}

		summary := other.Summary()
		summary.IsOnline = h.Registry.IsOnline(otherID)
		items = append(items, chatListItem{
			ID:              chat.ID,
			OtherUser:       summary,
			LastMessage:     chat.LastMessage,
			LastMessageTime: chat.LastMessageTime,
			UnreadCount:     unread,
		})
	}

	c.JSON(http.StatusOK, gin.H{"chats": items})
}

func (h *Handler) SearchUsers(c *gin.Context) {
	me := caller(c).UserID
	users, err := h.Storage.SearchUsers(c.Request.Context(), me, c.Query("query"), config.SearchLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		s := users[i].Summary()
		s.IsOnline = h.Registry.IsOnline(s.ID)
		out = append(out, s)
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}
