// Package handler exposes the chat backend over HTTP: the realtime upgrade
// endpoint and the bearer-authenticated REST API.
package handler

import (
	"anonchat/backend/internal/apperr"
	"anonchat/backend/internal/auth"
	"anonchat/backend/internal/chathub"
	"anonchat/backend/internal/storage"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Handler містить усі залежності HTTP-шару.
type Handler struct {
	Storage  storage.Storage
	Messages chathub.MessageService
	Auth     *auth.Service
	Gateway  *chathub.Gateway
	Registry *chathub.Registry
	log      *slog.Logger
}

func NewHandler(store storage.Storage, messages chathub.MessageService, authn *auth.Service, gateway *chathub.Gateway, registry *chathub.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		Storage:  store,
		Messages: messages,
		Auth:     authn,
		Gateway:  gateway,
		Registry: registry,
		log:      logger,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	authGroup := r.Group("/api/auth")
	authGroup.POST("/register", h.RegisterUser)
	authGroup.POST("/login", h.Login)

	chat := r.Group("/api/chat", h.AuthRequired())
	chat.POST("/messages", h.SendMessage)
	chat.GET("/history/:userId", h.GetHistory)
	chat.GET("/chats", h.GetChats)
	chat.GET("/search", h.SearchUsers)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// AuthRequired rejects requests without a valid bearer token and stores the
// caller's identity in the context.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			h.respondError(c, apperr.New(apperr.Unauthorized, "Access token required"))
			c.Abort()
			return
		}
		identity, err := h.Auth.VerifyCredential(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, apperr.Wrap(apperr.Unauthorized, "Invalid or expired token", err))
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func caller(c *gin.Context) *auth.Identity {
	return c.MustGet(identityKey).(*auth.Identity)
}

// respondError writes {"error": reason, "kind": kind}. Internal causes are
// logged, never returned.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		h.log.Error("handler - request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.JSON(apperr.HTTPStatus(kind), gin.H{"error": apperr.ReasonOf(err), "kind": kind})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
		"sessions":  h.Registry.SessionCount(),
	})
}
