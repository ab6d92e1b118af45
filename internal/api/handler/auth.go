package handler

import (
	"anonchat/backend/internal/apperr"
	"anonchat/backend/internal/auth"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// RegisterUser створює обліковий запис і одразу повертає токен.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Wrap(apperr.InvalidInput, "Username, valid email and password are required", err))
		return
	}

	user, token, err := h.Auth.Register(c.Request.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	case errors.Is(err, auth.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
		return
	case err != nil:
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user.Summary()})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Wrap(apperr.InvalidInput, "Identifier and password are required", err))
		return
	}

	user, token, err := h.Auth.Login(c.Request.Context(), req.Identifier, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.respondError(c, apperr.New(apperr.Unauthorized, "Invalid credentials"))
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user.Summary()})
}
