// Package auth issues and verifies bearer tokens and owns registration and
// login. Handlers and the realtime gateway only see Identity.
package auth

import (
	"anonchat/backend/internal/apperr"
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Identity is the authenticated user behind a token.
type Identity struct {
	UserID   string
	Username string
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	FindUserByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error)
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

type Service struct {
	store  UserStore
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewService(store UserStore, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}
	return &Service{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		issuer: config.TokenIssuer,
		now:    time.Now,
	}
}

// IssueToken генерує JWT для користувача.
func (s *Service) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.ttl).Unix(),
		"iss":      s.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parse(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// VerifyCredential validates token and confirms its user still exists. The
// username comes from the store, not from the token.
func (s *Service) VerifyCredential(ctx context.Context, token string) (*Identity, error) {
	userID, err := s.parse(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load token user: %w", err)
	}
	return &Identity{UserID: user.ID, Username: user.Username}, nil
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := ValidateUsername(in.Username); err != nil {
		return nil, "", err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, "", err
	}

	existing, err := s.store.FindUserByEmailOrUsername(ctx, in.Email, in.Username)
	switch {
	case err == nil:
		if strings.EqualFold(existing.Email, strings.TrimSpace(in.Email)) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", ErrUsernameTaken
	case !errors.Is(err, storage.ErrNotFound):
		return nil, "", fmt.Errorf("check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Avatar:       AvatarURL(in.Username),
		LastSeen:     s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login accepts either the email or the username as identifier.
func (s *Service) Login(ctx context.Context, identifier, password string) (*models.User, string, error) {
	user, err := s.store.FindUserByIdentifier(ctx, identifier)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.store.TouchLastSeen(ctx, user.ID, now); err != nil {
		return nil, "", fmt.Errorf("touch last seen: %w", err)
	}
	user.LastSeen = now

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func ValidateUsername(username string) error {
	n := len(username)
	if n < config.MinUsernameLength || n > config.MaxUsernameLength {
		return apperr.New(apperr.InvalidInput, fmt.Sprintf("Username must be between %d and %d characters", config.MinUsernameLength, config.MaxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return apperr.New(apperr.InvalidInput, "Username can only contain letters, numbers, and underscores")
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < config.MinPasswordLength {
		return apperr.New(apperr.InvalidInput, fmt.Sprintf("Password must be at least %d characters long", config.MinPasswordLength))
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return apperr.New(apperr.InvalidInput, "Password must contain at least one lowercase letter, one uppercase letter, and one number")
	}
	return nil
}
