package storage

import (
	"anonchat/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrCacheUnavailable = errors.New("redis is not configured")
)

type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	FindUserByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error)
	SearchUsers(ctx context.Context, callerID, query string, limit int) ([]models.User, error)
	GetPublicProfile(ctx context.Context, id string) (*models.PublicProfile, error)

	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
	ResetPresence(ctx context.Context, at time.Time) (int64, error)

	SaveMessage(ctx context.Context, msg *models.Message) error
	GetHistory(ctx context.Context, userID, otherID string, page, limit int) ([]models.Message, bool, error)
	MarkRead(ctx context.Context, readerID, otherID string) (int64, error)
	CountUnread(ctx context.Context, readerID, otherID string) (int64, error)
	LatestMessageBetween(ctx context.Context, x, y string) (*models.Message, error)
	MessagePairs(ctx context.Context) ([]string, error)

	UpsertChat(ctx context.Context, x, y, lastMessage string, at time.Time) (*models.Chat, error)
	GetChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)

	EnqueueReconcile(ctx context.Context, pairKey string) error
	PopReconcile(ctx context.Context) (string, error)
}

type Service struct {
	DB         *gorm.DB
	Redis      *redis.Client
	ProfileTTL time.Duration
}

// NewStorageService Constructor. rdb may be nil: the profile cache is then
// skipped and the reconcile queue reports ErrCacheUnavailable.
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:         db,
		Redis:      rdb,
		ProfileTTL: 5 * time.Minute,
	}
}

// Migrate creates or updates the tables and indexes for all models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Message{},
		&models.Chat{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- Users ---

func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("storage - CreateUser - insert failed", "username", user.Username, "err", err)
		return err
	}
	return nil
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindUserByIdentifier шукає користувача за email або username (логін приймає обидва).
func (s *Service) FindUserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	var user models.User
	err := s.DB.WithContext(ctx).
		Where("email = ? OR username = ?", strings.ToLower(identifier), identifier).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindUserByEmailOrUsername returns any user holding either value, so callers
// can tell which uniqueness rule a registration would break.
func (s *Service) FindUserByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).
		Where("email = ? OR username = ?", strings.ToLower(strings.TrimSpace(email)), username).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchUsers finds users whose username contains query, case-insensitively.
// Online users come first, then the most recently seen.
func (s *Service) SearchUsers(ctx context.Context, callerID, query string, limit int) ([]models.User, error) {
	q := s.DB.WithContext(ctx).Where("id <> ?", callerID)
	if query = strings.TrimSpace(query); query != "" {
		q = q.Where(`LOWER(username) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(query))+"%")
	}

	var users []models.User
	err := q.Order("is_online desc").Order("last_seen desc").Limit(limit).Find(&users).Error
	if err != nil {
		slog.Error("storage - SearchUsers - query failed", "caller_id", callerID, "err", err)
		return nil, err
	}
	return users, nil
}

// --- Presence ---

func (s *Service) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online": online,
			"last_seen": at,
		}).Error
}

func (s *Service) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen", at).Error
}

// ResetPresence marks every online user offline. Sessions do not survive a
// restart, so flags persisted by a previous process are stale.
func (s *Service) ResetPresence(ctx context.Context, at time.Time) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("is_online = ?", true).
		Updates(map[string]interface{}{
			"is_online": false,
			"last_seen": at,
		})
	return result.RowsAffected, result.Error
}

// --- Messages ---

func (s *Service) SaveMessage(ctx context.Context, msg *models.Message) error {
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		slog.Error("storage - SaveMessage - insert failed",
			"sender_id", msg.SenderID, "receiver_id", msg.ReceiverID, "err", err)
		return err
	}
	return nil
}

func betweenPair(db *gorm.DB, x, y string) *gorm.DB {
	return db.Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", x, y, y, x)
}

// GetHistory returns one page of the conversation, newest page first but in
// chronological order within the page. The bool reports whether older
// messages exist.
func (s *Service) GetHistory(ctx context.Context, userID, otherID string, page, limit int) ([]models.Message, bool, error) {
	if page < 1 {
		page = 1
	}

	var msgs []models.Message
	err := betweenPair(s.DB.WithContext(ctx), userID, otherID).
		Where("is_blocked = ?", false).
		Order("sent_at desc").
		Offset((page - 1) * limit).
		Limit(limit + 1).
		Find(&msgs).Error
	if err != nil {
		slog.Error("storage - GetHistory - query failed", "user_id", userID, "other_id", otherID, "err", err)
		return nil, false, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, hasMore, nil
}

// MarkRead flips every unread message otherID sent to readerID. The
// is_read = false condition makes repeated calls no-ops.
func (s *Service) MarkRead(ctx context.Context, readerID, otherID string) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", readerID, otherID, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

func (s *Service) CountUnread(ctx context.Context, readerID, otherID string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", readerID, otherID, false).
		Count(&n).Error
	return n, err
}

func (s *Service) LatestMessageBetween(ctx context.Context, x, y string) (*models.Message, error) {
	var msg models.Message
	err := betweenPair(s.DB.WithContext(ctx), x, y).
		Order("sent_at desc").
		First(&msg).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

type messagePair struct {
	SenderID   string
	ReceiverID string
}

// MessagePairs returns the sorted chat key of every pair that has exchanged
// at least one message.
func (s *Service) MessagePairs(ctx context.Context) ([]string, error) {
	var rows []messagePair
	err := s.DB.WithContext(ctx).Model(&models.Message{}).
		Distinct("sender_id", "receiver_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows))
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		key := models.ChatKey(r.SenderID, r.ReceiverID)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// --- Chats ---

// UpsertChat creates the summary for the pair or moves it forward to
// lastMessage. A summary never moves back to an older message.
func (s *Service) UpsertChat(ctx context.Context, x, y, lastMessage string, at time.Time) (*models.Chat, error) {
	a, b := models.SortedPair(x, y)
	chat := models.Chat{
		ParticipantA:    a,
		ParticipantB:    b,
		LastMessage:     lastMessage,
		LastMessageTime: at,
	}

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant_a"}, {Name: "participant_b"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_message", "last_message_time"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "chats.last_message_time <= excluded.last_message_time"},
		}},
	}).Create(&chat).Error
	if err != nil {
		return nil, fmt.Errorf("upsert chat %s:%s: %w", a, b, err)
	}

	var stored models.Chat
	if err := s.DB.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", a, b).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload chat %s:%s: %w", a, b, notFound(err))
	}
	return &stored, nil
}

func (s *Service) GetChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.DB.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_message_time desc").
		Find(&chats).Error
	if err != nil {
		slog.Error("storage - GetChatsForUser - query failed", "user_id", userID, "err", err)
		return nil, err
	}
	return chats, nil
}
