// Package storagetest provides an in-memory database for tests in other packages.
package storagetest

import (
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/storage"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a fresh, migrated in-memory SQLite database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, storage.Migrate(db))
	return db
}

// NewService returns a storage service backed by NewDB and no Redis.
func NewService(t testing.TB) *storage.Service {
	t.Helper()
	return storage.NewStorageService(NewDB(t), nil)
}

// CreateUser inserts a user with a derived email and a dummy password hash.
func CreateUser(t testing.TB, s *storage.Service, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Avatar:       "https://api.dicebear.com/7.x/adventurer/svg?seed=" + username,
		LastSeen:     time.Now().UTC(),
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}
