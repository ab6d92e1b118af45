package storage_test

import (
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/storage"
	"anonchat/backend/internal/storage/storagetest"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func saveMessage(t *testing.T, s *storage.Service, from, to, text string, at time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{SenderID: from, ReceiverID: to, Content: text, Timestamp: at}
	require.NoError(t, s.SaveMessage(context.Background(), msg))
	return msg
}

func TestUsers_LookupByIdentifier(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	fox := storagetest.CreateUser(t, s, "fox")

	byName, err := s.FindUserByIdentifier(ctx, "fox")
	require.NoError(t, err)
	assert.Equal(t, fox.ID, byName.ID)

	byEmail, err := s.FindUserByIdentifier(ctx, "  FOX@example.com ")
	require.NoError(t, err)
	assert.Equal(t, fox.ID, byEmail.ID)

	_, err = s.FindUserByIdentifier(ctx, "wolf")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUsers_UniqueUsername(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	storagetest.CreateUser(t, s, "fox")

	err := s.CreateUser(ctx, &models.User{Username: "fox", Email: "other@example.com", PasswordHash: "x"})
	assert.Error(t, err)

	clash, err := s.FindUserByEmailOrUsername(ctx, "new@example.com", "fox")
	require.NoError(t, err)
	assert.Equal(t, "fox", clash.Username)
}

func TestGetPublicProfile_WithoutRedis(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	fox := storagetest.CreateUser(t, s, "fox")

	p, err := s.GetPublicProfile(ctx, fox.ID)
	require.NoError(t, err)
	assert.Equal(t, "fox", p.Username)
	assert.Equal(t, fox.Avatar, p.Avatar)

	_, err = s.GetPublicProfile(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSearchUsers_OnlineFirstAndExcludesCaller(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	me := storagetest.CreateUser(t, s, "fox_me")
	offline := storagetest.CreateUser(t, s, "fox_offline")
	online := storagetest.CreateUser(t, s, "Fox_online")
	storagetest.CreateUser(t, s, "wolf")
	require.NoError(t, s.SetPresence(ctx, online.ID, true, base))

	users, err := s.SearchUsers(ctx, me.ID, "FOX", 50)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, online.ID, users[0].ID)
	assert.Equal(t, offline.ID, users[1].ID)

	// "_" is literal, not a wildcard.
	users, err = s.SearchUsers(ctx, me.ID, "x_o", 50)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	users, err = s.SearchUsers(ctx, me.ID, "f_x", 50)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestPresence_SetAndReset(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	a := storagetest.CreateUser(t, s, "a")
	b := storagetest.CreateUser(t, s, "b")
	require.NoError(t, s.SetPresence(ctx, a.ID, true, base))
	require.NoError(t, s.SetPresence(ctx, b.ID, true, base))

	n, err := s.ResetPresence(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
	assert.True(t, got.LastSeen.Equal(base.Add(time.Minute)))
}

func TestGetHistory_PaginatesNewestPageInChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	a := storagetest.CreateUser(t, s, "a")
	b := storagetest.CreateUser(t, s, "b")
	c := storagetest.CreateUser(t, s, "c")

	for i, text := range []string{"1", "2", "3", "4", "5"} {
		from, to := a.ID, b.ID
		if i%2 == 1 {
			from, to = b.ID, a.ID
		}
		saveMessage(t, s, from, to, text, base.Add(time.Duration(i)*time.Second))
	}
	saveMessage(t, s, a.ID, c.ID, "elsewhere", base)

	page1, more, err := s.GetHistory(ctx, b.ID, a.ID, 1, 2)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, page1, 2)
	assert.Equal(t, "4", page1[0].Content)
	assert.Equal(t, "5", page1[1].Content)

	page3, more, err := s.GetHistory(ctx, a.ID, b.ID, 3, 2)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, page3, 1)
	assert.Equal(t, "1", page3[0].Content)
}

func TestGetHistory_ExcludesBlocked(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	a := storagetest.CreateUser(t, s, "a")
	b := storagetest.CreateUser(t, s, "b")

	saveMessage(t, s, a.ID, b.ID, "visible", base)
	hidden := saveMessage(t, s, a.ID, b.ID, "hidden", base.Add(time.Second))
	require.NoError(t, s.DB.Model(hidden).Update("is_blocked", true).Error)

	msgs, _, err := s.GetHistory(ctx, a.ID, b.ID, 1, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "visible", msgs[0].Content)
}

func TestMarkRead_IsIdempotentAndDirectional(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	a := storagetest.CreateUser(t, s, "a")
	b := storagetest.CreateUser(t, s, "b")
	saveMessage(t, s, a.ID, b.ID, "one", base)
	saveMessage(t, s, a.ID, b.ID, "two", base.Add(time.Second))
	saveMessage(t, s, b.ID, a.ID, "reply", base.Add(2*time.Second))

	unread, err := s.CountUnread(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	n, err := s.MarkRead(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.MarkRead(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	unread, err = s.CountUnread(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	// Messages b sent to a are untouched.
	unread, err = s.CountUnread(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestUpsertChat_OneRecordPerPair(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	a := storagetest.CreateUser(t, s, "a")
	b := storagetest.CreateUser(t, s, "b")

	first, err := s.UpsertChat(ctx, a.ID, b.ID, "hi", base)
	require.NoError(t, err)
	second, err := s.UpsertChat(ctx, b.ID, a.ID, "hello back", base.Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "hello back", second.LastMessage)

	var count int64
	require.NoError(t, s.DB.Model(&models.Chat{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	pa, pb := models.SortedPair(a.ID, b.ID)
	assert.Equal(t, pa, second.ParticipantA)
	assert.Equal(t, pb, second.ParticipantB)
}

func TestUpsertChat_NeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	a := storagetest.CreateUser(t, s, "a")
	b := storagetest.CreateUser(t, s, "b")

	_, err := s.UpsertChat(ctx, a.ID, b.ID, "newer", base.Add(time.Minute))
	require.NoError(t, err)
	chat, err := s.UpsertChat(ctx, a.ID, b.ID, "older", base)
	require.NoError(t, err)

	assert.Equal(t, "newer", chat.LastMessage)
}

func TestUpsertChat_ConcurrentBothDirections(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	a := storagetest.CreateUser(t, s, "a")
	b := storagetest.CreateUser(t, s, "b")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a.ID, b.ID
			if i%2 == 0 {
				from, to = b.ID, a.ID
			}
			_, err := s.UpsertChat(ctx, from, to, "msg", base.Add(time.Duration(i)*time.Second))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	chats, err := s.GetChatsForUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.True(t, chats[0].LastMessageTime.Equal(base.Add(9*time.Second)))
}

func TestGetChatsForUser_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	a := storagetest.CreateUser(t, s, "a")
	b := storagetest.CreateUser(t, s, "b")
	c := storagetest.CreateUser(t, s, "c")

	_, err := s.UpsertChat(ctx, a.ID, b.ID, "old", base)
	require.NoError(t, err)
	_, err = s.UpsertChat(ctx, c.ID, a.ID, "new", base.Add(time.Hour))
	require.NoError(t, err)

	chats, err := s.GetChatsForUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "new", chats[0].LastMessage)
	assert.Equal(t, c.ID, chats[0].OtherParticipant(a.ID))

	chats, err = s.GetChatsForUser(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestLatestMessageAndPairs(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewService(t)
	a := storagetest.CreateUser(t, s, "a")
	b := storagetest.CreateUser(t, s, "b")
	c := storagetest.CreateUser(t, s, "c")

	saveMessage(t, s, a.ID, b.ID, "first", base)
	saveMessage(t, s, b.ID, a.ID, "last", base.Add(time.Second))
	saveMessage(t, s, c.ID, a.ID, "other", base)

	latest, err := s.LatestMessageBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "last", latest.Content)

	_, err = s.LatestMessageBetween(ctx, b.ID, c.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	pairs, err := s.MessagePairs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.ChatKey(a.ID, b.ID), models.ChatKey(a.ID, c.ID)}, pairs)
}

func TestReconcileQueue_RequiresRedis(t *testing.T) {
	s := storagetest.NewService(t)

	assert.ErrorIs(t, s.EnqueueReconcile(context.Background(), "a:b"), storage.ErrCacheUnavailable)
	_, err := s.PopReconcile(context.Background())
	assert.ErrorIs(t, err, storage.ErrCacheUnavailable)
}
