package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chat is the conversation summary for one unordered pair of users.
// ParticipantA <= ParticipantB always holds; use SortedPair before reading or
// writing so that both directions resolve to the same row.
type Chat struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	ParticipantA    string    `gorm:"not null;uniqueIndex:idx_chat_pair,priority:1" json:"participantA"`
	ParticipantB    string    `gorm:"not null;uniqueIndex:idx_chat_pair,priority:2;index:idx_chat_participant_b" json:"participantB"`
	LastMessage     string    `gorm:"size:1000;not null" json:"lastMessage"`
	LastMessageTime time.Time `gorm:"index" json:"lastMessageTime"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

func (c *Chat) Participants() []string {
	return []string{c.ParticipantA, c.ParticipantB}
}

// OtherParticipant returns the member of the pair that is not userID.
func (c *Chat) OtherParticipant(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

func SortedPair(x, y string) (string, string) {
	if y < x {
		return y, x
	}
	return x, y
}

// ChatKey is the canonical "a:b" key of a pair, independent of argument order.
func ChatKey(x, y string) string {
	a, b := SortedPair(x, y)
	return a + ":" + b
}

// ParseChatKey accepts only canonical keys produced by ChatKey.
func ParseChatKey(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, ":")
	if !ok || a == "" || b == "" || strings.Contains(b, ":") || b < a {
		return "", "", false
	}
	return a, b, true
}
