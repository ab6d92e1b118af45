package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a single direct message. Once stored only IsRead may change, and
// only from false to true.
type Message struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	SenderID   string    `gorm:"not null;index:idx_message_pair,priority:1" json:"senderId"`
	ReceiverID string    `gorm:"not null;index:idx_message_pair,priority:2;index:idx_message_receiver" json:"receiverId"`
	Content    string    `gorm:"size:1000;not null" json:"content"`
	Timestamp  time.Time `gorm:"column:sent_at;not null;index:idx_message_pair,priority:3,sort:desc" json:"timestamp"`
	IsRead     bool      `gorm:"not null;default:false" json:"isRead"`
	// IsBlocked is never set by the send path: filtered content is rejected
	// before it is stored. History queries still exclude blocked rows.
	IsBlocked bool `gorm:"not null;default:false" json:"isBlocked"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// MessageView is a stored message with both participants' public profiles
// attached. It is what clients receive, over the socket and over HTTP.
type MessageView struct {
	Message
	Sender   PublicProfile `json:"sender"`
	Receiver PublicProfile `json:"receiver"`
}

func NewMessageView(m *Message, sender, receiver PublicProfile) *MessageView {
	return &MessageView{Message: *m, Sender: sender, Receiver: receiver}
}
