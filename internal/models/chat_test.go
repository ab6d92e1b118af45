package models_test

import (
	"anonchat/backend/internal/models"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatKey_IsOrderIndependent(t *testing.T) {
	assert.Equal(t, models.ChatKey("alice", "bob"), models.ChatKey("bob", "alice"))
	assert.Equal(t, "alice:bob", models.ChatKey("bob", "alice"))

	a, b := models.SortedPair("z", "a")
	assert.Equal(t, "a", a)
	assert.Equal(t, "z", b)
}

func TestParseChatKey(t *testing.T) {
	tests := []struct {
		key   string
		ok    bool
		wantA string
		wantB string
	}{
		{"a:b", true, "a", "b"},
		{"b:a", false, "", ""},
		{"a", false, "", ""},
		{":b", false, "", ""},
		{"a:", false, "", ""},
		{"a:b:c", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			a, b, ok := models.ParseChatKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.wantA, a)
			assert.Equal(t, tt.wantB, b)
		})
	}
}

func TestChat_OtherParticipant(t *testing.T) {
	chat := models.Chat{ParticipantA: "a", ParticipantB: "b"}

	assert.Equal(t, "b", chat.OtherParticipant("a"))
	assert.Equal(t, "a", chat.OtherParticipant("b"))
	assert.Equal(t, []string{"a", "b"}, chat.Participants())
}

func TestServerEvent_WireShape(t *testing.T) {
	raw, err := json.Marshal(models.NewPresenceEvent("u1", "fox", false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user_offline","payload":{"userId":"u1","username":"fox","isOnline":false}}`, string(raw))

	raw, err = json.Marshal(models.NewErrorEvent("policy_violation", "nope"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","payload":{"kind":"policy_violation","message":"nope"}}`, string(raw))
}

func TestMessageView_FlattensMessage(t *testing.T) {
	msg := &models.Message{ID: "m1", SenderID: "a", ReceiverID: "b", Content: "hi"}
	view := models.NewMessageView(msg, models.PublicProfile{ID: "a", Username: "fox"}, models.PublicProfile{ID: "b"})

	raw, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "m1", decoded["id"])
	assert.Equal(t, "hi", decoded["content"])
	assert.Equal(t, "fox", decoded["sender"].(map[string]any)["username"])
}
