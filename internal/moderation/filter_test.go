package moderation_test

import (
	"anonchat/backend/internal/moderation"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Evaluate(t *testing.T) {
	f := moderation.NewFilter()

	tests := []struct {
		name     string
		text     string
		allowed  bool
		wantRule string
	}{
		{"plain greeting", "hey, how's it going?", true, ""},
		{"empty", "", true, ""},
		{"numbers in conversation", "I have 2 cats and 3 dogs", true, ""},
		{"platform inside another word", "my telegraph hobby", true, ""},
		{"email", "reach me at test@example.com", false, "email"},
		{"phone", "call me at +1 555-123-4567", false, "phone"},
		{"phone with brackets", "(555) 123 4567", false, "phone"},
		{"long digit run", "0044123456789012", false, "phone"},
		{"handle", "I'm @night_owl there", false, "handle"},
		{"url", "look at https://www.example.com/about", false, "url"},
		{"introduction", "Hi! My name is Sam", false, "introduction"},
		{"introduction mixed case", "DM ME later", false, "introduction"},
		{"platform", "add me on telegram", false, "introduction"},
		{"platform only", "are you on WhatsApp?", false, "platform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.Evaluate(tt.text)

			assert.Equal(t, tt.allowed, v.Allowed)
			assert.Equal(t, tt.wantRule, v.Rule)
			if tt.allowed {
				assert.Empty(t, v.Reason)
			} else {
				assert.NotEmpty(t, v.Reason)
			}
		})
	}
}

func TestFilter_Reasons(t *testing.T) {
	f := moderation.NewFilter()

	assert.Equal(t, moderation.ReasonContactInfo, f.Evaluate("mail me: a.b@c.io").Reason)
	assert.Equal(t, moderation.ReasonIntroduction, f.Evaluate("you can call me Alex").Reason)
}

func BenchmarkFilter_Evaluate(b *testing.B) {
	f := moderation.NewFilter()
	text := "hey, what kind of music do you listen to these days? anything new?"
	for i := 0; i < b.N; i++ {
		f.Evaluate(text)
	}
}
