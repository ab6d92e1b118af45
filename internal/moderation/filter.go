// Package moderation rejects messages that try to move a conversation off the
// platform: contact details, handles, links, introductions and named messengers.
package moderation

import (
	"regexp"
	"strings"
)

const (
	ReasonContactInfo  = "Message contains prohibited content (contact information or personal details)"
	ReasonIntroduction = "Messages containing personal introductions are not allowed"
)

// Verdict is the outcome of evaluating one message. Rule names the first rule
// that matched and is empty when the message is allowed.
type Verdict struct {
	Allowed bool
	Rule    string
	Reason  string
}

type rule struct {
	name   string
	match  func(text string) bool
	reason string
}

var (
	emailPattern    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern    = regexp.MustCompile(`(\+?\d{1,4}[\s-]?)?(\(?\d{3}\)?[\s-]?)\d{3}[\s-]?\d{4}`)
	digitsPattern   = regexp.MustCompile(`(\+?\d{1,4}[\s-]?)?\d{10,}`)
	handlePattern   = regexp.MustCompile(`@[A-Za-z0-9_]+`)
	urlPattern      = regexp.MustCompile(`https?://(www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_+.~#?&/=]*)`)
	platformPattern = regexp.MustCompile(`(?i)\b(whatsapp|telegram|instagram|facebook|twitter|snapchat|discord|skype|wechat|viber|tiktok)\b`)
)

// introPhrases are matched as plain substrings of the lower-cased text.
var introPhrases = []string{
	"my name is",
	"my name's",
	"call me",
	"contact me",
	"reach me",
	"find me",
	"add me",
	"follow me",
	"dm me",
	"text me",
}

func containsIntroduction(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range introPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Order matters: email runs before handle, otherwise the domain part of an
// address is reported as a handle.
var rules = []rule{
	{"email", emailPattern.MatchString, ReasonContactInfo},
	{"phone", phonePattern.MatchString, ReasonContactInfo},
	{"digits", digitsPattern.MatchString, ReasonContactInfo},
	{"handle", handlePattern.MatchString, ReasonContactInfo},
	{"url", urlPattern.MatchString, ReasonContactInfo},
	{"introduction", containsIntroduction, ReasonIntroduction},
	{"platform", platformPattern.MatchString, ReasonContactInfo},
}

// Filter is stateless and safe for concurrent use.
type Filter struct{}

func NewFilter() *Filter {
	return &Filter{}
}

// Evaluate returns on the first rule that matches.
func (f *Filter) Evaluate(text string) Verdict {
	for _, r := range rules {
		if r.match(text) {
			return Verdict{Rule: r.name, Reason: r.reason}
		}
	}
	return Verdict{Allowed: true}
}
