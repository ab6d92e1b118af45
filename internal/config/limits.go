package config

import "time"

const (
	// Messages
	MaxMessageLength    = 1000
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	SearchLimit         = 50

	// Accounts
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MinPasswordLength = 6
	DefaultTokenTTL   = 7 * 24 * time.Hour
	TokenIssuer       = "anonchat-backend"

	// Realtime
	DefaultAuthTimeout = 10 * time.Second
	DefaultSendBuffer  = 256
)

// AvatarStyles are the dicebear collections a new account can be assigned.
var AvatarStyles = []string{
	"adventurer",
	"avataaars",
	"big-ears",
	"big-smile",
	"croodles",
	"fun-emoji",
}
