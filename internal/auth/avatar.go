package auth

import (
	"anonchat/backend/internal/config"
	"math/rand/v2"
	"net/url"
)

const avatarBackgrounds = "b6e3f4,c0aede,d1d4f9,ffd5dc,ffdfbf"

// AvatarURL picks a random dicebear style seeded by seed.
func AvatarURL(seed string) string {
	style := config.AvatarStyles[rand.IntN(len(config.AvatarStyles))]
	return "https://api.dicebear.com/7.x/" + style + "/svg?seed=" + url.QueryEscape(seed) + "&backgroundColor=" + avatarBackgrounds
}
