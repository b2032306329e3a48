package game

import "math/rand/v2"

// Emojis are the avatars a player can wear, addressed by index on the wire.
var Emojis = []string{
	"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼", "🐨", "🐯",
	"🍏", "🍎", "🍐", "🍊", "🍋", "🍌", "🍉", "🍇", "🍓", "🍈",
	"🍄", "🚗", "🚕", "🚙", "🚌", "🚎", "🏎️", "🚓", "🚑", "🚒",
	"🚐", "🏠", "🏡", "🏘️", "🏚️", "🏢", "🏬", "🏣", "🏤", "🏥",
	"🏦",
}

// RandomEmoji returns a random index into Emojis.
func RandomEmoji() int {
	return rand.IntN(len(Emojis))
}

// Emoji returns the avatar at idx, or a placeholder for an unknown index.
func Emoji(idx int) string {
	if idx < 0 || idx >= len(Emojis) {
		return "?"
	}
	return Emojis[idx]
}
