// Package library merges the built-in sounds with the external catalog into
// one browsing surface and resolves playable sources for them.
package library

import "github.com/starford/lockchime/internal/models"

var bundled = []models.BundledSound{
	{ID: "1", Name: "Digital Chime", Duration: "0:01", Category: "chime", AudioRef: "assets/sounds/digital-chime.wav"},
	{ID: "2", Name: "Sci-Fi Beep", Duration: "0:01", Category: "sci-fi", AudioRef: "assets/sounds/sci-fi-beep.wav"},
	{ID: "3", Name: "Soft Bell", Duration: "0:01", Category: "bell", AudioRef: "assets/sounds/soft-bell.wav"},
	{ID: "4", Name: "Electric Zap", Duration: "0:01", Category: "sci-fi", AudioRef: "assets/sounds/electric-zap.wav"},
	{ID: "5", Name: "Future Lock", Duration: "0:01", Category: "chime", AudioRef: "assets/sounds/future-lock.wav"},
	{ID: "6", Name: "Notification Ping", Duration: "0:01", Category: "notification", AudioRef: "assets/sounds/notification-ping.wav"},
	{ID: "7", Name: "Retro Game", Duration: "0:01", Category: "retro", AudioRef: "assets/sounds/retro-game.wav"},
	{ID: "8", Name: "Crystal Ding", Duration: "0:01", Category: "bell", AudioRef: "assets/sounds/crystal-ding.wav"},
	{ID: "9", Name: "Robot Voice", Duration: "0:01", Category: "sci-fi", AudioRef: "assets/sounds/robot-voice.wav"},
	{ID: "10", Name: "Horn Melody", Duration: "0:01", Category: "horn", AudioRef: "assets/sounds/horn-melody.wav"},
}

// Bundled returns the sounds shipped with the app, in display order.
func Bundled() []models.BundledSound {
	out := make([]models.BundledSound, len(bundled))
	copy(out, bundled)
	return out
}
