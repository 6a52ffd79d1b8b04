// Package rooms models the chat rooms the bot is asked to join and their
// per-room reply settings, and persists both in the rooms table.
package rooms

import (
	"fmt"
	"strings"
)

// Supported platforms.
const (
	Twitch  = "twitch"
	YouTube = "youtube"
	VKPlay  = "vkplay"
)

// RoomTarget identifies one chat room on one platform. Handle is always
// normalized, so two targets are the same room iff they compare equal.
type RoomTarget struct {
	Platform string
	Handle   string
}

// NewTarget normalizes raw for platform and returns the resulting target.
func NewTarget(platform, raw string) RoomTarget {
	p := strings.ToLower(strings.TrimSpace(platform))
	return RoomTarget{Platform: p, Handle: Normalize(p, raw)}
}

func (t RoomTarget) String() string { return t.Platform + ":" + t.Handle }

// Valid reports whether both parts are present.
func (t RoomTarget) Valid() bool { return t.Platform != "" && t.Handle != "" }

// ParseTarget parses "platform:handle" as produced by String.
func ParseTarget(s string) (RoomTarget, error) {
	p, h, ok := strings.Cut(s, ":")
	if !ok {
		return RoomTarget{}, fmt.Errorf("room %q: want platform:handle", s)
	}
	t := NewTarget(p, h)
	if !t.Valid() {
		return RoomTarget{}, fmt.Errorf("room %q: empty platform or handle", s)
	}
	return t, nil
}

var urlPrefixes = map[string][]string{
	Twitch:  {"twitch.tv/", "m.twitch.tv/"},
	YouTube: {"youtube.com/@", "youtube.com/c/", "youtube.com/", "m.youtube.com/@"},
	VKPlay:  {"live.vkplay.ru/", "live.vkvideo.ru/", "vkplay.live/"},
}

// Normalize turns a raw room identifier or URL into a lowercase handle.
// Scheme, www., the platform's URL prefix, leading '@' and surrounding
// slashes are removed, and anything after the handle's path segment is
// dropped. Normalize is idempotent.
func Normalize(platform, raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	for _, p := range urlPrefixes[strings.ToLower(platform)] {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	s = strings.Trim(s, "/")
	s = strings.TrimLeft(s, "@")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
