package rooms

import (
	"fmt"
	"strings"
)

// ReplyMode selects which inbound messages a room answers.
type ReplyMode int

const (
	ModeOff ReplyMode = iota
	ModeAll
	ModeMention
	ModeRandom
	// ModeMentionRandom answers mentions and, failing that, a random share.
	ModeMentionRandom
)

var modeNames = map[ReplyMode]string{
	ModeOff:           "off",
	ModeAll:           "all",
	ModeMention:       "mention",
	ModeRandom:        "random",
	ModeMentionRandom: "mention_random",
}

func (m ReplyMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ReplyMode(%d)", int(m))
}

// ParseReplyMode accepts the names produced by String.
func ParseReplyMode(s string) (ReplyMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeOff, fmt.Errorf("unknown reply mode %q", s)
}

// ModeFromFlags folds the three stored booleans into one mode. all wins over
// everything; mention and random combine.
func ModeFromFlags(all, random, mention bool) ReplyMode {
	switch {
	case all:
		return ModeAll
	case mention && random:
		return ModeMentionRandom
	case mention:
		return ModeMention
	case random:
		return ModeRandom
	}
	return ModeOff
}

// Flags expands the mode back into (all, random, mention).
func (m ReplyMode) Flags() (all, random, mention bool) {
	switch m {
	case ModeAll:
		return true, false, false
	case ModeMention:
		return false, false, true
	case ModeRandom:
		return false, true, false
	case ModeMentionRandom:
		return false, true, true
	}
	return false, false, false
}
