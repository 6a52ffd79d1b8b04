// Package policy decides, per inbound message, whether the bot answers and
// how: normally, with the room's facts injected, or with a refusal.
package policy

import (
	"math/rand/v2"
	"strings"

	"github.com/onnwee/neurobot/classify"
	"github.com/onnwee/neurobot/rooms"
)

// RandomReplyChance is the probability a random-mode room answers a message.
const RandomReplyChance = 0.30

// SkipReason explains a hard skip.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipSelf      SkipReason = "self"
	SkipBlocked   SkipReason = "blocked_sender"
	SkipEmpty     SkipReason = "empty"
	SkipEmojiOnly SkipReason = "emoji_only"
	SkipMode      SkipReason = "mode"
)

// Message is what the engine needs to know about an inbound event.
type Message struct {
	Text     string
	Username string
	// FromSelf is set by transports that can tell the bot's own echoes apart.
	FromSelf bool
}

// Decision is the engine's verdict for one message.
type Decision struct {
	Respond   bool
	UseFacts  bool
	Moderated bool
	// Skip is set whenever no reply will be produced. Only hard skips keep
	// the message out of memory.
	Skip SkipReason
	// Mentioned records whether the mention detector fired.
	Mentioned bool
}

// HardSkip reports whether the message was dropped before mode evaluation.
func (d Decision) HardSkip() bool { return d.Skip != SkipNone && d.Skip != SkipMode }

// Engine evaluates messages against a room's configuration.
type Engine struct {
	BotName   string
	blocklist map[string]struct{}
	mention   *classify.MentionDetector
	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// NewEngine builds an engine. blocklist entries are matched
// case-insensitively against the sender's display name.
func NewEngine(botName, mentionKeyword string, blocklist []string) *Engine {
	e := &Engine{
		BotName:   botName,
		blocklist: make(map[string]struct{}, len(blocklist)+1),
		mention:   classify.NewMentionDetector(mentionKeyword),
		Rand:      rand.Float64,
	}
	for _, name := range append(blocklist, botName) {
		if n := strings.ToLower(strings.TrimSpace(name)); n != "" {
			e.blocklist[n] = struct{}{}
		}
	}
	return e
}

// Decide applies, in order: hard skips, the room's reply mode, the negative
// prompt and finally the facts relevance check.
func (e *Engine) Decide(msg Message, cfg rooms.Config) Decision {
	var d Decision
	text := strings.TrimSpace(msg.Text)
	switch {
	case msg.FromSelf:
		d.Skip = SkipSelf
		return d
	case e.blocked(msg.Username):
		d.Skip = SkipBlocked
		return d
	case text == "":
		d.Skip = SkipEmpty
		return d
	case classify.IsEmojiOnly(text):
		d.Skip = SkipEmojiOnly
		return d
	}

	d.Mentioned = e.mention.Mentioned(text)
	d.Respond = e.modeAllows(cfg.Mode, d.Mentioned)
	if !d.Respond {
		d.Skip = SkipMode
		return d
	}

	if strings.TrimSpace(cfg.NegativePrompt) != "" && classify.MatchesPrompt(text, cfg.NegativePrompt) {
		d.Moderated = true
		return d
	}

	if strings.TrimSpace(cfg.Prompt) != "" {
		kw := classify.Keywords(cfg.Prompt)
		d.UseFacts = classify.Matches(text, kw) || classify.ImpliedIntent(text, kw)
	}
	return d
}

func (e *Engine) blocked(username string) bool {
	_, ok := e.blocklist[strings.ToLower(strings.TrimSpace(username))]
	return ok
}

// modeAllows draws the random chance only when the mode needs it, so each
// message gets its own independent draw.
func (e *Engine) modeAllows(m rooms.ReplyMode, mentioned bool) bool {
	switch m {
	case rooms.ModeAll:
		return true
	case rooms.ModeMention:
		return mentioned
	case rooms.ModeRandom:
		return e.draw()
	case rooms.ModeMentionRandom:
		return mentioned || e.draw()
	}
	return false
}

func (e *Engine) draw() bool {
	r := e.Rand
	if r == nil {
		r = rand.Float64
	}
	return r() < RandomReplyChance
}
