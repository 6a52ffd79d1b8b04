// Package classify holds the stateless text predicates and transforms used by
// the reply pipeline: mention and emoji-only detection, greeting stripping,
// word limiting and prompt keyword matching.
//
// Everything here is deterministic and safe for concurrent use.
package classify

import (
	"regexp"
	"strings"
)

// DefaultMention is the invocation keyword the bot answers to.
const DefaultMention = "нейробот"

// MentionDetector reports whether a message addresses the bot by keyword.
type MentionDetector struct {
	re *regexp.Regexp
}

// NewMentionDetector builds a detector for keyword. The keyword must appear as
// a whole token, optionally prefixed with '@'; matching is case-insensitive.
func NewMentionDetector(keyword string) *MentionDetector {
	keyword = strings.TrimPrefix(strings.TrimSpace(keyword), "@")
	if keyword == "" {
		keyword = DefaultMention
	}
	// RE2 has no lookahead, so the trailing boundary is consumed as a group.
	pattern := `(?i)(?:^|[^\p{L}\p{N}_])@?` + regexp.QuoteMeta(keyword) + `(?:$|[^\p{L}\p{N}_])`
	return &MentionDetector{re: regexp.MustCompile(pattern)}
}

// Mentioned reports whether text contains the keyword as a whole token.
func (d *MentionDetector) Mentioned(text string) bool {
	if d == nil || text == "" {
		return false
	}
	return d.re.MatchString(text)
}

var defaultMention = NewMentionDetector(DefaultMention)

// IsMentioned checks text against DefaultMention.
func IsMentioned(text string) bool { return defaultMention.Mentioned(text) }
