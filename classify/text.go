package classify

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxReplyWords is the word ceiling applied to every outgoing reply.
const MaxReplyWords = 10

// Greetings lists the openers removed from generated replies. Longer phrases
// come first so that alternation prefers them.
var Greetings = []string{
	"добрый день", "добрый вечер", "доброе утро",
	"здравствуйте", "здрасте", "привет", "дарова", "хай", "ку",
	"hello", "hey", "hi",
}

var greetingRe = buildGreetingRe(Greetings)

func buildGreetingRe(list []string) *regexp.Regexp {
	quoted := make([]string, 0, len(list))
	for _, g := range list {
		quoted = append(quoted, regexp.QuoteMeta(g))
	}
	return regexp.MustCompile(`(?i)^\s*(?:` + strings.Join(quoted, "|") + `)`)
}

// StripGreeting removes a leading greeting token and the punctuation after it.
// Text that does not open with a whole greeting token is only trimmed.
func StripGreeting(s string) string {
	loc := greetingRe.FindStringIndex(s)
	if loc == nil {
		return strings.TrimSpace(s)
	}
	rest := s[loc[1]:]
	if r, _ := utf8.DecodeRuneInString(rest); rest != "" && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		// "кукуруза" is not "ку".
		return strings.TrimSpace(s)
	}
	rest = strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '!' || r == '.' || r == '-'
	})
	return strings.TrimSpace(rest)
}

// LimitWords keeps at most n whitespace-separated words of s, joined by
// single spaces.
func LimitWords(s string, n int) string {
	words := strings.Fields(s)
	if n >= 0 && len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// Address prefixes reply with the sender's name. Unresolved senders are not
// addressed.
func Address(reply, name string) string {
	if reply == "" || name == "" || name == UnknownSender {
		return reply
	}
	return name + ", " + reply
}

// UnknownSender is the display name used when an event carries no identity.
const UnknownSender = "unknown"

var spaceRun = regexp.MustCompile(`\s+`)

// CollapseSpaces folds whitespace runs into one space and trims the ends.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
