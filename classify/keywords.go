package classify

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Synonyms expands a prompt token into the keywords it stands for. Lookups
// use the normalized token (lowercase, ё folded to е).
var Synonyms = map[string][]string{
	"спб":     {"спб", "питер", "санкт", "петербург", "санкт-петербург", "санктпетербург"},
	"тарков":  {"тарков", "tarkov", "escape", "эскейп", "эскейпфромтарков", "эскейп-фром-тарков"},
	"имя":     {"имя", "зовут"},
	"лет":     {"лет", "возраст"},
	"возраст": {"лет", "возраст"},
	"игра":    {"игра", "игру", "играешь", "во что", "что играю"},
	"играю":   {"игра", "игру", "играешь", "во что", "что играю"},
	"игру":    {"игра", "игру", "играешь", "во что", "что играю"},
	"контент": {"контент", "18", "18+"},
}

// Intent maps a question pattern to the keywords that would answer it.
type Intent struct {
	Pattern *regexp.Regexp
	Needs   []string
}

// Intents are the implied-question hints checked against a message when its
// tokens do not hit the prompt keywords directly.
var Intents = []Intent{
	{regexp.MustCompile(`(?i)(как.*зовут|зовут|имя)`), []string{"имя", "зовут"}},
	{regexp.MustCompile(`(?i)(сколько.*лет|возраст)`), []string{"лет", "возраст"}},
	{regexp.MustCompile(`(?i)(откуда|город|где.*жив)`), []string{"спб", "питер", "санкт", "петербург", "город"}},
	{regexp.MustCompile(`(?i)(во что.*игра|какую.*игру|играешь)`), []string{"игра", "игру", "играешь", "tarkov", "тарков", "escape"}},
	{regexp.MustCompile(`(?i)(контент|18\+)`), []string{"контент", "18", "18+"}},
}

// Normalize lowercases s and folds ё into е.
func Normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "ё", "е")
}

// Tokenize splits normalized s on anything that is not a letter, digit or
// '+', keeping tokens of two or more runes.
func Tokenize(s string) []string {
	parts := strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+')
	})
	out := parts[:0]
	for _, p := range parts {
		if utf8.RuneCountInString(p) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// Keywords tokenizes a free-form prompt and adds each token followed by its
// Synonyms. The result is deduplicated and keeps first-seen order.
func Keywords(prompt string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, tok := range Tokenize(prompt) {
		add(tok)
		for _, s := range Synonyms[tok] {
			add(s)
		}
	}
	return out
}

// Matches reports whether text touches any of keywords. The message tokens are
// joined with spaces and searched for each keyword, so multi-word keywords and
// prefixes of longer words both hit. Inflected keywords are also tried by stem.
func Matches(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	joined := strings.Join(Tokenize(text), " ")
	if joined == "" {
		return false
	}
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(joined, k) {
			return true
		}
		if st := stem(k); st != k && strings.Contains(joined, st) {
			return true
		}
	}
	return false
}

// MatchesPrompt is Matches over Keywords(prompt).
func MatchesPrompt(text, prompt string) bool {
	return Matches(text, Keywords(prompt))
}

// ImpliedIntent reports whether text asks a question whose answer keywords are
// present in keywords.
func ImpliedIntent(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	bag := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		bag[k] = struct{}{}
	}
	norm := Normalize(text)
	for _, in := range Intents {
		if !in.Pattern.MatchString(norm) {
			continue
		}
		for _, need := range in.Needs {
			if _, ok := bag[need]; ok {
				return true
			}
		}
	}
	return false
}

const vowels = "аеиоуыэюяйь"

// stem drops up to two trailing Cyrillic vowels (or soft sign) from words of
// five runes or more, leaving at least four.
func stem(k string) string {
	r := []rune(k)
	if len(r) < 5 {
		return k
	}
	n := len(r)
	for i := 0; i < 2 && n > 4; i++ {
		if !strings.ContainsRune(vowels, r[n-1]) {
			break
		}
		n--
	}
	return string(r[:n])
}
