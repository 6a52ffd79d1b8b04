package classify

import (
	"reflect"
	"testing"
)

func TestMentioned(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"привет нейробот", true},
		{"@НЕЙРОБОТ", true},
		{"нейробот, как дела?", true},
		{"эй,@нейробот!", true},
		{"нейроботов много", false},
		{"супернейробот", false},
		{"нейробот_2", false},
		{"", false},
		{"просто сообщение", false},
	}
	for _, tt := range tests {
		if got := IsMentioned(tt.text); got != tt.want {
			t.Errorf("IsMentioned(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestMentionDetectorCustomKeyword(t *testing.T) {
	d := NewMentionDetector("@botty")
	if !d.Mentioned("hey BOTTY what's up") {
		t.Error("expected custom keyword to match case-insensitively")
	}
	if d.Mentioned("bottymcbotface") {
		t.Error("keyword must be a whole token")
	}
	var nilDetector *MentionDetector
	if nilDetector.Mentioned("botty") {
		t.Error("nil detector should never match")
	}
}

func TestIsEmojiOnly(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"🔥🔥🔥", true},
		{"  😂 !!! ", true},
		{"👨‍👩‍👧", true},
		{"❤️", true},
		{"🔥 nice", false},
		{"🔥1", false},
		{"", false},
		{"   ", false},
		{"!!!", false},
		{"привет", false},
	}
	for _, tt := range tests {
		if got := IsEmojiOnly(tt.text); got != tt.want {
			t.Errorf("IsEmojiOnly(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestStripGreeting(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Привет! Как дела", "Как дела"},
		{"привет, друг", "друг"},
		{"Добрый вечер - всё хорошо", "всё хорошо"},
		{"hi there", "there"},
		{"  ку  ", ""},
		{"кукуруза растёт", "кукуруза растёт"},
		{"hint accepted", "hint accepted"},
		{"всё отлично", "всё отлично"},
	}
	for _, tt := range tests {
		if got := StripGreeting(tt.in); got != tt.want {
			t.Errorf("StripGreeting(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLimitWords(t *testing.T) {
	if got := LimitWords("один два   три\nчетыре", 3); got != "один два три" {
		t.Errorf("LimitWords = %q", got)
	}
	if got := LimitWords("a b", 10); got != "a b" {
		t.Errorf("LimitWords short = %q", got)
	}
	if got := LimitWords("", 10); got != "" {
		t.Errorf("LimitWords empty = %q", got)
	}
}

func TestAddress(t *testing.T) {
	if got := Address("норм", "vasya"); got != "vasya, норм" {
		t.Errorf("Address = %q", got)
	}
	if got := Address("норм", UnknownSender); got != "норм" {
		t.Errorf("unknown sender should not be addressed, got %q", got)
	}
	if got := Address("", "vasya"); got != "" {
		t.Errorf("empty reply should stay empty, got %q", got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Я из Питера, ЁЖИК 18+ a")
	want := []string{"из", "питера", "ежик", "18+"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestKeywordsKeepsExpandedToken(t *testing.T) {
	kw := Keywords("играю")
	if len(kw) == 0 || kw[0] != "играю" {
		t.Fatalf("Keywords(играю) = %v, want the token itself first", kw)
	}
	if !contains(kw, "играешь") {
		t.Errorf("synonyms missing: %v", kw)
	}
	if !Matches("я играю каждый вечер", kw) {
		t.Error("message with the bare token should match")
	}
}

func TestKeywordsExpandsSynonyms(t *testing.T) {
	kw := Keywords("спб, тарков")
	for _, want := range []string{"петербург", "escape", "питер", "tarkov"} {
		if !contains(kw, want) {
			t.Errorf("Keywords missing %q: %v", want, kw)
		}
	}
	seen := map[string]bool{}
	for _, k := range kw {
		if seen[k] {
			t.Errorf("duplicate keyword %q", k)
		}
		seen[k] = true
	}
	if kw[0] != "спб" {
		t.Errorf("expected first-seen order, got %v", kw)
	}
}

func TestMatchesPrompt(t *testing.T) {
	tests := []struct {
		text, prompt string
		want         bool
	}{
		{"я из петербурга", "спб, тарков", true},
		{"я из москвы", "спб, тарков", false},
		{"поговорим про политику", "политика", true},
		{"во что играешь", "игра", true},
		{"", "спб", false},
		{"я из петербурга", "", false},
	}
	for _, tt := range tests {
		if got := MatchesPrompt(tt.text, tt.prompt); got != tt.want {
			t.Errorf("MatchesPrompt(%q, %q) = %v, want %v", tt.text, tt.prompt, got, tt.want)
		}
	}
}

func TestImpliedIntent(t *testing.T) {
	kw := Keywords("игра, тарков")
	if !ImpliedIntent("Привет, во что играешь?", kw) {
		t.Error("expected game intent to match")
	}
	if ImpliedIntent("как тебя зовут", kw) {
		t.Error("name intent has no supporting keyword")
	}
	if !ImpliedIntent("откуда ты?", Keywords("спб")) {
		t.Error("expected location intent to match")
	}
	if ImpliedIntent("откуда ты?", nil) {
		t.Error("no keywords means no intent")
	}
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"политика":  "политик",
		"петербург": "петербург",
		"игра":      "игра",
		"escape":    "escape",
	}
	for in, want := range tests {
		if got := stem(in); got != want {
			t.Errorf("stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
