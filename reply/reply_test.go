package reply

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/onnwee/neurobot/llm"
	"github.com/onnwee/neurobot/memory"
)

type fakeGen struct {
	out   string
	err   error
	calls int
	last  llm.Request
}

func (f *fakeGen) Generate(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	return f.out, f.err
}

type failingStore struct{ memory.Store }

func (failingStore) Recent(context.Context, string, string, int) ([]memory.Turn, error) {
	return nil, errors.New("db down")
}

func TestBuildSystem(t *testing.T) {
	got := BuildSystem("", "игра, тарков", false)
	lines := strings.Split(got, "\n")
	if lines[0] != historyHeader || lines[1] != historyEmpty || lines[2] != "" {
		t.Fatalf("header lines = %q", lines[:3])
	}
	if strings.Contains(got, factsHeader) {
		t.Error("facts included without useFacts")
	}

	got = BuildSystem("vasya: hi", "игра, тарков", true)
	if !strings.HasSuffix(got, "\n\n"+factsHeader+"\nигра, тарков") {
		t.Errorf("facts section missing or misplaced:\n%s", got)
	}
	if strings.Index(got, "vasya: hi") > strings.Index(got, rules[0]) {
		t.Error("history must precede rules")
	}
}

func TestPostProcess(t *testing.T) {
	tests := []struct {
		raw, sender, want string
	}{
		{"Привет! Играю в Тарков", "vasya", "vasya, Играю в Тарков"},
		{"один два три четыре пять шесть семь восемь девять десять одиннадцать", "", "один два три четыре пять шесть семь восемь девять десять"},
		{"ответ", "unknown", "ответ"},
		{"Привет!", "vasya", ""},
	}
	for _, tt := range tests {
		if got := PostProcess(tt.raw, tt.sender); got != tt.want {
			t.Errorf("PostProcess(%q, %q) = %q, want %q", tt.raw, tt.sender, got, tt.want)
		}
	}
}

func TestRefusalFor(t *testing.T) {
	want := "vasya, такие темы здесь не обсуждаем. Давайте без этого."
	if got := RefusalFor("vasya"); got != want {
		t.Errorf("got %q", got)
	}
}

func TestCompose(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewMemStore()
	_ = mem.Append(ctx, memory.Turn{Platform: "twitch", Room: "r", Role: memory.RoleUser, Username: "vasya", Message: "привет, во что играешь?"})
	gen := &fakeGen{out: "Здравствуйте, играю в Тарков"}

	out, err := New(mem, gen).Compose(ctx, Input{
		Platform: "twitch", Room: "r", Sender: "vasya",
		Text: "привет, во что играешь?", Facts: "игра, тарков", UseFacts: true,
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if out != "vasya, играю в Тарков" {
		t.Errorf("out = %q", out)
	}
	if gen.last.Prompt != "привет, во что играешь?" || gen.last.Temperature != Temperature || gen.last.MaxTokens != MaxTokens {
		t.Errorf("request = %+v", gen.last)
	}
	if !strings.Contains(gen.last.System, "vasya: привет, во что играешь?") || !strings.Contains(gen.last.System, factsHeader) {
		t.Errorf("system block:\n%s", gen.last.System)
	}
}

func TestComposeFailures(t *testing.T) {
	ctx := context.Background()
	in := Input{Platform: "twitch", Room: "r", Sender: "vasya", Text: "q"}

	if _, err := New(memory.NewMemStore(), &fakeGen{err: errors.New("boom")}).Compose(ctx, in); err == nil {
		t.Error("backend error not returned")
	}
	if _, err := New(memory.NewMemStore(), &fakeGen{out: "  "}).Compose(ctx, in); !errors.Is(err, ErrEmptyReply) {
		t.Errorf("err = %v, want ErrEmptyReply", err)
	}

	gen := &fakeGen{out: "ок"}
	out, err := New(failingStore{}, gen).Compose(ctx, in)
	if err != nil || out != "vasya, ок" {
		t.Fatalf("memory failure should degrade: %q %v", out, err)
	}
	if !strings.Contains(gen.last.System, historyEmpty) {
		t.Error("expected empty history marker")
	}
}
