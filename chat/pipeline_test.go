package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/neurobot/llm"
	"github.com/onnwee/neurobot/memory"
	"github.com/onnwee/neurobot/policy"
	"github.com/onnwee/neurobot/reply"
	"github.com/onnwee/neurobot/rooms"
)

type staticConfigs struct {
	cfg rooms.Config
	err error
}

func (s staticConfigs) Config(_ context.Context, t rooms.RoomTarget) (rooms.Config, error) {
	if s.err != nil {
		return rooms.Config{}, s.err
	}
	c := s.cfg
	c.Target = t
	return c, nil
}

type recordingGen struct {
	mu    sync.Mutex
	out   string
	err   error
	calls []llm.Request
}

func (g *recordingGen) Generate(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	return g.out, g.err
}

type recordingSender struct {
	sent []string
	err  error
}

func (s *recordingSender) Send(_ context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

type failingMemory struct{}

func (failingMemory) Append(context.Context, memory.Turn) error { return errors.New("disk full") }
func (failingMemory) Recent(context.Context, string, string, int) ([]memory.Turn, error) {
	return nil, errors.New("disk full")
}
func (failingMemory) Log(context.Context, memory.LogEntry) error { return errors.New("disk full") }

var testRoom = rooms.RoomTarget{Platform: rooms.Twitch, Handle: "room"}

type pipelineFixture struct {
	p    *Pipeline
	mem  *memory.MemStore
	gen  *recordingGen
	out  *recordingSender
	rand float64
}

func newFixture(cfg rooms.Config) *pipelineFixture {
	mem := memory.NewMemStore()
	gen := &recordingGen{out: "Играю в Тарков."}
	engine := policy.NewEngine("НейроБот", "нейробот", []string{"Kappa_GPT"})
	f := &pipelineFixture{mem: mem, gen: gen, out: &recordingSender{}, rand: 0.99}
	engine.Rand = func() float64 { return f.rand }
	f.p = &Pipeline{
		Configs:  staticConfigs{cfg: cfg},
		Policy:   engine,
		Composer: reply.New(mem, gen),
		Memory:   mem,
		Audit:    mem,
		BotName:  "НейроБот",
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
	}
	return f
}

func (f *pipelineFixture) turns(t *testing.T) []memory.Turn {
	t.Helper()
	turns, err := f.mem.Recent(context.Background(), testRoom.Platform, testRoom.Handle, memory.MaxLimit)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	return turns
}

func TestPipelineFactsScenario(t *testing.T) {
	f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeAll, Prompt: "игра, тарков"})
	f.p.Handle(context.Background(), testRoom, f.out, Event{
		MsgID: "m-1", UserID: "42", Login: "vasya", DisplayName: "Vasya",
		Text: "привет, во что играешь?",
	})

	if len(f.gen.calls) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(f.gen.calls))
	}
	if sys := f.gen.calls[0].System; !strings.Contains(sys, "Факты о канале") || !strings.Contains(sys, "игра, тарков") {
		t.Errorf("facts section missing:\n%s", sys)
	}
	if len(f.out.sent) != 1 || f.out.sent[0] != "Vasya, Играю в Тарков." {
		t.Fatalf("sent = %q", f.out.sent)
	}
	turns := f.turns(t)
	if len(turns) != 2 || turns[0].Role != memory.RoleUser || turns[1].Role != memory.RoleAssistant {
		t.Fatalf("turns = %+v", turns)
	}
	if turns[0].UserID != "42" || turns[1].Username != "НейроБот" || turns[1].UserID != "" {
		t.Errorf("turn identities = %+v", turns)
	}
	entries := f.mem.Entries()
	if len(entries) != 1 || entries[0].MsgID != "m-1" || entries[0].Response != f.out.sent[0] || entries[0].Moderated {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestPipelineModerationScenario(t *testing.T) {
	f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeAll, NegativePrompt: "политика"})
	f.p.Handle(context.Background(), testRoom, f.out, Event{MsgID: "m-2", Login: "vasya", Text: "поговорим про политику"})

	if len(f.gen.calls) != 0 {
		t.Fatal("backend must not be called for moderated topics")
	}
	want := "vasya, такие темы здесь не обсуждаем. Давайте без этого."
	if len(f.out.sent) != 1 || f.out.sent[0] != want {
		t.Fatalf("sent = %q", f.out.sent)
	}
	turns := f.turns(t)
	if len(turns) != 2 || turns[1].Message != want {
		t.Fatalf("turns = %+v", turns)
	}
	if e := f.mem.Entries(); len(e) != 1 || !e[0].Moderated {
		t.Fatalf("audit = %+v", e)
	}
}

func TestPipelineHardSkips(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{"self", Event{Login: "bot", Text: "hi", FromSelf: true}},
		{"blocked", Event{DisplayName: "Kappa_GPT", Text: "hi"}},
		{"bot name", Event{DisplayName: "НейроБот", Text: "hi"}},
		{"empty", Event{Login: "vasya", Text: "   "}},
		{"emoji", Event{Login: "vasya", Text: "🔥🔥🔥"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeAll})
			f.p.Handle(context.Background(), testRoom, f.out, tt.ev)
			if len(f.turns(t)) != 0 || len(f.out.sent) != 0 || len(f.gen.calls) != 0 {
				t.Fatal("hard skip must leave no trace")
			}
		})
	}
}

func TestPipelineModeSkipLeavesMemoryUntouched(t *testing.T) {
	for _, mode := range []rooms.ReplyMode{rooms.ModeOff, rooms.ModeMention, rooms.ModeRandom} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(rooms.Config{Enabled: true, Mode: mode})
			f.p.Handle(context.Background(), testRoom, f.out, Event{Login: "vasya", Text: "просто болтаю"})
			if len(f.out.sent) != 0 || len(f.gen.calls) != 0 {
				t.Fatalf("mode %s must not answer plain chatter", mode)
			}
			if turns := f.turns(t); len(turns) != 0 {
				t.Fatalf("declined message reached memory: %+v", turns)
			}
		})
	}
}

func TestPipelineMentionAnswered(t *testing.T) {
	f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeMention})
	f.p.Handle(context.Background(), testRoom, f.out, Event{Login: "vasya", Text: "просто болтаю"})
	f.p.Handle(context.Background(), testRoom, f.out, Event{Login: "vasya", Text: "@нейробот ты тут?"})
	if len(f.out.sent) != 1 {
		t.Fatalf("mention not answered: %q", f.out.sent)
	}
	turns := f.turns(t)
	if len(turns) != 2 || turns[0].Message != "@нейробот ты тут?" {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestPipelineRandomMode(t *testing.T) {
	f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeRandom})
	f.rand = 0.5
	f.p.Handle(context.Background(), testRoom, f.out, Event{Login: "a", Text: "раз"})
	f.rand = 0.1
	f.p.Handle(context.Background(), testRoom, f.out, Event{Login: "a", Text: "два"})
	if len(f.out.sent) != 1 {
		t.Fatalf("sent = %q, want exactly one", f.out.sent)
	}
}

func TestPipelineBackendFailure(t *testing.T) {
	for _, gen := range []*recordingGen{{err: errors.New("timeout")}, {out: ""}} {
		f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeAll})
		f.gen.out, f.gen.err = gen.out, gen.err
		f.p.Handle(context.Background(), testRoom, f.out, Event{MsgID: "m", Login: "vasya", Text: "как дела?"})
		if len(f.out.sent) != 0 {
			t.Fatalf("sent = %q", f.out.sent)
		}
		if turns := f.turns(t); len(turns) != 1 || turns[0].Role != memory.RoleUser {
			t.Fatalf("turns = %+v", turns)
		}
		if len(f.mem.Entries()) != 0 {
			t.Fatal("no audit row expected")
		}
	}
}

func TestPipelineSendFailure(t *testing.T) {
	f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeAll})
	f.out.err = ErrConnClosed
	f.p.Handle(context.Background(), testRoom, f.out, Event{MsgID: "m", Login: "vasya", Text: "как дела?"})
	if turns := f.turns(t); len(turns) != 1 {
		t.Fatalf("turns = %+v", turns)
	}
	if len(f.mem.Entries()) != 0 {
		t.Fatal("no audit row expected")
	}
}

func TestPipelineModeratedSendFailureStillRecorded(t *testing.T) {
	f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeAll, NegativePrompt: "политика"})
	f.out.err = ErrConnClosed
	f.p.Handle(context.Background(), testRoom, f.out, Event{MsgID: "m-3", Login: "vasya", Text: "поговорим про политику"})

	if len(f.gen.calls) != 0 {
		t.Fatal("backend must not be called for moderated topics")
	}
	turns := f.turns(t)
	if len(turns) != 2 || turns[1].Role != memory.RoleAssistant || turns[1].Message != reply.RefusalFor("vasya") {
		t.Fatalf("turns = %+v", turns)
	}
	e := f.mem.Entries()
	if len(e) != 1 || e[0].MsgID != "m-3" || !e[0].Moderated || e[0].Response != reply.RefusalFor("vasya") {
		t.Fatalf("audit = %+v", e)
	}
}

func TestPipelineConfigFailureSkips(t *testing.T) {
	f := newFixture(rooms.Config{})
	f.p.Configs = staticConfigs{err: errors.New("db down")}
	f.p.Handle(context.Background(), testRoom, f.out, Event{Login: "vasya", Text: "как дела?"})
	if len(f.turns(t)) != 0 || len(f.out.sent) != 0 {
		t.Fatal("message should be skipped")
	}
}

func TestPipelinePersistenceFailureStillReplies(t *testing.T) {
	gen := &recordingGen{out: "норм"}
	p := &Pipeline{
		Configs:  staticConfigs{cfg: rooms.Config{Enabled: true, Mode: rooms.ModeAll}},
		Policy:   policy.NewEngine("НейроБот", "", nil),
		Composer: reply.New(failingMemory{}, gen),
		Memory:   failingMemory{},
		Audit:    failingMemory{},
		BotName:  "НейроБот",
	}
	out := &recordingSender{}
	p.Handle(context.Background(), testRoom, out, Event{Login: "vasya", Text: "как дела?"})
	if len(out.sent) != 1 || out.sent[0] != "vasya, норм" {
		t.Fatalf("sent = %q", out.sent)
	}
}

func TestPipelineRedeliveryRefreshesAudit(t *testing.T) {
	f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeAll})
	ev := Event{MsgID: "dup", Login: "vasya", Text: "как дела?"}
	f.p.Handle(context.Background(), testRoom, f.out, ev)
	f.gen.out = "Отлично."
	f.p.Handle(context.Background(), testRoom, f.out, ev)
	entries := f.mem.Entries()
	if len(entries) != 1 || entries[0].Response != "vasya, Отлично." {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestPipelineHandlerUsesSession(t *testing.T) {
	f := newFixture(rooms.Config{Enabled: true, Mode: rooms.ModeAll})
	s := newSession(testRoom, testOptions().withDefaults())
	c := newFakeConn()
	s.conn = c
	f.p.Handler()(context.Background(), s, Event{Login: "vasya", Text: "как дела?"})
	got := c.entries()
	if len(got) != 1 || got[0] != "send:vasya, Играю в Тарков." {
		t.Fatalf("conn calls = %q", got)
	}
}
