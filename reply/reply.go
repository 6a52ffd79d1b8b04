// Package reply turns a policy decision into the text the bot sends: either
// a fixed refusal or a short generated answer built from the room's memory.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/neurobot/classify"
	"github.com/onnwee/neurobot/llm"
	"github.com/onnwee/neurobot/memory"
	"github.com/onnwee/neurobot/telemetry"
)

// Refusal is sent instead of calling the backend on moderated topics.
const Refusal = "такие темы здесь не обсуждаем. Давайте без этого."

// Sampling parameters for short, stable replies.
const (
	Temperature = 0.25
	MaxTokens   = 80
)

// ErrEmptyReply means the backend produced nothing usable.
var ErrEmptyReply = errors.New("empty reply")

const (
	historyHeader = "Контекст недавнего диалога (сначала старые, потом новые):"
	historyEmpty  = "(пусто)"
	factsHeader   = "Факты о канале (через запятую, верь им и не придумывай):"
)

var rules = []string{
	"Отвечай КРАТКО, по-русски, максимум 10 слов.",
	"Не начинай с приветствий. Не обращайся по имени — имя будет добавлено программно.",
	"Без лишних вступлений и эмодзи.",
	"Если в контексте канала есть готовые факты — используй их строго и не выдумывай. Если факта нет, честно скажи, что не знаешь или уточни вопрос.",
}

// BuildSystem assembles the instruction block: history first, then rules,
// then the facts when requested.
func BuildSystem(history, facts string, useFacts bool) string {
	if strings.TrimSpace(history) == "" {
		history = historyEmpty
	}
	lines := make([]string, 0, len(rules)+6)
	lines = append(lines, historyHeader, history, "")
	lines = append(lines, rules...)
	if useFacts && strings.TrimSpace(facts) != "" {
		lines = append(lines, "", factsHeader, facts)
	}
	return strings.Join(lines, "\n")
}

// PostProcess strips a greeting, limits the word count and addresses the
// sender.
func PostProcess(raw, sender string) string {
	short := classify.LimitWords(classify.StripGreeting(raw), classify.MaxReplyWords)
	return classify.Address(short, sender)
}

// RefusalFor returns the addressed refusal line.
func RefusalFor(sender string) string {
	return classify.Address(classify.LimitWords(Refusal, classify.MaxReplyWords), sender)
}

// Input is one message to answer.
type Input struct {
	Platform string
	Room     string
	Sender   string
	Text     string
	// Facts is the room's positive prompt, used only when UseFacts is set.
	Facts    string
	UseFacts bool
}

// Composer generates replies from memory and a backend.
type Composer struct {
	Memory    memory.Store
	Generator llm.Generator
}

// New builds a Composer.
func New(mem memory.Store, gen llm.Generator) *Composer {
	return &Composer{Memory: mem, Generator: gen}
}

// Compose runs the normal branch. The inbound turn must already be in memory.
// A memory read failure degrades to an empty history.
func (c *Composer) Compose(ctx context.Context, in Input) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "reply.compose", telemetry.RoomAttrs(in.Platform, in.Room)...)
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "reply"),
		slog.String("platform", in.Platform),
		slog.String("room", in.Room),
	)

	var history string
	turns, err := c.Memory.Recent(ctx, in.Platform, in.Room, memory.WindowSize)
	if err != nil {
		logger.Warn("read recent memory", slog.Any("err", err))
	} else {
		history = memory.Render(turns)
	}

	req := llm.Request{
		Prompt:      in.Text,
		System:      BuildSystem(history, in.Facts, in.UseFacts),
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
		Meta:        llm.Meta{Platform: in.Platform, Room: in.Room, User: in.Sender},
	}
	var raw string
	telemetry.TimeFunc(telemetry.BackendDuration, func() {
		raw, err = c.Generator.Generate(ctx, req)
	})
	if err != nil {
		telemetry.BackendFailed()
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("generate: %w", err)
	}
	out := PostProcess(raw, in.Sender)
	if out == "" {
		telemetry.BackendFailed()
		return "", ErrEmptyReply
	}
	telemetry.SetSpanSuccess(span)
	return out, nil
}
