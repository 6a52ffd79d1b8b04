package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/neurobot/memory"
	"github.com/onnwee/neurobot/policy"
	"github.com/onnwee/neurobot/reply"
	"github.com/onnwee/neurobot/rooms"
	"github.com/onnwee/neurobot/telemetry"
)

// ConfigSource reads a room's reply settings.
type ConfigSource interface {
	Config(ctx context.Context, t rooms.RoomTarget) (rooms.Config, error)
}

// Composer produces the normal-branch reply.
type Composer interface {
	Compose(ctx context.Context, in reply.Input) (string, error)
}

// Sender delivers a reply to the room a message came from.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Pipeline handles inbound messages: policy, memory, reply, audit.
type Pipeline struct {
	Configs  ConfigSource
	Policy   *policy.Engine
	Composer Composer
	Memory   memory.Store
	Audit    memory.AuditLog
	// BotName is recorded as the username of assistant turns.
	BotName string
	Now     func() time.Time
}

// Handler adapts the pipeline to a Session handler.
func (p *Pipeline) Handler() Handler {
	return func(ctx context.Context, s *Session, ev Event) {
		p.Handle(ctx, s.Target, s, ev)
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Handle processes one message from room t, replying through out. Every
// failure is logged and ends processing of this message only.
func (p *Pipeline) Handle(ctx context.Context, t rooms.RoomTarget, out Sender, ev Event) {
	ctx, _ = telemetry.NewCorrelation(ctx)
	ctx, span := telemetry.StartSpan(ctx, "chat.message", telemetry.RoomAttrs(t.Platform, t.Handle)...)
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "chat_pipeline"),
		slog.String("platform", t.Platform),
		slog.String("room", t.Handle),
	)
	telemetry.Inbound(t.Platform)

	id := ResolveIdentity(ev, p.now())
	text := strings.TrimSpace(ev.Text)

	cfg, err := p.Configs.Config(ctx, t)
	if err != nil {
		logger.Warn("room config unavailable; skipping message", slog.Any("err", err))
		telemetry.Skipped("config_error")
		return
	}
	d := p.Policy.Decide(policy.Message{Text: text, Username: id.Name, FromSelf: ev.FromSelf}, cfg)
	if d.HardSkip() {
		telemetry.Skipped(string(d.Skip))
		logger.Debug("message skipped", slog.String("reason", string(d.Skip)))
		return
	}

	if !d.Respond {
		telemetry.Skipped(string(d.Skip))
		return
	}
	p.appendTurn(ctx, logger, memory.Turn{
		Platform: t.Platform,
		Room:     t.Handle,
		Role:     memory.RoleUser,
		UserID:   id.UserID,
		Username: id.Name,
		Message:  text,
	})

	var (
		answer string
		branch = "normal"
	)
	if d.Moderated {
		branch = "moderated"
		answer = reply.RefusalFor(id.Name)
	} else {
		answer, err = p.Composer.Compose(ctx, reply.Input{
			Platform: t.Platform,
			Room:     t.Handle,
			Sender:   id.Name,
			Text:     text,
			Facts:    cfg.Prompt,
			UseFacts: d.UseFacts,
		})
		if err != nil {
			logger.Warn("no reply generated", slog.Any("err", err))
			telemetry.Skipped("backend")
			return
		}
	}

	// A refusal is recorded even when it could not be delivered.
	if err := out.Send(ctx, answer); err != nil {
		telemetry.SendFailed(t.Platform)
		telemetry.RecordError(span, err)
		logger.Warn("send reply failed", slog.String("branch", branch), slog.Any("err", err))
		if !d.Moderated {
			return
		}
	} else {
		telemetry.Replied(branch)
	}

	p.appendTurn(ctx, logger, memory.Turn{
		Platform: t.Platform,
		Room:     t.Handle,
		Role:     memory.RoleAssistant,
		Username: p.BotName,
		Message:  answer,
	})
	if err := p.Audit.Log(ctx, memory.LogEntry{
		Platform:  t.Platform,
		MsgID:     id.MsgID,
		Room:      t.Handle,
		UserID:    id.UserID,
		Username:  id.Name,
		Message:   text,
		Response:  answer,
		Moderated: d.Moderated,
	}); err != nil {
		telemetry.PersistFailed("log")
		logger.Warn("audit log write failed", slog.Any("err", err))
	}
	telemetry.SetSpanSuccess(span)
	logger.Info("replied", slog.String("branch", branch), slog.Bool("facts", d.UseFacts), slog.String("msg_id", id.MsgID))
}

func (p *Pipeline) appendTurn(ctx context.Context, logger *slog.Logger, t memory.Turn) {
	if err := p.Memory.Append(ctx, t); err != nil {
		telemetry.PersistFailed("append")
		logger.Warn("memory append failed", slog.String("role", string(t.Role)), slog.Any("err", err))
	}
}
