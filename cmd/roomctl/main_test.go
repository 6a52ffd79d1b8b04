package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/onnwee/neurobot/rooms"
)

type fakeAdmin struct {
	calls []string
	cfgs  []rooms.Config
}

func (f *fakeAdmin) List(ctx context.Context) ([]rooms.Config, error) { return f.cfgs, nil }
func (f *fakeAdmin) Enable(ctx context.Context, t rooms.RoomTarget) error {
	f.calls = append(f.calls, "enable "+t.String())
	return nil
}
func (f *fakeAdmin) Disable(ctx context.Context, t rooms.RoomTarget) error {
	f.calls = append(f.calls, "disable "+t.String())
	return nil
}
func (f *fakeAdmin) SetReplyMode(ctx context.Context, t rooms.RoomTarget, m rooms.ReplyMode) error {
	f.calls = append(f.calls, "mode "+t.String()+" "+m.String())
	return nil
}
func (f *fakeAdmin) SetPrompt(ctx context.Context, t rooms.RoomTarget, p string) error {
	f.calls = append(f.calls, "prompt "+t.String()+" "+p)
	return nil
}
func (f *fakeAdmin) SetNegativePrompt(ctx context.Context, t rooms.RoomTarget, p string) error {
	f.calls = append(f.calls, "negative "+t.String()+" "+p)
	return nil
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCall string
		wantErr  bool
	}{
		{"enable", []string{"enable", "twitch:Chan"}, "enable twitch:chan", false},
		{"disable", []string{"disable", "twitch:chan"}, "disable twitch:chan", false},
		{"mode", []string{"mode", "twitch:chan", "mention"}, "mode twitch:chan mention", false},
		{"flags all dominates", []string{"flags", "twitch:chan", "1", "1", "0"}, "mode twitch:chan all", false},
		{"flags mention and random", []string{"flags", "twitch:chan", "0", "1", "1"}, "mode twitch:chan mention_random", false},
		{"flags none", []string{"flags", "twitch:chan", "0", "0", "0"}, "mode twitch:chan off", false},
		{"flags wrong count", []string{"flags", "twitch:chan", "1"}, "", true},
		{"flags not bool", []string{"flags", "twitch:chan", "1", "x", "0"}, "", true},
		{"prompt joins words", []string{"prompt", "twitch:chan", "be", "nice"}, "prompt twitch:chan be nice", false},
		{"negative prompt", []string{"negative-prompt", "twitch:chan", "no spoilers"}, "negative twitch:chan no spoilers", false},
		{"no args", nil, "", true},
		{"missing room", []string{"enable"}, "", true},
		{"bad room", []string{"enable", "chan"}, "", true},
		{"bad mode", []string{"mode", "twitch:chan", "loud"}, "", true},
		{"unknown command", []string{"frobnicate", "twitch:chan"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAdmin{}
			var out bytes.Buffer
			err := run(context.Background(), f, tt.args, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("run() err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if len(f.calls) != 0 {
					t.Errorf("no store call expected on error, got %v", f.calls)
				}
				return
			}
			if len(f.calls) != 1 || f.calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", f.calls, tt.wantCall)
			}
			if !strings.Contains(out.String(), "ok") {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}

func TestRunUsageError(t *testing.T) {
	err := run(context.Background(), &fakeAdmin{}, []string{"frobnicate", "twitch:chan"}, &bytes.Buffer{})
	if !errors.Is(err, errUsage) {
		t.Errorf("err = %v, want errUsage", err)
	}
}

func TestList(t *testing.T) {
	f := &fakeAdmin{cfgs: []rooms.Config{
		{Target: rooms.RoomTarget{Platform: "twitch", Handle: "chan"}, Enabled: true, Mode: rooms.ModeMention, Prompt: strings.Repeat("x", 60)},
		{Target: rooms.RoomTarget{Platform: "youtube", Handle: "@h"}, Enabled: false, Mode: rooms.ModeOff},
	}}
	var out bytes.Buffer
	if err := run(context.Background(), f, []string{"list"}, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	s := out.String()
	for _, want := range []string{"ROOM", "twitch:chan", "mention", "youtube:@h", "off", "0/0/1", "…"} {
		if !strings.Contains(s, want) {
			t.Errorf("list output missing %q:\n%s", want, s)
		}
	}
}
