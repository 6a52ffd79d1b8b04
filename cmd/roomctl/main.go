// Command roomctl edits the bot's room table: which rooms it joins and how it
// replies in each. A running bot picks changes up on its next reconcile tick
// (or immediately via POST /admin/reconcile).
//
// Usage:
//
//	roomctl list
//	roomctl enable twitch:somechannel
//	roomctl disable youtube:@somehandle
//	roomctl mode twitch:somechannel mention_random
//	roomctl flags twitch:somechannel 0 1 1   (all random mention)
//	roomctl prompt twitch:somechannel "You are a cheerful co-host."
//	roomctl negative-prompt twitch:somechannel "Never talk about politics."
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/neurobot/db"
	"github.com/onnwee/neurobot/rooms"
)

// roomAdmin is the slice of rooms.Store the commands use.
type roomAdmin interface {
	List(ctx context.Context) ([]rooms.Config, error)
	Enable(ctx context.Context, t rooms.RoomTarget) error
	Disable(ctx context.Context, t rooms.RoomTarget) error
	SetReplyMode(ctx context.Context, t rooms.RoomTarget, m rooms.ReplyMode) error
	SetPrompt(ctx context.Context, t rooms.RoomTarget, prompt string) error
	SetNegativePrompt(ctx context.Context, t rooms.RoomTarget, prompt string) error
}

var errUsage = errors.New("usage: roomctl list | enable ROOM | disable ROOM | mode ROOM MODE | flags ROOM ALL RANDOM MENTION | prompt ROOM TEXT | negative-prompt ROOM TEXT")

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	database, err := db.Connect(dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Setup(ctx, database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	if err := run(ctx, rooms.NewStore(database), os.Args[1:], os.Stdout); err != nil {
		slog.Error("roomctl failed", slog.Any("err", err))
		os.Exit(2)
	}
}

func run(ctx context.Context, store roomAdmin, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	if cmd == "list" {
		return list(ctx, store, out)
	}
	if len(rest) == 0 {
		return errUsage
	}
	target, err := rooms.ParseTarget(rest[0])
	if err != nil {
		return err
	}
	value := strings.Join(rest[1:], " ")

	switch cmd {
	case "enable":
		err = store.Enable(ctx, target)
	case "disable":
		err = store.Disable(ctx, target)
	case "mode":
		var m rooms.ReplyMode
		if m, err = rooms.ParseReplyMode(value); err != nil {
			return err
		}
		err = store.SetReplyMode(ctx, target, m)
	case "flags":
		var m rooms.ReplyMode
		if m, err = modeFromArgs(rest[1:]); err != nil {
			return err
		}
		err = store.SetReplyMode(ctx, target, m)
	case "prompt":
		err = store.SetPrompt(ctx, target, value)
	case "negative-prompt":
		err = store.SetNegativePrompt(ctx, target, value)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s %s: ok\n", cmd, target)
	return err
}

func list(ctx context.Context, store roomAdmin, out io.Writer) error {
	cfgs, err := store.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tENABLED\tMODE\tALL/RANDOM/MENTION\tPROMPT")
	for _, c := range cfgs {
		all, random, mention := c.Mode.Flags()
		fmt.Fprintf(tw, "%s\t%t\t%s\t%d/%d/%d\t%s\n", c.Target, c.Enabled, c.Mode, b2i(all), b2i(random), b2i(mention), truncate(c.Prompt, 40))
	}
	return tw.Flush()
}

// modeFromArgs reads the three 0/1 toggles the old admin panel stored.
func modeFromArgs(args []string) (rooms.ReplyMode, error) {
	if len(args) != 3 {
		return rooms.ModeOff, errUsage
	}
	var flags [3]bool
	for i, a := range args {
		v, err := strconv.ParseBool(a)
		if err != nil {
			return rooms.ModeOff, fmt.Errorf("flag %q: %w", a, err)
		}
		flags[i] = v
	}
	return rooms.ModeFromFlags(flags[0], flags[1], flags[2]), nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
