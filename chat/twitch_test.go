package chat

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/neurobot/rooms"
)

// slowIRCServer accepts one client, reads its login, then sends the welcome
// only after release is closed. Every line received after the welcome is
// reported on lines; lines is closed when the client hangs up.
func slowIRCServer(t *testing.T, release <-chan struct{}) (addr string, lines <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 32)
	go func() {
		defer close(out)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "NICK ") {
				break
			}
		}
		<-release
		if _, err := conn.Write([]byte(":tmi.twitch.tv 001 bot :Welcome, GLHF!\r\n")); err != nil {
			return
		}
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return ln.Addr().String(), out
}

func TestTwitchDialTimeoutReleasesLateConnection(t *testing.T) {
	release := make(chan struct{})
	addr, lines := slowIRCServer(t, release)
	d := &TwitchDialer{
		Username:   "bot",
		Token:      func(context.Context) (string, error) { return "tok", nil },
		IRCAddress: addr,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	conn, err := d.Dial(ctx, rooms.NewTarget(rooms.Twitch, "somechannel"))
	if !errors.Is(err, context.DeadlineExceeded) || conn != nil {
		t.Fatalf("Dial() = %v, %v; want deadline exceeded", conn, err)
	}
	close(release)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.HasPrefix(line, "JOIN") {
				t.Fatalf("abandoned client joined a channel: %q", line)
			}
		case <-deadline:
			t.Fatal("abandoned client kept its connection open")
		}
	}
}
