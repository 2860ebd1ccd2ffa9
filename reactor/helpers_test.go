//go:build linux || darwin || freebsd

package reactor

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/moontrade/portal/config"
	"github.com/moontrade/portal/pkg/console"
)

func quietConsole() *console.Printer {
	return console.New(io.Discard, false)
}

func loopback(n int) []config.ServerConfig {
	servers := make([]config.ServerConfig, n)
	for i := range servers {
		servers[i] = config.ServerConfig{Address: "127.0.0.1:0", Endpoints: []string{}}
	}
	return servers
}

// startReactor binds servers and runs the loop until the test ends.
func startReactor(t *testing.T, c Config, servers []config.ServerConfig) *Reactor {
	t.Helper()
	if c.Console == nil {
		c.Console = quietConsole()
	}
	r, err := NewReactor(c)
	if err != nil {
		t.Fatal(err)
	}
	if err = r.Listen(servers); err != nil {
		_ = r.Close()
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("reactor did not stop")
		}
		_ = r.Close()
	})
	return r
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	_ = c.SetDeadline(time.Now().Add(10 * time.Second))
	return c
}

// roundTrip writes payload and reads until the server closes.
func roundTrip(t *testing.T, c net.Conn, payload string) string {
	t.Helper()
	if payload != "" {
		if _, err := c.Write([]byte(payload)); err != nil {
			t.Fatal(err)
		}
	}
	b, err := io.ReadAll(c)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
