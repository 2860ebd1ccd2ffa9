package reactor

import (
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/moontrade/portal/config"
)

// pair returns both ends of a loopback TCP connection.
func pair(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server = <-accepted
	if server == nil {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	_ = client.SetDeadline(time.Now().Add(10 * time.Second))
	return server, client
}

var testServer = &config.ServerConfig{Address: "127.0.0.1:0"}

func TestHandlerResponds(t *testing.T) {
	for name, payload := range map[string][]byte{
		"ping":         []byte("ping"),
		"http":         []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"),
		"invalid utf8": {0xff, 0xfe, 'a', 0xc3},
		"full buffer":  make([]byte, config.ReadBufferSize),
	} {
		t.Run(name, func(t *testing.T) {
			server, client := pair(t)
			done := make(chan error, 1)
			go func() { done <- (&Handler{}).Serve(server, testServer) }()

			if _, err := client.Write(payload); err != nil {
				t.Fatal(err)
			}
			got, err := io.ReadAll(client)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != string(Response) {
				t.Fatalf("got %q, want %q", got, Response)
			}
			if err := <-done; err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestHandlerEmptyRead(t *testing.T) {
	server, client := pair(t)
	_ = client.Close()
	if err := (&Handler{}).Serve(server, testServer); err != nil {
		t.Fatalf("empty read should not be an error: %v", err)
	}
}

func TestHandlerNoResponseOnEmptyRead(t *testing.T) {
	server, client := pair(t)
	done := make(chan error, 1)
	go func() { done <- (&Handler{}).Serve(server, testServer) }()
	if err := client.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(client)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no response, got %q", got)
	}
	if err = <-done; err != nil {
		t.Fatal(err)
	}
}

func TestHandlerReadTimeout(t *testing.T) {
	server, _ := pair(t)
	err := (&Handler{ReadTimeout: 20 * time.Millisecond}).Serve(server, testServer)
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestHandlerClosesConn(t *testing.T) {
	server, client := pair(t)
	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	if err := (&Handler{}).Serve(server, testServer); err != nil {
		t.Fatal(err)
	}
	if _, err := server.Write([]byte("x")); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("expected closed conn, got %v", err)
	}
}

func TestPrintable(t *testing.T) {
	if got := printable([]byte{'o', 'k', 0xff}); got != "ok�" {
		t.Fatalf("got %q", got)
	}
}
