package reactor

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	logger "github.com/moontrade/log"

	"github.com/moontrade/portal/config"
	"github.com/moontrade/portal/pkg/util"
)

// Response is written verbatim to every connection that sent at least one byte.
var Response = []byte("HTTP/1.1 200 OK\r\n\r\n")

// HandlerFunc serves one accepted connection and owns it until it returns.
type HandlerFunc func(conn net.Conn, server *config.ServerConfig) error

// Handler does a single read of up to config.ReadBufferSize bytes and answers
// with Response. The connection is always closed on return.
type Handler struct {
	// ReadTimeout bounds the read. Zero waits as long as the peer does.
	ReadTimeout time.Duration
}

func (h *Handler) Serve(conn net.Conn, server *config.ServerConfig) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = util.PanicToError(e)
		}
		if cerr := conn.Close(); err == nil && cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	if h.ReadTimeout > 0 {
		if err = conn.SetReadDeadline(time.Now().Add(h.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
	}

	var buf [config.ReadBufferSize]byte
	n, err := conn.Read(buf[:])
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			// peer closed before sending anything
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}

	logger.Info("Request: \n" + printable(buf[:n]))

	if _, err = conn.Write(Response); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// printable renders payload bytes for the log, replacing invalid UTF-8.
func printable(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
