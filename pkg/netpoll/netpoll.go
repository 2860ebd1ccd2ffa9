// Package netpoll wraps the OS readiness notification facility (epoll on
// linux, kqueue on darwin and freebsd) and the listening sockets driven by it.
package netpoll

import (
	"errors"

	gerrors "github.com/panjf2000/gnet/v2/pkg/errors"
)

var (
	// ErrNoPending is returned by Listener.Accept when no connection is queued.
	ErrNoPending = errors.New("netpoll: no pending connection")
	// ErrUnsupported is returned by OpenPoll on platforms without a poller.
	ErrUnsupported = errors.New("netpoll: platform not supported")
	// ErrWoken is returned by Poll.Wait after Wake was called.
	ErrWoken = gerrors.ErrEngineShutdown
)

// Filter is the interest mask reported with an Event.
type Filter uint8

const (
	FilterRead Filter = 1 << iota
	FilterWrite
	FilterError
)

func (f Filter) Readable() bool { return f&FilterRead != 0 }

// Event is a single readiness notification. It is only valid until the next Wait.
type Event struct {
	FD     int
	Filter Filter
}
