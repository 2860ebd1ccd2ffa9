package netpoll

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	gerrors "github.com/panjf2000/gnet/v2/pkg/errors"
	"golang.org/x/sys/unix"
)

// Listener is a bound TCP listener whose descriptor has been detached from
// the Go runtime poller and switched to non-blocking mode.
type Listener struct {
	ln      net.Listener
	f       *os.File
	fd      int
	network string
	address string
	addr    net.Addr
	once    sync.Once
}

// OpenTCPListener binds addr. With reusePort the socket is opened with
// SO_REUSEPORT so several processes may share the address.
func OpenTCPListener(reusePort bool, addr string) (*Listener, error) {
	var (
		l   net.Listener
		err error
	)
	if reusePort {
		l, err = reuseportListen("tcp", addr)
	} else {
		l, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	ln := &Listener{
		ln:      l,
		network: "tcp",
		address: addr,
		addr:    l.Addr(),
	}
	if err = ln.system(); err != nil {
		return nil, err
	}
	return ln, nil
}

func (ln *Listener) FD() int { return ln.fd }

// Addr is the bound address, which differs from the configured one for port 0.
func (ln *Listener) Addr() net.Addr { return ln.addr }

func (ln *Listener) Network() string { return ln.network }

func (ln *Listener) Close() error {
	var err error
	ln.once.Do(func() {
		if ln.f != nil {
			err = ln.f.Close()
		}
		if ln.ln != nil {
			if cerr := ln.ln.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

// system takes the net listener, grabs a duplicate of its file descriptor,
// and makes it non-blocking.
func (ln *Listener) system() error {
	var err error
	switch netln := ln.ln.(type) {
	case *net.TCPListener:
		ln.f, err = netln.File()
	default:
		err = fmt.Errorf("netpoll: unsupported listener %T", ln.ln)
	}
	if err != nil {
		_ = ln.Close()
		return err
	}
	ln.fd = int(ln.f.Fd())
	if err = unix.SetNonblock(ln.fd, true); err != nil {
		_ = ln.Close()
		return os.NewSyscallError("setnonblock", err)
	}
	return nil
}

// Accept takes one queued connection without blocking. ErrNoPending means
// the backlog is drained.
func (ln *Listener) Accept() (net.Conn, error) {
	nfd, _, err := unix.Accept(ln.fd)
	if err != nil {
		switch err {
		case unix.EAGAIN, unix.EINTR, unix.ECONNABORTED:
			return nil, ErrNoPending
		}
		return nil, fmt.Errorf("%w: fd=%d: %v", gerrors.ErrAcceptSocket, ln.fd, os.NewSyscallError("accept", err))
	}
	unix.CloseOnExec(nfd)
	return newTCPConn(nfd)
}

// newTCPConn hands the accepted descriptor over to the Go runtime so the
// handler gets ordinary blocking reads with deadlines.
func newTCPConn(fd int) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), "tcp:"+strconv.Itoa(fd))
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("%w: fd=%d: %v", gerrors.ErrAcceptSocket, fd, err)
	}
	return c, nil
}

func reuseportListen(proto, addr string) (l net.Listener, err error) {
	return reuseport.Listen(proto, addr)
}
