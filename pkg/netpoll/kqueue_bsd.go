// Copyright 2017 Joshua J Baker. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build darwin || freebsd

package netpoll

import (
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Poll is a single kqueue plus an EVFILT_USER note used to interrupt Wait.
type Poll struct {
	fd   int
	wait int32
	raw  []unix.Kevent_t
}

func OpenPoll() (*Poll, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(fd)
	var ev [1]unix.Kevent_t
	unix.SetKevent(&ev[0], 0, unix.EVFILT_USER, unix.EV_ADD|unix.EV_CLEAR)
	if _, err = unix.Kevent(fd, ev[:], nil, nil); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("kevent add", err)
	}
	return &Poll{fd: fd}, nil
}

// Close ...
func (p *Poll) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}

// Wake ...
func (p *Poll) Wake() error {
	if atomic.CompareAndSwapInt32(&p.wait, 0, 1) {
		var ev [1]unix.Kevent_t
		unix.SetKevent(&ev[0], 0, unix.EVFILT_USER, 0)
		ev[0].Fflags = unix.NOTE_TRIGGER
		_, err := unix.Kevent(p.fd, ev[:], nil, nil)
		return os.NewSyscallError("kevent trigger", err)
	}
	return nil
}

// AddRead ...
func (p *Poll) AddRead(fd int) error {
	var ev [1]unix.Kevent_t
	unix.SetKevent(&ev[0], fd, unix.EVFILT_READ, unix.EV_ADD)
	_, err := unix.Kevent(p.fd, ev[:], nil, nil)
	return os.NewSyscallError("kevent add", err)
}

//goland:noinspection ALL
func (p *Poll) Wait(events []Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.Kevent_t, len(events))
	}
	raw := p.raw[:len(events)]
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	n, err := unix.Kevent(p.fd, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("kevent wait", err)
	}
	var (
		count int
		woken bool
	)
	for i := 0; i < n; i++ {
		ev := &raw[i]
		if ev.Filter == unix.EVFILT_USER {
			atomic.StoreInt32(&p.wait, 0)
			woken = true
			continue
		}
		var filter Filter
		switch ev.Filter {
		case unix.EVFILT_READ:
			filter |= FilterRead
		case unix.EVFILT_WRITE:
			filter |= FilterWrite
		}
		if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			filter |= FilterError
		}
		events[count] = Event{FD: int(ev.Ident), Filter: filter}
		count++
	}
	if woken {
		return count, ErrWoken
	}
	return count, nil
}
