// Copyright 2017 Joshua J Baker. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netpoll

import (
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const readEvents = unix.EPOLLPRI | unix.EPOLLIN

// Poll is a single epoll instance plus an eventfd used to interrupt Wait.
type Poll struct {
	fd   int // epoll fd
	wfd  int // wake fd
	wait int32
	raw  []unix.EpollEvent
}

// OpenPoll creates the epoll instance.
func OpenPoll() (*Poll, error) {
	p, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(p)
		return nil, os.NewSyscallError("eventfd", err)
	}
	l := &Poll{fd: p, wfd: wfd}
	if err = l.AddRead(wfd); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// Close ...
func (p *Poll) Close() error {
	if err := unix.Close(p.wfd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return os.NewSyscallError("close", unix.Close(p.fd))
}

// Wake interrupts a blocked Wait, which then returns ErrWoken.
func (p *Poll) Wake() error {
	if atomic.CompareAndSwapInt32(&p.wait, 0, 1) {
		var x uint64 = 1
		_, err := unix.Write(p.wfd, (*(*[8]byte)(unsafe.Pointer(&x)))[:])
		return os.NewSyscallError("write", err)
	}
	return nil
}

// AddRead registers level-triggered readable interest for fd.
func (p *Poll) AddRead(fd int) error {
	ev := unix.EpollEvent{Events: readEvents, Fd: int32(fd)}
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev))
}

// Wait blocks until at least one registered descriptor is ready and fills
// events with at most len(events) notifications. A negative timeout waits
// forever. EINTR is reported as zero events.
func (p *Poll) Wait(events []Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(p.fd, raw, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	var (
		count int
		woken bool
	)
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.wfd {
			var data [8]byte
			_, _ = unix.Read(p.wfd, data[:])
			atomic.StoreInt32(&p.wait, 0)
			woken = true
			continue
		}
		var filter Filter
		if raw[i].Events&readEvents != 0 {
			filter |= FilterRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			filter |= FilterWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			filter |= FilterError
		}
		events[count] = Event{FD: fd, Filter: filter}
		count++
	}
	if woken {
		return count, ErrWoken
	}
	return count, nil
}
