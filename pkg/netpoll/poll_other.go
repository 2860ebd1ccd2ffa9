//go:build unix && !linux && !darwin && !freebsd

package netpoll

import "time"

// Poll is unavailable on this platform; OpenPoll always fails.
type Poll struct{}

func OpenPoll() (*Poll, error) { return nil, ErrUnsupported }

func (p *Poll) Close() error { return ErrUnsupported }

func (p *Poll) Wake() error { return ErrUnsupported }

func (p *Poll) AddRead(int) error { return ErrUnsupported }

func (p *Poll) Wait([]Event, time.Duration) (int, error) { return 0, ErrUnsupported }
