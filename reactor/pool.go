package reactor

import (
	"context"
	"fmt"

	"github.com/bytedance/gopkg/util/gopool"
	logger "github.com/moontrade/log"
	"github.com/panjf2000/ants/v2"

	"github.com/moontrade/portal/config"
	"github.com/moontrade/portal/pkg/util"
)

// Dispatcher runs connection handlers. Dispatch must not block the loop for
// longer than it takes to hand fn off.
type Dispatcher interface {
	Dispatch(fn func()) error
	Release()
}

// NewDispatcher builds the dispatcher named by mode.
func NewDispatcher(mode string, workers int) (Dispatcher, error) {
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	switch mode {
	case config.DispatchInline:
		return Inline{}, nil
	case config.DispatchAnts, "":
		return NewAntsDispatcher(workers)
	case config.DispatchGopool:
		return NewGopoolDispatcher(workers), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrInvalidDispatch, mode)
}

// Inline runs each handler on the loop goroutine. A slow client stalls every
// listener until it finishes.
type Inline struct{}

func (Inline) Dispatch(fn func()) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = util.PanicToError(e)
		}
	}()
	fn()
	return nil
}

func (Inline) Release() {}

// AntsDispatcher hands each connection to a bounded ants goroutine pool.
// Submit never blocks; a full pool returns ants.ErrPoolOverload.
type AntsDispatcher struct {
	pool *ants.Pool
}

func NewAntsDispatcher(size int) (*AntsDispatcher, error) {
	p, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(e interface{}) {
			logger.Error(util.PanicToError(e), "connection worker panic")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &AntsDispatcher{pool: p}, nil
}

func (d *AntsDispatcher) Dispatch(fn func()) error {
	return d.pool.Submit(fn)
}

func (d *AntsDispatcher) Running() int { return d.pool.Running() }

func (d *AntsDispatcher) Release() { d.pool.Release() }

// GopoolDispatcher hands each connection to a bytedance gopool.
type GopoolDispatcher struct {
	pool gopool.Pool
}

func NewGopoolDispatcher(size int) *GopoolDispatcher {
	p := gopool.NewPool("portal", int32(size), gopool.NewConfig())
	p.SetPanicHandler(func(_ context.Context, e interface{}) {
		logger.Error(util.PanicToError(e), "connection worker panic")
	})
	return &GopoolDispatcher{pool: p}
}

func (d *GopoolDispatcher) Dispatch(fn func()) error {
	d.pool.Go(fn)
	return nil
}

func (d *GopoolDispatcher) Release() {}
