package reactor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	logger "github.com/moontrade/log"

	"github.com/moontrade/portal/config"
	"github.com/moontrade/portal/pkg/console"
	"github.com/moontrade/portal/pkg/counter"
	"github.com/moontrade/portal/pkg/netpoll"
	"github.com/moontrade/portal/pkg/timex"
)

const (
	Initializing int32 = iota
	Running
)

// MaxAcceptsPerEvent caps how many queued connections one readiness event
// drains before the loop moves on. The poller is level triggered, so the
// remainder is reported again on the next wait.
const MaxAcceptsPerEvent = 64

var ErrRunning = errors.New("reactor already running")

type Stats struct {
	Waits          int64
	WaitErrors     int64
	Events         int64
	StaleEvents    int64
	Accepted       int64
	AcceptErrors   int64
	DispatchErrors int64
	Handled        int64
	HandlerErrors  int64
	HandleTime     time.Duration
}

type stats struct {
	waits          counter.Counter
	waitErrors     counter.Counter
	events         counter.Counter
	staleEvents    counter.Counter
	accepted       counter.Counter
	acceptErrors   counter.Counter
	dispatchErrors counter.Counter
	handled        counter.Counter
	handlerErrors  counter.Counter
	handleTime     counter.TimeCounter
}

type Config struct {
	// Dispatcher runs handlers. Defaults to Inline.
	Dispatcher Dispatcher
	// Handler serves accepted connections. Defaults to Handler{}.Serve.
	Handler HandlerFunc
	// Console receives one line per bound listener. Defaults to stdout.
	Console *console.Printer
	// BatchSize is the number of events taken per wait.
	BatchSize int
}

// Reactor owns one poller, waits on it from a single goroutine, and maps
// every readiness event back to the listener that produced it.
type Reactor struct {
	stats      stats
	poll       *netpoll.Poll
	dispatcher Dispatcher
	handler    HandlerFunc
	console    *console.Printer
	batchSize  int

	mu       sync.Mutex
	state    int32
	pending  []Entry
	registry *Registry
	closed   sync.Once
}

// NewReactor opens the poller. Failure here is fatal for the process.
func NewReactor(c Config) (*Reactor, error) {
	if c.Dispatcher == nil {
		c.Dispatcher = Inline{}
	}
	if c.Handler == nil {
		c.Handler = (&Handler{}).Serve
	}
	if c.Console == nil {
		c.Console = console.Stdout()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = config.EventBatchSize
	}
	poll, err := netpoll.OpenPoll()
	if err != nil {
		return nil, fmt.Errorf("open poller: %w", err)
	}
	return &Reactor{
		poll:       poll,
		dispatcher: c.Dispatcher,
		handler:    c.Handler,
		console:    c.Console,
		batchSize:  c.BatchSize,
	}, nil
}

// New builds a reactor from a loaded configuration and binds every server.
// Nothing stays bound if any step fails.
func New(cfg *config.Config) (*Reactor, error) {
	d, err := NewDispatcher(cfg.Dispatch, cfg.Workers)
	if err != nil {
		return nil, err
	}
	h := &Handler{ReadTimeout: cfg.ReadTimeout.Duration()}
	r, err := NewReactor(Config{Dispatcher: d, Handler: h.Serve})
	if err != nil {
		d.Release()
		return nil, err
	}
	if err = r.Listen(cfg.Servers); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Listen binds and registers one listener per server in order.
func (r *Reactor) Listen(servers []config.ServerConfig) error {
	for i := range servers {
		server := &servers[i]
		ln, err := netpoll.OpenTCPListener(server.ReusePort, server.Address)
		if err != nil {
			r.abort()
			return fmt.Errorf("bind %s: %w", server.Address, err)
		}
		if err = r.Register(ln, server); err != nil {
			_ = ln.Close()
			r.abort()
			return err
		}
		r.console.Listening(ln.Addr().String())
	}
	return nil
}

// Register adds a bound, non-blocking listener with readable interest.
// Only allowed before Run.
func (r *Reactor) Register(ln *netpoll.Listener, server *config.ServerConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Initializing {
		return ErrRunning
	}
	for _, e := range r.pending {
		if e.Listener.FD() == ln.FD() {
			return fmt.Errorf("%w: %d", ErrDuplicateFD, ln.FD())
		}
	}
	if err := r.poll.AddRead(ln.FD()); err != nil {
		return fmt.Errorf("register %s: %w", server.Address, err)
	}
	r.pending = append(r.pending, Entry{Listener: ln, Server: server})
	return nil
}

func (r *Reactor) abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.pending {
		_ = e.Listener.Close()
	}
	r.pending = nil
}

func (r *Reactor) State() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Entries returns the registered listeners in registration order.
func (r *Reactor) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registry != nil {
		return r.registry.Entries()
	}
	return append([]Entry(nil), r.pending...)
}

func (r *Reactor) Stats() Stats {
	s := &r.stats
	return Stats{
		Waits:          s.waits.Load(),
		WaitErrors:     s.waitErrors.Load(),
		Events:         s.events.Load(),
		StaleEvents:    s.staleEvents.Load(),
		Accepted:       s.accepted.Load(),
		AcceptErrors:   s.acceptErrors.Load(),
		DispatchErrors: s.dispatchErrors.Load(),
		Handled:        s.handled.Load(),
		HandlerErrors:  s.handlerErrors.Load(),
		HandleTime:     s.handleTime.Duration(),
	}
}

func (r *Reactor) start() (*Registry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Initializing {
		return nil, ErrRunning
	}
	registry, err := NewRegistry(r.pending...)
	if err != nil {
		return nil, err
	}
	r.registry = registry
	r.pending = nil
	r.state = Running
	return registry, nil
}

// Run freezes the registry and waits for readiness until ctx is done. Every
// per-event failure is logged and the loop continues. With a context that is
// never cancelled Run does not return.
func (r *Reactor) Run(ctx context.Context) error {
	registry, err := r.start()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		if err := r.poll.Wake(); err != nil {
			logger.WarnErr(err, "poll wake")
		}
	})
	defer stop()

	events := make([]netpoll.Event, r.batchSize)
	for {
		n, err := r.poll.Wait(events, -1)
		r.stats.waits.Incr()
		if err != nil && !errors.Is(err, netpoll.ErrWoken) {
			// a broken poller keeps failing here; there is no way to recover it
			r.stats.waitErrors.Incr()
			logger.WarnErr(err, "Error in poll wait")
			continue
		}
		for i := 0; i < n; i++ {
			r.stats.events.Incr()
			r.onEvent(registry, events[i])
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *Reactor) onEvent(registry *Registry, ev netpoll.Event) {
	entry, ok := registry.Lookup(ev.FD)
	if !ok {
		r.stats.staleEvents.Incr()
		return
	}
	for accepted := 0; accepted < MaxAcceptsPerEvent; accepted++ {
		conn, err := entry.Listener.Accept()
		if err != nil {
			if !errors.Is(err, netpoll.ErrNoPending) {
				r.stats.acceptErrors.Incr()
				logger.WarnErr(err, "Failed to accept connection on "+entry.Server.Address)
			} else if accepted == 0 {
				logger.Debug("no pending connection on " + entry.Server.Address)
			}
			return
		}
		r.stats.accepted.Incr()
		r.dispatch(conn, entry.Server)
	}
}

func (r *Reactor) dispatch(conn net.Conn, server *config.ServerConfig) {
	if err := r.dispatcher.Dispatch(func() { r.serve(conn, server) }); err != nil {
		r.stats.dispatchErrors.Incr()
		_ = conn.Close()
		logger.WarnErr(err, "Failed to dispatch client on "+server.Address)
	}
}

func (r *Reactor) serve(conn net.Conn, server *config.ServerConfig) {
	sw := timex.NewStopWatch()
	err := r.handler(conn, server)
	r.stats.handleTime.Since(sw)
	if err != nil {
		r.stats.handlerErrors.Incr()
		logger.WarnErr(err, "Failed to handle client on "+server.Address)
		return
	}
	r.stats.handled.Incr()
	logger.Info("Handled client on " + server.Address)
}

// Close releases the listeners, the dispatcher and the poller. It must not
// be called while Run is still waiting.
func (r *Reactor) Close() error {
	var err error
	r.closed.Do(func() {
		var errs []error
		for _, e := range r.Entries() {
			errs = append(errs, e.Listener.Close())
		}
		r.dispatcher.Release()
		errs = append(errs, r.poll.Close())
		err = errors.Join(errs...)
	})
	return err
}
