// Package app implements the App/scheduler: it owns the id table, the
// in/out message queues, and the timer list, runs the single-threaded
// cooperative loop, and fans errors up the creator chain.
package app

import (
	"fmt"
	"os"
	"sort"

	"github.com/msharov/cwiclo-sub000/pkg/applog"
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/mrg"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
	"github.com/msharov/cwiclo-sub000/pkg/sigbridge"
)

// Factory constructs the Msger that should receive a method invoked
// on a fresh (New) destination, mirroring
// exchange.ManagerConfig-style construction but keyed by interface
// rather than protocol id.
type Factory func(a *App, link msg.Link) (mrg.Msger, error)

// Config configures an App. LoggerFactory defaults to
// applog.Default() when nil.
type Config struct {
	LoggerFactory applog.Factory
	// Signals disables the signal bridge when false; tests that don't
	// want to touch process-wide signal state set this.
	Signals bool
}

// App is the process-wide scheduler singleton. It is not
// safe for concurrent use: all of its state is touched exclusively
// from the loop goroutine.
type App struct {
	cfg Config
	log applog.Logger

	ids       *mrid.Table
	msgers    map[mrid.ID]mrg.Msger
	factories map[*iface.Interface]Factory

	incoming []*msg.Message
	outgoing []*msg.Message

	timers map[mrid.ID]*timerRecord

	errs     []error
	exitCode int
	quitting bool

	sigs       *sigbridge.Bridge
	signalIface *iface.Interface
}

// New creates an App. Call Run to start its loop.
func New(cfg Config) (*App, error) {
	a := &App{
		cfg:       cfg,
		log:       applog.New(cfg.LoggerFactory, "app"),
		ids:       mrid.NewTable(),
		msgers:    make(map[mrid.ID]mrg.Msger),
		factories: make(map[*iface.Interface]Factory),
		timers:    make(map[mrid.ID]*timerRecord),
	}
	a.signalIface = SignalInterface
	if cfg.Signals {
		sigs, err := sigbridge.New()
		if err != nil {
			return nil, fmt.Errorf("app: starting signal bridge: %w", err)
		}
		a.sigs = sigs
	}
	return a, nil
}

// RegisterFactory associates an interface with the factory used to
// construct its Msger when first addressed via mrid.New.
func (a *App) RegisterFactory(in *iface.Interface, f Factory) {
	a.factories[in] = f
}

// RegisterSingleton reserves an id for an already-constructed,
// statically owned Msger. The Msger
// is marked Static so the runtime never reaps it.
func (a *App) RegisterSingleton(m mrg.Msger) (mrid.ID, error) {
	id, err := a.ids.Allocate(mrid.App)
	if err != nil {
		return id, err
	}
	m.SetMRID(id)
	m.SetFlags(m.Flags() | mrg.Static)
	a.msgers[id] = m
	return id, nil
}

// Errors returns the accumulated, unforwarded error buffer.
func (a *App) Errors() []error { return a.errs }

// ExitCode returns the code Run will return (or has returned).
func (a *App) ExitCode() int { return a.exitCode }

// Quit requests the loop stop after the current iteration, exiting
// with code (0 if omitted).
func (a *App) Quit(code ...int) {
	a.quitting = true
	if len(code) > 0 {
		a.exitCode = code[0]
	}
}

// AddError appends an error to the App's accumulation buffer; callers
// are typically Dispatch/marshalling code that cannot itself call
// ForwardError (no Msger context at hand).
func (a *App) AddError(err error) {
	if err != nil {
		a.errs = append(a.errs, err)
	}
}

// CreateMessage allocates a destination Msger if link.Dest is
// mrid.New (via the factory registered for method's interface),
// appends a Message of the given body to the outgoing queue, and
// returns it for the caller (the marshaller) to fill in. It mirrors
// exchange.Manager.NewExchange's allocate-then-register shape.
func (a *App) CreateMessage(link msg.Link, method *iface.Method, bodySize int) (*msg.Message, error) {
	resolved := link
	if link.Dest == mrid.New {
		id, err := a.createFor(link.Src, method)
		if err != nil {
			return nil, err
		}
		resolved.Dest = id
	}
	m := msg.New(resolved, method, make([]byte, bodySize))
	a.outgoing = append(a.outgoing, m)
	return m, nil
}

// createFor allocates a fresh id and constructs its Msger via the
// factory registered for method's interface.
func (a *App) createFor(creator mrid.ID, method *iface.Method) (mrid.ID, error) {
	return a.CreateMsger(creator, method.Interface)
}

// CreateMsger allocates a fresh id created by creator and constructs
// its Msger via the factory registered for in, without enqueuing any
// message. This is exposed for callers like pkg/xcom's COMRelay that
// need to materialize a local Msger for a newly imported interface
// before delivering the frame that addressed it.
func (a *App) CreateMsger(creator mrid.ID, in *iface.Interface) (mrid.ID, error) {
	factory, ok := a.factories[in]
	if !ok {
		a.AddError(fmt.Errorf("%w: %s", ErrNoFactory, in.Name))
		return mrid.New, ErrNoFactory
	}
	id, err := a.ids.Allocate(creator)
	if err != nil {
		a.AddError(err)
		return id, err
	}
	m, err := factory(a, msg.Link{Src: id, Dest: creator})
	if err != nil || m == nil {
		a.ids.Free(id)
		a.AddError(fmt.Errorf("%w: %s: %v", ErrFactoryFailed, in.Name, err))
		return mrid.New, ErrFactoryFailed
	}
	m.SetMRID(id)
	a.msgers[id] = m
	return id, nil
}

// Requeue re-enqueues a full Message onto the outgoing queue, used by
// COMRelay and Extern when a message must be re-driven through the
// loop (e.g. after resolving a pending Extern).
func (a *App) Requeue(m *msg.Message) {
	a.outgoing = append(a.outgoing, m)
}

// Send is the low-level enqueue path generated proxies call; it is
// CreateMessage without a body-size preallocation, used when the
// caller already has a fully-marshalled body.
func (a *App) Send(link msg.Link, method *iface.Method, body []byte) error {
	resolved := link
	if link.Dest == mrid.New {
		id, err := a.createFor(link.Src, method)
		if err != nil {
			return err
		}
		resolved.Dest = id
	}
	a.outgoing = append(a.outgoing, msg.New(resolved, method, body))
	return nil
}

// IsValid reports whether id currently names a live Msger.
func (a *App) IsValid(id mrid.ID) bool { return a.ids.IsValid(id) }

// PendingOutgoing returns the messages queued for delivery on the next
// loop iteration, for tests and diagnostics to inspect.
func (a *App) PendingOutgoing() []*msg.Message { return a.outgoing }

// ForwardError invokes observer's error handler with the accumulated
// error text; if
// unhandled, it walks to observer's creator and retries; a handler
// that returns true ("handled") clears the buffer.
func (a *App) ForwardError(observer, origin mrid.ID) {
	if len(a.errs) == 0 {
		return
	}
	text := joinErrors(a.errs)
	cur := observer
	for {
		m, ok := a.msgers[cur]
		if ok && m.OnError(origin, text) {
			a.errs = a.errs[:0]
			return
		}
		creator, live := a.ids.CreatorOf(cur)
		if !live || creator == cur {
			break
		}
		cur = creator
	}
	// Reached root unhandled: emit to stderr and fail the process.
	fmt.Fprintln(os.Stderr, text)
	a.errs = a.errs[:0]
	a.Quit(1)
}

func joinErrors(errs []error) string {
	s := ""
	for i, e := range errs {
		if i > 0 {
			s += "; "
		}
		s += e.Error()
	}
	return s
}

// Run executes the cooperative loop until Quit is called and returns
// the exit code.
func (a *App) Run() int {
	if len(a.errs) > 0 {
		a.ForwardError(mrid.App, mrid.App)
		if a.quitting {
			return a.exitCode
		}
	}

	for !a.quitting {
		a.swapQueues()
		a.dispatchIncoming()
		if a.quitting {
			break
		}
		a.reapUnused()
		if a.quitting {
			break
		}
		a.waitAndFire()
	}

	if a.sigs != nil {
		a.sigs.Close()
	}
	return a.exitCode
}

// swapQueues exchanges incoming and outgoing: messages enqueued during
// dispatch of queue N become the new outgoing and are delivered during
// dispatch of queue N+1.
func (a *App) swapQueues() {
	a.incoming, a.outgoing = a.outgoing, a.incoming[:0]
}

// dispatchIncoming drains the incoming queue into dispatchers, in
// send order, broadcasting in ascending id order.
func (a *App) dispatchIncoming() {
	for _, m := range a.incoming {
		if m.Link.Dest == mrid.Broadcast {
			a.dispatchBroadcast(m)
		} else {
			a.dispatchOne(m.Link.Dest, m)
		}
		if len(a.errs) > 0 {
			a.ForwardError(m.Link.Dest, m.Link.Dest)
			if a.quitting {
				return
			}
		}
	}
}

func (a *App) dispatchBroadcast(m *msg.Message) {
	ids := a.ids.Live()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, ok := a.msgers[id]; !ok {
			// mrid.App's own slot 0 is always "live" in the id table but
			// never carries a registered Msger; broadcast only reaches ids
			// that actually have one.
			continue
		}
		a.dispatchOne(id, m)
	}
}

func (a *App) dispatchOne(dest mrid.ID, m *msg.Message) {
	target, ok := a.msgers[dest]
	if !ok {
		a.AddError(fmt.Errorf("%w: %d", ErrDeadDestination, dest))
		return
	}
	if accepted := target.Dispatch(m); !accepted {
		a.log.Debugf("message to %d not accepted by any interface", dest)
	}
}

// reapUnused destroys every Msger flagged Unused with nothing pending
// for it in the next outgoing queue.
func (a *App) reapUnused() {
	pending := make(map[mrid.ID]bool, len(a.outgoing))
	for _, m := range a.outgoing {
		pending[m.Link.Dest] = true
	}
	for id, m := range a.msgers {
		if m.Flags().Has(mrg.Unused) && !m.Flags().Has(mrg.Static) && !pending[id] {
			a.destroy(id, m)
		}
	}
}

func (a *App) destroy(id mrid.ID, m mrg.Msger) {
	m.OnDestroy(id)
	a.ClearTimer(id)
	delete(a.msgers, id)
	a.ids.Free(id)
}

// waitAndFire computes the next timer wakeup and pollable fd set,
// sleeps until either is ready (or a signal arrives), converts
// pending signals to broadcast Signal messages, and fires any expired
// or fd-ready timers.
func (a *App) waitAndFire() {
	if len(a.outgoing) == 0 && len(a.timers) == 0 {
		a.log.Info("app: nothing left to do, quitting")
		a.Quit(0)
		return
	}

	fired := a.poll()

	if a.sigs != nil {
		for _, s := range a.sigs.Drain() {
			a.postSignal(s)
		}
	}

	for _, rec := range fired {
		a.fireTimer(rec)
	}
}

func (a *App) fireTimer(rec *timerRecord) {
	m, ok := a.msgers[rec.owner]
	delete(a.timers, rec.owner)
	if !ok {
		return
	}
	if firer, ok := m.(timerFirer); ok {
		firer.FireTimer(rec.fd)
	}
}
