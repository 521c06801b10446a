// Package sigbridge captures asynchronous OS signals into a
// process-wide atomic bit mask and posts a wakeup so the App's poll
// step can drain it synchronously.
//
// Go's runtime already funnels signal delivery through a safe internal
// channel (os/signal), so this package does not install a raw C
// signal handler; instead a small forwarder goroutine — which never
// touches App state, only the atomic mask and a wakeup pipe — plays
// the role of an async-signal-safe handler. The signal mask is
// written with release semantics from outside the loop and read with
// acquire semantics inside it.
package sigbridge

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Signal identifies one of the signals the bridge converts to
// messages on the Signal interface.
type Signal int

const (
	SigINT Signal = iota
	SigTERM
	SigHUP
	SigCHLD
	SigPIPE
	SigUSR1
	SigUSR2
	SigWINCH
	SigURG
	SigXFSZ
	numSignals
)

var osSignals = [numSignals]os.Signal{
	SigINT:   syscall.SIGINT,
	SigTERM:  syscall.SIGTERM,
	SigHUP:   syscall.SIGHUP,
	SigCHLD:  syscall.SIGCHLD,
	SigPIPE:  syscall.SIGPIPE,
	SigUSR1:  syscall.SIGUSR1,
	SigUSR2:  syscall.SIGUSR2,
	SigWINCH: syscall.SIGWINCH,
	SigURG:   syscall.SIGURG,
	SigXFSZ:  syscall.SIGXFSZ,
}

// Bridge owns the atomic mask, the wakeup pipe, and the forwarder
// goroutine. Only Drain (called from the App loop) and the wakeup
// fd's read side are touched from the loop goroutine; Notify's
// delivery path runs on its own goroutine and only ORs into the mask
// and nudges the pipe.
type Bridge struct {
	mask     uint32
	sigCh    chan os.Signal
	wakeR    *os.File
	wakeW    *os.File
	stopCh   chan struct{}
}

// New creates a Bridge and starts its forwarder goroutine. Callers
// must call Close when the App exits.
func New() (*Bridge, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		sigCh:  make(chan os.Signal, numSignals*4),
		wakeR:  r,
		wakeW:  w,
		stopCh: make(chan struct{}),
	}
	all := make([]os.Signal, numSignals)
	copy(all, osSignals[:])
	signal.Notify(b.sigCh, all...)
	go b.forward()
	return b, nil
}

// WakeupFD is the read side of the self-pipe; the App loop adds it to
// its poll set so a pending signal interrupts the wait.
func (b *Bridge) WakeupFD() int {
	return int(b.wakeR.Fd())
}

// DrainWakeup reads and discards any bytes queued on the wakeup pipe,
// called once per loop iteration after a readiness wait.
func (b *Bridge) DrainWakeup() {
	var buf [64]byte
	fd := int(b.wakeR.Fd())
	// Fd leaves the pipe in blocking mode; make reads return EAGAIN
	// once the pipe is empty instead of waiting for the next signal.
	if err := syscall.SetNonblock(fd, true); err != nil {
		return
	}
	for {
		n, err := syscall.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (b *Bridge) forward() {
	for {
		select {
		case s := <-b.sigCh:
			if bit, ok := bitFor(s); ok {
				orMask(&b.mask, bit)
				_, _ = b.wakeW.Write([]byte{1})
			}
		case <-b.stopCh:
			return
		}
	}
}

// orMask atomically ORs bit into *addr, retrying on contention. This
// avoids depending on the package-level atomic.Or* helpers, which
// postdate this module's Go version floor.
func orMask(addr *uint32, bit uint32) {
	for {
		old := atomic.LoadUint32(addr)
		if atomic.CompareAndSwapUint32(addr, old, old|bit) {
			return
		}
	}
}

func bitFor(s os.Signal) (uint32, bool) {
	for i, sig := range osSignals {
		if sig == s {
			return 1 << uint(i), true
		}
	}
	return 0, false
}

// Drain atomically swaps the mask to zero (acquire) and returns the
// set of signals that arrived since the last Drain, in a stable
// (ascending) order.
func (b *Bridge) Drain() []Signal {
	m := atomic.SwapUint32(&b.mask, 0)
	if m == 0 {
		return nil
	}
	out := make([]Signal, 0, numSignals)
	for i := Signal(0); i < numSignals; i++ {
		if m&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}

// Close stops the forwarder and releases the self-pipe.
func (b *Bridge) Close() {
	signal.Stop(b.sigCh)
	close(b.stopCh)
	b.wakeR.Close()
	b.wakeW.Close()
}
