// Package timer implements the Timer Msger: a small state machine
// that bridges a watched file descriptor's readiness and/or an
// absolute millisecond deadline into a single reply message sent back
// to its creator.
package timer

import (
	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/mrg"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
)

// Cmd selects which fd readiness, if any, Watch waits for.
type Cmd int16

const (
	// CmdStop clears any existing watch and deadline, returning the
	// Timer to Idle.
	CmdStop Cmd = iota
	CmdRead
	CmdWrite
	CmdReadWrite
	// CmdTimer watches no fd: fd in the Watch call is ignored and only
	// the deadline matters.
	CmdTimer
)

// Interface is the wire-visible cwiclo.Timer interface: Watch installs
// or replaces the watch, and Timer is the reply method fired back to
// the creator.
var Interface = iface.New("cwiclo.Timer",
	iface.MethodSpec{Name: "Watch", Signature: "hnx"},
	iface.MethodSpec{Name: "Timer", Signature: "h"},
)

var watchMethod, _ = Interface.MethodByName("Watch")
var timerMethod, _ = Interface.MethodByName("Timer")

// state names the five states a Timer can be in.
type state int

const (
	stateIdle state = iota
	stateWaitingFD
	stateWaitingDeadline
	stateWaitingBoth
	stateFiring
)

// Timer is one instance of the Timer Msger. A fresh one is created
// per New-addressed Watch call, and is reaped once it fires — the
// same way any other per-request Msger created via mrid.New is
// reaped.
type Timer struct {
	mrg.Base
	app    *app.App
	st     state
	fd     int
	lastFD int
}

// New constructs a Timer created by link.Dest (the creator it will
// eventually reply to), matching the app.Factory signature.
func New(a *app.App, link msg.Link) (mrg.Msger, error) {
	return &Timer{
		Base:   mrg.NewBase(link.Dest),
		app:    a,
		st:     stateIdle,
		fd:     msg.NoFD,
		lastFD: msg.NoFD,
	}, nil
}

// Dispatch implements mrg.Msger.
func (t *Timer) Dispatch(m *msg.Message) bool {
	if m.Method != watchMethod {
		return false
	}
	fd, cmd, deadline := decodeWatch(m.Body)
	t.watch(fd, cmd, deadline)
	return true
}

func decodeWatch(body []byte) (fd int, cmd Cmd, deadlineMS int64) {
	if len(body) < 4 {
		return msg.NoFD, CmdStop, app.TimerNone
	}
	fdv := int32(body[0]) | int32(body[1])<<8 | int32(body[2])<<16 | int32(body[3])<<24
	off := 4
	cmdv := int16(0)
	if off+2 <= len(body) {
		cmdv = int16(body[off]) | int16(body[off+1])<<8
	}
	off += 2
	if r := off % 8; r != 0 {
		off += 8 - r
	}
	deadline := app.TimerNone
	if off+8 <= len(body) {
		var v int64
		for i := 7; i >= 0; i-- {
			v = v<<8 | int64(body[off+i])
		}
		deadline = v
	}
	if fdv < 0 {
		return msg.NoFD, Cmd(cmdv), deadline
	}
	return int(fdv), Cmd(cmdv), deadline
}

// watch installs the new state and tells the App what to wait for
//.
func (t *Timer) watch(fd int, cmd Cmd, deadlineMS int64) {
	if cmd == CmdStop {
		t.Stop()
		return
	}

	var w app.Watch
	watchedFD := msg.NoFD
	switch cmd {
	case CmdRead:
		w, watchedFD = app.WatchRead, fd
	case CmdWrite:
		w, watchedFD = app.WatchWrite, fd
	case CmdReadWrite:
		w, watchedFD = app.WatchReadWrite, fd
	case CmdTimer:
		w, watchedFD = app.WatchNone, msg.NoFD
	}
	t.fd = watchedFD

	switch {
	case watchedFD != msg.NoFD && deadlineMS != app.TimerNone:
		t.st = stateWaitingBoth
	case watchedFD != msg.NoFD:
		t.st = stateWaitingFD
	case deadlineMS != app.TimerNone:
		t.st = stateWaitingDeadline
	default:
		t.st = stateIdle
	}

	if t.st == stateIdle {
		t.app.ClearTimer(t.MRID())
		return
	}
	t.app.SetTimer(t.MRID(), watchedFD, w, deadlineMS)
}

// Stop clears the watch and returns the Timer to Idle.
func (t *Timer) Stop() {
	t.st = stateIdle
	t.fd = msg.NoFD
	t.app.ClearTimer(t.MRID())
}

// FireTimer implements the timerFirer contract pkg/app's scheduler
// calls directly: it sends the Timer reply to the creator and marks
// itself Unused so it is reaped at the end of the current iteration
//.
func (t *Timer) FireTimer(fd int) {
	t.st = stateFiring
	t.lastFD = fd
	body := make([]byte, 4)
	fdv := int32(fd)
	body[0] = byte(fdv)
	body[1] = byte(fdv >> 8)
	body[2] = byte(fdv >> 16)
	body[3] = byte(fdv >> 24)
	t.app.Requeue(msg.New(msg.Link{Src: t.MRID(), Dest: t.Creator()}, timerMethod, body))
	t.MarkUnused()
}
