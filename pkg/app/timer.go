package app

import "github.com/msharov/cwiclo-sub000/pkg/mrid"

// Watch names which fd readiness, if any, a timer record is waiting
// on.
type Watch int

const (
	WatchNone Watch = iota
	WatchRead
	WatchWrite
	WatchReadWrite
)

// TimerNone marks a timer record as having no finite deadline.
const TimerNone int64 = -1

// timerRecord is the { owner, watched fd, watch-command, next-fire
// deadline } tuple, keyed by owner so each Msger can hold at most one
// live record (matching one Timer Msger instance owning exactly one
// watch).
type timerRecord struct {
	owner    mrid.ID
	fd       int
	watch    Watch
	deadline int64 // absolute, milliseconds; TimerNone = infinite
}

// present reports whether this record currently has anything to wait
// for: a timer watching no fd with no finite deadline is treated as
// absent.
func (r *timerRecord) present() bool {
	return (r.fd >= 0 && r.watch != WatchNone) || r.deadline != TimerNone
}

// timerFirer is implemented by Msgers that own a timer record (in
// practice, only *timer.Timer). The App invokes it directly rather
// than routing a synthetic message through Dispatch, keeping purely
// internal timer plumbing out of the message queues entirely.
type timerFirer interface {
	FireTimer(fd int)
}

// SetTimer installs or replaces the timer record for owner. fd < 0
// means "no fd watched"; watch is ignored when fd < 0. deadlineMS is
// an absolute Unix millisecond deadline, or TimerNone for "no
// deadline".
func (a *App) SetTimer(owner mrid.ID, fd int, watch Watch, deadlineMS int64) {
	a.timers[owner] = &timerRecord{owner: owner, fd: fd, watch: watch, deadline: deadlineMS}
}

// ClearTimer removes owner's timer record, called on Stop and when
// the owning Msger is destroyed.
func (a *App) ClearTimer(owner mrid.ID) {
	delete(a.timers, owner)
}

// NowMS returns the current absolute time in milliseconds, the unit
// timer deadlines are expressed in.
func NowMS() int64 {
	return nowMS()
}
