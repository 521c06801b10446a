package extern

import (
	"fmt"
	"sync"

	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/applog"
	"github.com/msharov/cwiclo-sub000/pkg/mrg"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
	"golang.org/x/sys/unix"
)

// ExtIDCOM is the reserved extid the COM handshake and control
// messages (export/import/delete/error) travel on.
const ExtIDCOM uint16 = 0

// ClientBase and ServerBase split the extid space: each side of a
// connection allocates from its own half so the two peers never race
// to assign the same extid to different links.
const (
	ClientBase uint16 = 1
	ServerBase uint16 = 0x8000
)

// FrameHandler receives decoded application frames read off the wire.
// pkg/xcom's COMRelay is the only intended implementation: it bridges
// decoded frames into the normal App message plane.
type FrameHandler interface {
	HandleFrame(ext *Extern, extid uint16, ifaceName, methodName string, body []byte, fd int)
}

// Extern is one transport endpoint: a non-blocking Unix domain socket
// (or, for the loopback test/dev path, a TCP socket — see tcp.go),
// driven entirely by the App's poll loop the same way pkg/timer
// drives its watch.
type Extern struct {
	mrg.Base
	app *app.App
	log applog.Logger
	fd  int

	isServer bool
	nextExtID uint16

	handler FrameHandler

	rx rxState
	tx txState

	peerUID uint32
	peerGID uint32
	havePeerCred bool

	closed   bool
	onClose  func()

	mu sync.Mutex // guards fd/closed against concurrent FireTimer/Close
}

// OnClose registers f to run once, the moment this Extern closes its
// socket (cleanly or on error), so an owner like ExternServer can drop
// its bookkeeping.
func (e *Extern) OnClose(f func()) { e.onClose = f }

type rxState struct {
	buf []byte
}

type txState struct {
	queue []pendingFrame
	off   int
}

type pendingFrame struct {
	buf []byte
	fd  int // -1 if none
}

// New wraps fd (already connected, already set non-blocking by the
// caller — see Dial/Accept) as an Extern running in a.
func New(a *app.App, fd int, isServer bool, h FrameHandler, lf applog.Factory) (*Extern, error) {
	base := ServerBase
	if !isServer {
		base = ClientBase
	}
	e := &Extern{
		app:       a,
		log:       applog.New(lf, "extern"),
		fd:        fd,
		isServer:  isServer,
		nextExtID: base,
		handler:   h,
	}
	return e, nil
}

// SetHandler installs (or replaces) the frame handler, used by
// pkg/xcom to wire a COMRelay in after both it and its Extern exist
// (breaking the otherwise-circular construction order).
func (e *Extern) SetHandler(h FrameHandler) { e.handler = h }

// Register installs e as a singleton Msger in a and arms its fd for
// the App's poll loop.
func (e *Extern) Register() (mrid.ID, error) {
	id, err := e.app.RegisterSingleton(e)
	if err != nil {
		return id, err
	}
	e.rearm()
	return id, nil
}

// AllocExtID hands out the next extid from this side's half of the
// id space.
func (e *Extern) AllocExtID() uint16 {
	id := e.nextExtID
	e.nextExtID++
	return id
}

// PeerCredentials returns the Unix credentials read off SO_PEERCRED,
// if available. They are fetched on the first successful read from
// the socket, so ok is false until then.
func (e *Extern) PeerCredentials() (uid, gid uint32, ok bool) {
	return e.peerUID, e.peerGID, e.havePeerCred
}

func (e *Extern) fetchPeerCred() {
	cred, err := unix.GetsockoptUcred(e.fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		e.log.Debugf("extern: SO_PEERCRED unavailable: %v", err)
		return
	}
	e.peerUID = cred.Uid
	e.peerGID = cred.Gid
	e.havePeerCred = true
}

// SendFrame encodes and queues a frame for the given extid/interface/
// method/body, optionally carrying fd as ancillary data.
func (e *Extern) SendFrame(extid uint16, ifaceName, methodName string, body []byte, fd int) {
	fdOffset := uint8(NoFDOffset)
	if fd >= 0 {
		// Every caller that attaches a descriptor marshals it at the
		// front of the body (mirroring msg.Message.WithFD(0)'s
		// convention), so the header's offset is always 0 when one is
		// present.
		fdOffset = 0
	}
	hdr := frameHeader{BodySize: uint32(len(body)), ExtID: extid, FDOffset: fdOffset}
	head := encodeHeader(hdr, ifaceName, methodName)
	frame := append(head, body...)
	e.mu.Lock()
	e.tx.queue = append(e.tx.queue, pendingFrame{buf: frame, fd: fd})
	e.mu.Unlock()
	e.rearm()
}

// rearm tells the App what this Extern wants to be woken up for:
// always readable, plus writable while frames are queued.
func (e *Extern) rearm() {
	w := app.WatchRead
	e.mu.Lock()
	pending := len(e.tx.queue) > 0
	e.mu.Unlock()
	if pending {
		w = app.WatchReadWrite
	}
	e.app.SetTimer(e.MRID(), e.fd, w, app.TimerNone)
}

// FireTimer implements the timerFirer contract the App's poll loop
// calls directly on fd readiness (grounded on pkg/timer.Timer.FireTimer,
// the same dispatch-by-direct-call idiom generalized from a one-shot
// reply to a recurring socket pump).
func (e *Extern) FireTimer(fd int) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	e.drainWrites()
	e.pump()
	if !e.closed {
		e.rearm()
	}
}

// drainWrites attempts to flush as much of the queued frames as the
// socket will currently accept, sending any attached fd as SCM_RIGHTS
// ancillary data on the first write of its frame.
func (e *Extern) drainWrites() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.tx.queue) > 0 {
		f := &e.tx.queue[0]
		var oob []byte
		if e.tx.off == 0 && f.fd >= 0 {
			oob = unix.UnixRights(f.fd)
		}
		n, err := unix.SendmsgN(e.fd, f.buf[e.tx.off:], oob, nil, 0)
		if n > 0 {
			e.tx.off += n
		}
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			e.closeLocked(fmt.Errorf("extern: send: %w", err))
			return
		}
		if e.tx.off >= len(f.buf) {
			e.tx.queue = e.tx.queue[1:]
			e.tx.off = 0
		} else {
			return // partial write; socket buffer full
		}
	}
}

// pump reads as many bytes as are currently available and decodes as
// many complete frames as have arrived, dispatching each to handler.
func (e *Extern) pump() {
	scratch := make([]byte, 65536)
	oob := make([]byte, unix.CmsgSpace(4))
	for {
		n, oobn, _, _, err := unix.Recvmsg(e.fd, scratch, oob, 0)
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			e.close(fmt.Errorf("extern: recv: %w", err))
			return
		}
		if n == 0 {
			e.close(ErrPeerClosed)
			return
		}
		if !e.havePeerCred {
			e.fetchPeerCred()
		}
		var fd = -1
		if oobn > 0 {
			if msgs, err := unix.ParseSocketControlMessage(oob[:oobn]); err == nil {
				for _, m := range msgs {
					if fds, err := unix.ParseUnixRights(&m); err == nil && len(fds) > 0 {
						fd = fds[0]
					}
				}
			}
		}
		e.rx.buf = append(e.rx.buf, scratch[:n]...)
		e.decodeReady(fd)
	}
}

// decodeReady decodes every complete frame currently buffered in
// rx.buf, attaching fd (from the read that produced the current tail
// of the buffer) to the first frame needing one.
func (e *Extern) decodeReady(fd int) {
	for {
		if len(e.rx.buf) < headerSize {
			return
		}
		h, err := decodeHeader(e.rx.buf)
		if err != nil {
			e.close(fmt.Errorf("extern: %w", err))
			return
		}
		if h.BodySize > MaxBodySize {
			e.close(fmt.Errorf("%w: %d", ErrBodyTooLarge, h.BodySize))
			return
		}
		// A frame may also carry an extid this side allocated itself:
		// replies on a link travel on the extid its originator chose.
		ownBase := ClientBase
		if e.isServer {
			ownBase = ServerBase
		}
		ownExtID := h.ExtID >= ownBase && h.ExtID < e.nextExtID
		if h.ExtID != ExtIDCOM && !ownExtID && !validExtIDFromPeer(e.isServer, h.ExtID) {
			e.close(fmt.Errorf("%w: %d", ErrWrongExtIDHalf, h.ExtID))
			return
		}
		if h.FDOffset != NoFDOffset && uint32(h.FDOffset) >= h.BodySize {
			e.close(fmt.Errorf("%w: offset %d, body size %d", ErrFDOffsetRange, h.FDOffset, h.BodySize))
			return
		}
		total := int(h.HeaderSize) + int(h.BodySize)
		if len(e.rx.buf) < total {
			return // wait for more bytes
		}
		ifaceName, methodName, err := decodeNames(h, e.rx.buf[:h.HeaderSize])
		if err != nil {
			e.close(fmt.Errorf("extern: %w", err))
			return
		}
		body := e.rx.buf[h.HeaderSize:total]
		frameFD := -1
		if h.FDOffset != NoFDOffset {
			frameFD = fd
			fd = -1
		}
		if e.handler != nil {
			e.handler.HandleFrame(e, h.ExtID, ifaceName, methodName, body, frameFD)
		}
		e.rx.buf = e.rx.buf[total:]
	}
}

// validExtIDFromPeer reports whether extid falls in the half of the
// id space the peer (the opposite role from isServer) allocates from:
// a server's peer is a client and must use [ClientBase, ServerBase); a
// client's peer is a server and must use [ServerBase, lastFree].
func validExtIDFromPeer(isServer bool, extid uint16) bool {
	if isServer {
		return extid >= ClientBase && extid < ServerBase
	}
	return extid >= ServerBase
}

// Close asks this Extern to close its socket because cause (detected
// by the frame handler, e.g. a signature or access-control violation)
// makes the connection no longer usable.
func (e *Extern) Close(cause error) {
	e.close(cause)
}

func (e *Extern) close(cause error) {
	e.mu.Lock()
	e.closeLocked(cause)
	e.mu.Unlock()
}

func (e *Extern) closeLocked(cause error) {
	if e.closed {
		return
	}
	e.closed = true
	if cause != nil {
		e.log.Warnf("extern: closing: %v", cause)
	}
	unix.Close(e.fd)
	e.app.ClearTimer(e.MRID())
	e.SetFlags(e.Flags() | mrg.Unused)
	if e.onClose != nil {
		e.onClose()
	}
}

// Dispatch implements mrg.Msger; an Extern has no wire-visible
// interface of its own (it is driven by FireTimer and SendFrame, not
// by messages addressed to it).
func (e *Extern) Dispatch(*msg.Message) bool { return false }
