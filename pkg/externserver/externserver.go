// Package externserver implements the ExternServer Msger: a listening
// socket that accepts connections and wraps each one in an Extern
// plus a COMRelay, driven by the same App poll loop pkg/extern and
// pkg/timer already use instead of a blocking accept goroutine.
package externserver

import (
	"fmt"

	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/applog"
	"github.com/msharov/cwiclo-sub000/pkg/extern"
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/mrg"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
	"github.com/msharov/cwiclo-sub000/pkg/sockname"
	"github.com/msharov/cwiclo-sub000/pkg/xcom"
)

var _ mrg.Msger = (*ExternServer)(nil)

// ExternServer owns one listening Unix domain socket and one COMRelay
// per accepted connection.
type ExternServer struct {
	mrg.Base
	a        *app.App
	log      applog.Logger
	fd       int
	registry *iface.Registry
	policy   xcom.AccessPolicy
	lf       applog.Factory

	relays []*xcom.COMRelay

	filterUID     uint32
	haveFilterUID bool

	// retiring marks a server that clears its watch and marks itself
	// Unused once its last accepted connection drains (see Retire).
	retiring bool
}

// Config configures an ExternServer.
type Config struct {
	Registry      *iface.Registry
	Policy        xcom.AccessPolicy
	LoggerFactory applog.Factory
}

// New binds and listens on path (a filesystem or abstract-namespace
// Unix socket path, as resolved by pkg/sockname).
func New(a *app.App, path string, cfg Config) (*ExternServer, error) {
	fd, err := extern.ListenUnix(path, 16)
	if err != nil {
		return nil, fmt.Errorf("externserver: listen %s: %w", path, err)
	}
	s := &ExternServer{
		a:        a,
		log:      applog.New(cfg.LoggerFactory, "externserver"),
		fd:       fd,
		registry: cfg.Registry,
		policy:   cfg.Policy,
		lf:       cfg.LoggerFactory,
	}
	if uid, ok := sockname.FilterUID(path); ok {
		s.filterUID = uid
		s.haveFilterUID = true
	} else {
		s.log.Warnf("externserver: could not resolve filter uid for %s, access control disabled", path)
	}
	return s, nil
}

// Register installs s as a singleton Msger and arms its listening fd
// for readability.
func (s *ExternServer) Register() (mrid.ID, error) {
	id, err := s.a.RegisterSingleton(s)
	if err != nil {
		return id, err
	}
	s.a.SetTimer(id, s.fd, app.WatchRead, app.TimerNone)
	return id, nil
}

// Dispatch implements mrg.Msger; an ExternServer has no wire-visible
// interface of its own.
func (s *ExternServer) Dispatch(*msg.Message) bool { return false }

// FireTimer implements the timerFirer contract: the App calls this
// when the listening socket is readable, i.e. a connection is pending
//.
func (s *ExternServer) FireTimer(int) {
	for {
		fd, err := extern.AcceptUnix(s.fd)
		if err != nil {
			break // EAGAIN: nothing more pending right now
		}
		s.acceptOne(fd)
	}
	if s.retiring && len(s.relays) == 0 {
		s.a.ClearTimer(s.MRID())
		s.SetFlags(s.Flags() | mrg.Unused)
		return
	}
	s.a.SetTimer(s.MRID(), s.fd, app.WatchRead, app.TimerNone)
}

func (s *ExternServer) acceptOne(fd int) {
	ext, err := extern.New(s.a, fd, true, nil, s.lf)
	if err != nil {
		s.log.Warnf("externserver: wrapping accepted connection: %v", err)
		return
	}
	if _, err := ext.Register(); err != nil {
		s.log.Warnf("externserver: registering Extern: %v", err)
		return
	}
	relay := xcom.New(s.a, ext, s.registry, s.policy)
	if _, err := relay.Register(); err != nil {
		s.log.Warnf("externserver: registering COMRelay: %v", err)
		return
	}
	if s.haveFilterUID {
		relay.SetFilterUID(s.filterUID)
	}
	relay.Handshake()
	s.relays = append(s.relays, relay)
	ext.OnClose(func() { s.dropRelay(relay) })
}

func (s *ExternServer) dropRelay(relay *xcom.COMRelay) {
	for i, r := range s.relays {
		if r == relay {
			s.relays = append(s.relays[:i], s.relays[i+1:]...)
			if s.retiring && len(s.relays) == 0 {
				s.a.ClearTimer(s.MRID())
				s.SetFlags(s.Flags() | mrg.Unused)
			}
			return
		}
	}
}

// Retire puts the server into drain-to-zero mode: once no accepted
// connection remains open, the server clears its listening watch and
// marks itself Unused. Connections that become pending before then
// are still accepted by FireTimer. Register installs the server as a
// Static singleton, so the App does not reap it and the listening
// socket stays open.
func (s *ExternServer) Retire() {
	s.retiring = true
}
