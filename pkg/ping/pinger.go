package ping

import (
	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/applog"
	"github.com/msharov/cwiclo-sub000/pkg/mrg"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
)

var _ mrg.Msger = (*Pinger)(nil)

// Pinger is the client side of the ping/pong round trip: it sends Ping(1), and on every Pong reply sends the
// next Ping until the counter reaches Limit, then quits the App —
// mirroring test/ipcom.cc's TestApp::Ping_ping handler.
type Pinger struct {
	mrg.Base
	a     *app.App
	log   applog.Logger
	dest  mrid.ID
	proxy *Proxy
	Limit uint32
}

// NewPinger creates a Pinger that sends its requests to dest (mrid.New
// to create a fresh Ponger in the same process, or an ExternServer's
// COMRelay's mrid for a cross-process Ponger). Register it with
// app.App.RegisterSingleton before calling Start, so it has its own
// mrid to send from.
func NewPinger(a *app.App, dest mrid.ID, limit uint32) *Pinger {
	return &Pinger{a: a, log: applog.New(nil, "pinger"), dest: dest, Limit: limit}
}

// Start sends the first Ping. Call once after registering p.
func (p *Pinger) Start() error {
	p.proxy = NewProxy(p.a, msg.Link{Src: p.MRID(), Dest: p.dest})
	return p.proxy.Ping(1)
}

// Dispatch implements mrg.Msger.
func (p *Pinger) Dispatch(m *msg.Message) bool {
	if m.Method != pongMethod {
		return false
	}
	v := decodeU32(m.Body)
	p.log.Debugf("ping: pong %d received", v)
	if v >= p.Limit {
		p.a.Quit(0)
		return true
	}
	p.proxy = NewProxy(p.a, m.Link.Reply())
	if err := p.proxy.Ping(v + 1); err != nil {
		p.a.AddError(err)
	}
	return true
}
