package ping

import (
	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/mrg"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
)

var _ mrg.Msger = (*Ponger)(nil)

// Ponger is the server side of the round trip:
// every Ping it receives gets an immediate Pong reply with the same
// value, mirroring test/ipcomsrv.cc's PingMsger.
type Ponger struct {
	mrg.Base
	a *app.App
}

// Factory constructs a fresh Ponger for Interface, suitable for
// app.App.RegisterFactory(ping.Interface, ping.Factory).
func Factory(a *app.App, link msg.Link) (mrg.Msger, error) {
	return &Ponger{a: a}, nil
}

// Dispatch implements mrg.Msger.
func (p *Ponger) Dispatch(m *msg.Message) bool {
	if m.Method != pingMethod {
		return false
	}
	v := decodeU32(m.Body)
	reply := NewProxy(p.a, m.Link.Reply())
	if err := reply.Pong(v); err != nil {
		p.a.AddError(err)
	}
	return true
}
