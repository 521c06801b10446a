// Package ping implements the tutorial ping/pong interface used by
// cmd/ping and cmd/pingsrv to exercise the App/proxy/Extern stack
// end-to-end, the same role test/ping.h plays in the original project
//.
package ping

import (
	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
	"github.com/msharov/cwiclo-sub000/pkg/proxy"
)

// Interface is cwiclo.Ping: a single round-trip request/reply pair,
// both carrying one uint32 counter value.
var Interface = iface.New("cwiclo.Ping",
	iface.MethodSpec{Name: "Ping", Signature: "u"},
	iface.MethodSpec{Name: "Pong", Signature: "u"},
)

var pingMethod, _ = Interface.MethodByName("Ping")
var pongMethod, _ = Interface.MethodByName("Pong")

func encodeU32(v uint32) []byte {
	sz := &proxy.Sizer{}
	sz.U32()
	body := make([]byte, sz.Size())
	w := proxy.NewWriter(body)
	w.PutU32(v)
	w.Commit()
	return body
}

func decodeU32(body []byte) uint32 {
	if len(body) < 4 {
		return 0
	}
	return uint32(body[0]) | uint32(body[1])<<8 | uint32(body[2])<<16 | uint32(body[3])<<24
}

// Proxy sends Ping requests to whatever Link it was constructed with
//.
type Proxy struct {
	proxy.Base
}

// NewProxy constructs a Ping proxy addressed from link.Src to
// link.Dest (link.Dest may be mrid.New to create the destination on
// first send).
func NewProxy(a *app.App, link msg.Link) *Proxy {
	return &Proxy{Base: proxy.NewBase(a, link)}
}

// Ping sends a Ping(v) request.
func (p *Proxy) Ping(v uint32) error {
	return p.Send(pingMethod, encodeU32(v))
}

// Pong sends a Pong(v) reply.
func (p *Proxy) Pong(v uint32) error {
	return p.Send(pongMethod, encodeU32(v))
}
