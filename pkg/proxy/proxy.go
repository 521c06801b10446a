package proxy

import (
	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
)

// Base is the small Link-addressed value object every generated,
// per-interface proxy embeds: parameterized by a (source,
// destination) mrid pair. A concrete proxy type adds one method per
// interface method, each building its message with a Sizer/Writer
// pair and calling Send.
type Base struct {
	App  *app.App
	Link msg.Link
}

// NewBase constructs a Base addressed from src to dest. Passing
// mrid.New as dest (via msg.Link{Src: src, Dest: mrid.New}) defers
// resolution to the first Send, which allocates the destination via
// the factory registered for the method's interface.
func NewBase(a *app.App, link msg.Link) Base {
	return Base{App: a, Link: link}
}

// Send enqueues a fully-marshalled method call. Concrete proxies call
// this after running their Sizer/Writer pair over their arguments.
func (b *Base) Send(method *iface.Method, body []byte) error {
	return b.App.Send(b.Link, method, body)
}

// SendWithFD is Send for a method whose signature embeds a file
// descriptor placeholder at fdOffset.
func (b *Base) SendWithFD(method *iface.Method, body []byte, fdOffset int) error {
	// fd routing for a local (non-Extern) destination is same-process:
	// the descriptor value itself already lives at fdOffset in body, so
	// no separate channel is needed. pkg/xcom.COMRelay does not forward
	// the descriptor when such a message reaches it: its frames are
	// sent without SCM_RIGHTS data, and a descriptor crosses an Extern
	// only when passed to extern.Extern.SendFrame directly.
	m := msg.New(b.Link, method, body).WithFD(fdOffset)
	b.App.Requeue(m)
	return nil
}

// Reply builds the Base for a reply proxy from the message that
// originated a request.
func Reply(a *app.App, m *msg.Message) Base {
	return Base{App: a, Link: m.Link.Reply()}
}
