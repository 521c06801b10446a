// Package xcom implements COMRelay, the per-logical-link bridge Msger:
// it sits between one Extern transport endpoint and the normal App
// message plane, translating wire frames to and from local Msgers.
package xcom

import (
	"fmt"
	"strings"

	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/extern"
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/mrg"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
	"github.com/msharov/cwiclo-sub000/pkg/sig"
)

// The fixed set of control method names that travel on
// extern.ExtIDCOM.
const (
	controlExport = "Export"
	controlDelete = "Delete"
	controlError  = "Error"
	controlHello  = "Hello"
)

// allowedBeforeAuth is the minimal pre-connect whitelist: a peer that
// has not yet completed the export handshake may still exchange COM
// control traffic, so the connection can be torn down cleanly or
// brought up to "connected" in the first place.
var allowedBeforeAuth = map[string]bool{
	controlExport: true,
	controlDelete: true,
	controlError:  true,
	controlHello:  true,
}

// AccessPolicy decides whether a peer (identified by Unix credentials
// read off SO_PEERCRED) may use interface in at all. A nil policy
// admits every peer once connected.
type AccessPolicy func(uid, gid uint32, in *iface.Interface) bool

// COMRelay bridges one Extern's decoded frames into the App message
// plane and vice versa.
type COMRelay struct {
	mrg.Base
	a        *app.App
	ext      *extern.Extern
	registry *iface.Registry
	policy   AccessPolicy

	localToExtID map[mrid.ID]uint16
	extIDToLocal map[uint16]mrid.ID
	extIDToIface map[uint16]*iface.Interface

	// connected flips to true once this side has received the peer's
	// Export list and computed the intersection against registry.
	connected bool
	// exported holds the intersection of the peer's advertised
	// interfaces with registry, computed when Export arrives.
	exported []string
	// pending holds messages Dispatch received before connected; they
	// are replayed in order once Export arrives.
	pending []*msg.Message

	filterUID     uint32
	haveFilterUID bool
}

var (
	_ mrg.Msger           = (*COMRelay)(nil)
	_ extern.FrameHandler = (*COMRelay)(nil)
)

// New creates a COMRelay over ext, able to satisfy imports/exports
// named in registry. Register then installs it in a as a singleton.
func New(a *app.App, ext *extern.Extern, registry *iface.Registry, policy AccessPolicy) *COMRelay {
	c := &COMRelay{
		a:            a,
		ext:          ext,
		registry:     registry,
		policy:       policy,
		localToExtID: make(map[mrid.ID]uint16),
		extIDToLocal: make(map[uint16]mrid.ID),
		extIDToIface: make(map[uint16]*iface.Interface),
	}
	return c
}

// Register installs c as a singleton Msger and wires it as ext's frame
// handler.
func (c *COMRelay) Register() (mrid.ID, error) {
	id, err := c.a.RegisterSingleton(c)
	if err != nil {
		return id, err
	}
	c.ext.SetHandler(c)
	return id, nil
}

// SetFilterUID records uid as the owner of the socket's filesystem
// anchor: once set, any method not in allowedBeforeAuth is rejected
// from a peer whose SO_PEERCRED uid doesn't match. Called by
// ExternServer for the listen path's resolved owner.
func (c *COMRelay) SetFilterUID(uid uint32) {
	c.filterUID = uid
	c.haveFilterUID = true
}

// Exported returns the interface names this relay and its peer both
// advertised, computed from the peer's Export list once connected.
func (c *COMRelay) Exported() []string { return c.exported }

// Connected reports whether the Export handshake has completed.
func (c *COMRelay) Connected() bool { return c.connected }

// Handshake sends this side's exported interface list on
// extern.ExtIDCOM: a comma-separated list of registry's interface
// names. Either side may send first.
func (c *COMRelay) Handshake() {
	c.ext.SendFrame(extern.ExtIDCOM, "cwiclo.COM", controlExport, []byte(strings.Join(c.localNames(), ",")), -1)
}

func (c *COMRelay) localNames() []string {
	all := c.registry.All()
	names := make([]string, len(all))
	for i, in := range all {
		names[i] = in.Name
	}
	return names
}

// Dispatch implements mrg.Msger: messages addressed to this relay by
// local Msgers are outbound frames. Anything originated before the
// export handshake completes is queued and replayed once it does.
func (c *COMRelay) Dispatch(m *msg.Message) bool {
	if !c.connected {
		c.pending = append(c.pending, m)
		return true
	}
	c.sendOut(m)
	return true
}

func (c *COMRelay) sendOut(m *msg.Message) {
	extid, ok := c.localToExtID[m.Link.Src]
	if !ok {
		extid = c.ext.AllocExtID()
		c.localToExtID[m.Link.Src] = extid
		c.extIDToLocal[extid] = m.Link.Src
		c.extIDToIface[extid] = m.Method.Interface
	}
	fd := -1
	if m.FDOffset != msg.NoFD {
		// The real descriptor value travels out-of-band from the
		// marshalled body; callers that need fd passing attach it via
		// extern.Extern.SendFrame directly rather than through Dispatch.
	}
	c.ext.SendFrame(extid, m.Method.Interface.Name, m.Method.Name, m.Body, fd)
}

func (c *COMRelay) replayPending() {
	queued := c.pending
	c.pending = nil
	for _, m := range queued {
		c.sendOut(m)
	}
}

// HandleFrame implements extern.FrameHandler: it decodes one inbound
// wire frame and either routes it to the local Msger that originated
// its logical link, or — for a previously-unseen extid — materializes
// a fresh local Msger for the named interface.
func (c *COMRelay) HandleFrame(ext *extern.Extern, extid uint16, ifaceName, methodName string, body []byte, fd int) {
	if c.haveFilterUID && !allowedBeforeAuth[methodName] {
		uid, _, ok := ext.PeerCredentials()
		if !ok || uid != c.filterUID {
			c.a.AddError(fmt.Errorf("xcom: access denied: peer uid %d does not match filter uid %d", uid, c.filterUID))
			ext.Close(fmt.Errorf("xcom: rejecting connection from uid %d", uid))
			return
		}
	}

	if extid == extern.ExtIDCOM {
		c.handleControl(methodName, body)
		return
	}
	if !c.connected && !allowedBeforeAuth[methodName] {
		c.a.AddError(fmt.Errorf("xcom: method %s.%s used before the export handshake completed", ifaceName, methodName))
		return
	}

	localID, ok := c.extIDToLocal[extid]
	if !ok {
		in, ok2 := c.registry.ByName(ifaceName)
		if !ok2 {
			c.a.AddError(fmt.Errorf("xcom: unknown imported interface %q", ifaceName))
			return
		}
		if c.policy != nil {
			uid, gid, _ := ext.PeerCredentials()
			if !c.policy(uid, gid, in) {
				c.a.AddError(fmt.Errorf("xcom: access denied to interface %q", ifaceName))
				return
			}
		}
		id, err := c.a.CreateMsger(c.MRID(), in)
		if err != nil {
			c.a.AddError(fmt.Errorf("xcom: creating Msger for %q: %w", ifaceName, err))
			return
		}
		localID = id
		c.extIDToLocal[extid] = id
		c.localToExtID[id] = extid
		c.extIDToIface[extid] = in
	}

	in := c.extIDToIface[extid]
	method, ok := in.MethodByName(methodName)
	if !ok {
		c.a.AddError(fmt.Errorf("xcom: interface %q has no method %q", ifaceName, methodName))
		return
	}
	if !bodyMatchesSignature(method, body) {
		c.a.AddError(fmt.Errorf("xcom: body for %s.%s does not match its signature %q", ifaceName, methodName, method.Signature))
		ext.Close(fmt.Errorf("xcom: signature validation failed for %s.%s", ifaceName, methodName))
		return
	}
	m := msg.New(msg.Link{Src: c.MRID(), Dest: localID}, method, body)
	if fd != -1 {
		m = m.WithFD(0)
	}
	c.a.Requeue(m)
}

// bodyMatchesSignature reports whether body is a complete, valid
// encoding of method's signature: sig.Validate must consume exactly
// len(body), with the zero-argument case (an empty signature)
// requiring an empty body.
func bodyMatchesSignature(method *iface.Method, body []byte) bool {
	if method.Signature == "" {
		return len(body) == 0
	}
	return sig.Validate(method.Signature, body) == len(body)
}

// handleControl processes the fixed COM control protocol that travels
// on extern.ExtIDCOM: Export carries the peer's comma-separated
// exported-interface list, from which the local/peer intersection is
// computed and the connection marked connected, replaying anything
// Dispatch queued before now; Delete tears down one logical link;
// Error reports a peer-side failure for a link, forwarded into the
// App's error chain; Hello carries the peer's instance nonce (no
// further action beyond having arrived at all).
func (c *COMRelay) handleControl(methodName string, body []byte) {
	switch methodName {
	case controlExport:
		peerNames := splitNonEmpty(string(body))
		c.exported = intersect(c.localNames(), peerNames)
		c.connected = true
		c.replayPending()
	case controlDelete:
		c.deleteByBody(body)
	case controlError:
		c.a.AddError(fmt.Errorf("xcom: peer reported: %s", string(body)))
	case controlHello:
		// Identity-only: the nonce distinguishes this connection instance
		// from a prior one on the same socket name after a reconnect.
	default:
		c.a.AddError(fmt.Errorf("xcom: unknown control method %q", methodName))
	}
}

// splitNonEmpty splits s on commas, dropping any empty fields (an
// empty export list arrives as the empty string, not a one-element
// list containing "").
func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// intersect returns the names present in both a and b, in a's order.
func intersect(a, b []string) []string {
	bs := make(map[string]bool, len(b))
	for _, n := range b {
		bs[n] = true
	}
	var out []string
	for _, n := range a {
		if bs[n] {
			out = append(out, n)
		}
	}
	return out
}

// deleteByBody removes the link named by the first 2 little-endian
// bytes of body (the remote extid being torn down), unhooking both
// direction maps. The local Msger on that link is not flagged Unused
// or destroyed; it stays live in the App.
func (c *COMRelay) deleteByBody(body []byte) {
	if len(body) < 2 {
		return
	}
	extid := uint16(body[0]) | uint16(body[1])<<8
	localID, ok := c.extIDToLocal[extid]
	if !ok {
		return
	}
	delete(c.extIDToLocal, extid)
	delete(c.extIDToIface, extid)
	delete(c.localToExtID, localID)
}

// OnDestroy implements mrg.Msger: it drops the relay's link tables
// and pending queue. The local Msgers the relay created are left as
// they are. Register installs the relay as a Static singleton, so
// the App's reaping never destroys it, even after its Extern closes.
func (c *COMRelay) OnDestroy(mrid.ID) {
	c.localToExtID = nil
	c.extIDToLocal = nil
	c.extIDToIface = nil
	c.pending = nil
}
