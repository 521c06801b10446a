// Package msg implements the Message and Link value types.
package msg

import (
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
)

// Link parameterizes a proxy instance: a (source, destination) mrid
// pair.
type Link struct {
	Src  mrid.ID
	Dest mrid.ID
}

// Reply returns the mirrored link used to construct a reply proxy:
// src and dest swapped.
func (l Link) Reply() Link {
	return Link{Src: l.Dest, Dest: l.Src}
}

// NoFD marks a Message as carrying no file descriptor.
const NoFD = -1

// Message is the immutable envelope: a link, a method identifier
// (which carries interface identity via Method.Interface), a body, an
// optional fd offset within the body, and an optional external-link
// id tagging messages that arrived via an Extern.
type Message struct {
	Link Link
	// Method names both the interface (via Method.Interface) and the
	// specific operation — its "method id".
	Method *iface.Method
	// Body holds the marshalled arguments exactly as the encoder
	// produced them. pkg/proxy's Writer zeroes the alignment padding
	// between fields; the body as a whole is not rounded up to a
	// multiple of 8.
	Body []byte
	// FDOffset is the byte offset of an embedded fd placeholder within
	// Body, or NoFD if this message carries no descriptor.
	FDOffset int
	// HasExtID reports whether ExtID is meaningful: a message that
	// arrived over (or is destined for) an Extern carries the
	// connection-local extid of its COMRelay.
	HasExtID bool
	ExtID    uint16
}

// New builds a Message addressed by link and method, with no fd and
// no external-link id, ready to have its body filled in by a
// marshaller.
func New(link Link, method *iface.Method, body []byte) *Message {
	return &Message{Link: link, Method: method, Body: body, FDOffset: NoFD}
}

// WithFD returns a copy of m carrying fd information at the given body
// offset.
func (m *Message) WithFD(offset int) *Message {
	c := *m
	c.FDOffset = offset
	return &c
}

// Reply constructs the reply Message for an original request m: link
// is mirrored, method is unchanged (replies travel on the same
// method/interface identity as the request that spawned them).
func (m *Message) Reply(body []byte) *Message {
	return New(m.Link.Reply(), m.Method, body)
}
