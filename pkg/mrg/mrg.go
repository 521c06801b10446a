// Package mrg defines the Msger interface and its flag set:
// a stable mrid, a creator mrid, a dispatch operation, an
// error-observer operation, and a destruction-observer operation.
package mrg

import (
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
)

// Flag is the minimal flag set a Msger needs: Unused and Static.
type Flag uint8

const (
	// Unused marks a Msger for reaping once no messages remain
	// addressed to it at the end of the current loop iteration.
	Unused Flag = 1 << iota
	// Static marks a singleton Msger that the runtime never
	// heap-frees.
	Static
)

// Has reports whether f includes bit.
func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Msger is the runtime contract every actor implements. App is the
// only code that calls these methods; all other interaction happens
// by sending Messages through generated proxies.
type Msger interface {
	// MRID returns this Msger's stable identifier.
	MRID() mrid.ID
	// SetMRID is called once by the App immediately after allocation,
	// before the Msger receives its first message.
	SetMRID(id mrid.ID)

	// Flags returns the current flag set.
	Flags() Flag
	// SetFlags replaces the flag set (used to mark/unmark Unused).
	SetFlags(Flag)

	// Dispatch decodes m by its method id and invokes the matching
	// handler. It returns false when the method does not belong to any
	// interface this Msger implements ("not accepted" — this is logged
	// by the App, not an error).
	Dispatch(m *msg.Message) bool

	// OnError is the error-observer operation: the App's forward_error
	// invokes this on a Msger on the creator-chain walk. Returning true
	// means "handled" and clears the App's error buffer.
	OnError(origin mrid.ID, errText string) bool

	// OnDestroy is the destruction-observer operation: called by the
	// App on a Msger immediately before it is reaped. The App does not
	// call it on that Msger's creator.
	OnDestroy(id mrid.ID)
}

// Base provides the bookkeeping every concrete Msger needs (mrid,
// creator, flags) so implementations only have to embed it and
// implement Dispatch, rather than repeating the same boilerplate
// fields on every type.
type Base struct {
	id      mrid.ID
	creator mrid.ID
	flags   Flag
}

// NewBase returns a Base created by creator; the App assigns the
// final mrid via SetMRID once allocation completes.
func NewBase(creator mrid.ID) Base {
	return Base{creator: creator}
}

func (b *Base) MRID() mrid.ID       { return b.id }
func (b *Base) SetMRID(id mrid.ID)  { b.id = id }
func (b *Base) Creator() mrid.ID    { return b.creator }
func (b *Base) Flags() Flag         { return b.flags }
func (b *Base) SetFlags(f Flag)     { b.flags = f }
func (b *Base) MarkUnused()         { b.flags |= Unused }
func (b *Base) MarkStatic()         { b.flags |= Static }

// OnError is the default error observer: unhandled, so the App
// continues walking the creator chain.
func (b *Base) OnError(mrid.ID, string) bool { return false }

// OnDestroy is the default destruction observer: a no-op.
func (b *Base) OnDestroy(mrid.ID) {}
