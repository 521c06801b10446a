// Package iface implements the compile-time interface/method registry:
// a named, ordered list of methods, each with a stable position and a
// type signature, addressable by pointer within a process and by name
// across the wire.
package iface

// Method describes one entry in an Interface: its position, name, and
// body signature.
type Method struct {
	// Interface is a back-pointer to the containing interface, giving
	// O(1) recovery of the interface from any method.
	Interface *Interface
	Name      string
	Signature string
	// Index is the method's stable position within its interface.
	Index int
	// AllowedBeforeAuth is copied from MethodSpec. pkg/xcom's
	// pre-authentication whitelist goes by COM control method name
	// (Export, Delete, Error, Hello) and does not read this field.
	AllowedBeforeAuth bool
}

// Interface is a named, ordered list of methods. Its identity within
// a process is the address of the Interface value itself
// (pointer-equality); across the wire, identity is by Name.
type Interface struct {
	Name    string
	Methods []*Method
}

// New constructs an Interface from an ordered list of (name,
// signature) pairs, wiring each Method's back-pointer and index.
// Callers build one Interface value per interface and keep pointers
// to its Methods as package-level vars.
func New(name string, methods ...MethodSpec) *Interface {
	in := &Interface{Name: name, Methods: make([]*Method, len(methods))}
	for i, m := range methods {
		in.Methods[i] = &Method{
			Interface:         in,
			Name:              m.Name,
			Signature:         m.Signature,
			Index:             i,
			AllowedBeforeAuth: m.AllowedBeforeAuth,
		}
	}
	return in
}

// MethodSpec is the literal description passed to New for one method.
type MethodSpec struct {
	Name              string
	Signature         string
	AllowedBeforeAuth bool
}

// MethodByName performs a linear lookup of a method by name within a
// known interface.
func (in *Interface) MethodByName(name string) (*Method, bool) {
	for _, m := range in.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// MethodByIndex returns the method at position i, or nil if out of
// range.
func (in *Interface) MethodByIndex(i int) *Method {
	if i < 0 || i >= len(in.Methods) {
		return nil
	}
	return in.Methods[i]
}

// Registry is "an application-provided list of imported/exported
// interface pointers" over which interface-by-name lookup
// is linear.
type Registry struct {
	interfaces []*Interface
}

// NewRegistry creates a registry over the given interfaces.
func NewRegistry(interfaces ...*Interface) *Registry {
	return &Registry{interfaces: append([]*Interface(nil), interfaces...)}
}

// Add registers an additional interface.
func (r *Registry) Add(in *Interface) {
	r.interfaces = append(r.interfaces, in)
}

// ByName performs a linear lookup of an interface by name.
func (r *Registry) ByName(name string) (*Interface, bool) {
	for _, in := range r.interfaces {
		if in.Name == name {
			return in, true
		}
	}
	return nil, false
}

// All returns every registered interface, in registration order.
func (r *Registry) All() []*Interface {
	return r.interfaces
}
