package iface

import "errors"

// ErrMethodNotFound is returned when a named method cannot be
// resolved against a known interface.
var ErrMethodNotFound = errors.New("iface: method not found")

// ErrInterfaceNotFound is returned when a named interface is not
// present in a Registry.
var ErrInterfaceNotFound = errors.New("iface: interface not found")
