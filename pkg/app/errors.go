package app

import "errors"

// Sentinel errors fed into the App's error buffer.
var (
	ErrNoFactory       = errors.New("app: no factory registered for interface")
	ErrFactoryFailed   = errors.New("app: factory returned no Msger")
	ErrDeadDestination = errors.New("app: message addressed to a freed id")
	ErrUnhandled       = errors.New("app: unhandled error reached root")
)
