package extern

import "errors"

// ErrPeerClosed is reported to a COMRelay's error handling when the
// remote end closes the connection cleanly.
var ErrPeerClosed = errors.New("extern: peer closed connection")
