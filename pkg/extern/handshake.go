package extern

import "github.com/google/uuid"

// handshakeMethod is the fixed COM control method both sides send
// immediately after connecting, carrying a random instance nonce so a
// peer can tell two connections from the same socket name apart after
// a reconnect.
const handshakeMethod = "Hello"

// Handshake sends this side's instance nonce on ExtIDCOM. Either side
// may send first; there is no required ordering.
func (e *Extern) Handshake() {
	nonce := uuid.New()
	e.SendFrame(ExtIDCOM, "cwiclo.COM", handshakeMethod, nonce[:], -1)
}
