package xcom

import (
	"testing"

	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/extern"
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/mrg"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
	"golang.org/x/sys/unix"
)

var echoInterface = iface.New("xcom.test.Echo", iface.MethodSpec{Name: "Say", Signature: "u"})
var sayMethod, _ = echoInterface.MethodByName("Say")

type echoMsger struct {
	mrg.Base
	received []uint32
}

func (e *echoMsger) Dispatch(m *msg.Message) bool {
	e.received = append(e.received, decodeU32(m.Body))
	return true
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeU32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

type testPair struct {
	clientApp, serverApp       *app.App
	clientExt, serverExt       *extern.Extern
	clientRelay, serverRelay   *COMRelay
}

func newTestPair(t *testing.T) *testPair {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}

	clientApp, err := app.New(app.Config{})
	if err != nil {
		t.Fatalf("app.New(client): %v", err)
	}
	serverApp, err := app.New(app.Config{})
	if err != nil {
		t.Fatalf("app.New(server): %v", err)
	}
	serverApp.RegisterFactory(echoInterface, func(a *app.App, link msg.Link) (mrg.Msger, error) {
		return &echoMsger{}, nil
	})
	registry := iface.NewRegistry(echoInterface)

	clientExt, err := extern.New(clientApp, fds[0], false, nil, nil)
	if err != nil {
		t.Fatalf("extern.New(client): %v", err)
	}
	if _, err := clientExt.Register(); err != nil {
		t.Fatalf("clientExt.Register: %v", err)
	}
	clientRelay := New(clientApp, clientExt, registry, nil)
	if _, err := clientRelay.Register(); err != nil {
		t.Fatalf("clientRelay.Register: %v", err)
	}

	serverExt, err := extern.New(serverApp, fds[1], true, nil, nil)
	if err != nil {
		t.Fatalf("extern.New(server): %v", err)
	}
	if _, err := serverExt.Register(); err != nil {
		t.Fatalf("serverExt.Register: %v", err)
	}
	serverRelay := New(serverApp, serverExt, registry, nil)
	if _, err := serverRelay.Register(); err != nil {
		t.Fatalf("serverRelay.Register: %v", err)
	}

	return &testPair{clientApp, serverApp, clientExt, serverExt, clientRelay, serverRelay}
}

// pump flushes writer's queued frames and has reader decode them.
func pump(writer, reader *extern.Extern) {
	writer.FireTimer(0)
	reader.FireTimer(0)
}

func TestHandshakeConnectsAndReplaysQueuedDispatch(t *testing.T) {
	p := newTestPair(t)

	sayLink := msg.Link{Src: p.clientRelay.MRID(), Dest: p.clientRelay.MRID()}
	queued := msg.New(sayLink, sayMethod, encodeU32(42))
	if accepted := p.clientRelay.Dispatch(queued); !accepted {
		t.Fatalf("expected Dispatch to accept a pre-connect message")
	}
	if p.clientRelay.Connected() {
		t.Fatalf("expected client relay not yet connected")
	}
	if len(p.clientRelay.pending) != 1 {
		t.Fatalf("expected the message to be queued pending the handshake, got %d queued", len(p.clientRelay.pending))
	}

	p.clientRelay.Handshake()
	pump(p.clientExt, p.serverExt)
	if !p.serverRelay.Connected() {
		t.Fatalf("expected server relay to connect on receiving the client's export list")
	}
	if got := p.serverRelay.Exported(); len(got) != 1 || got[0] != echoInterface.Name {
		t.Errorf("expected server's exported intersection to be [%s], got %v", echoInterface.Name, got)
	}

	p.serverRelay.Handshake()
	pump(p.serverExt, p.clientExt)
	if !p.clientRelay.Connected() {
		t.Fatalf("expected client relay to connect on receiving the server's export list")
	}
	if len(p.clientRelay.pending) != 0 {
		t.Fatalf("expected the queued message to have been replayed, got %d still queued", len(p.clientRelay.pending))
	}

	pump(p.clientExt, p.serverExt)
	if len(p.serverApp.Errors()) != 0 {
		t.Fatalf("expected no errors decoding the replayed message, got %v", p.serverApp.Errors())
	}
	pending := p.serverApp.PendingOutgoing()
	if len(pending) != 1 {
		t.Fatalf("expected 1 message queued to the newly created echo Msger, got %d", len(pending))
	}
	if decodeU32(pending[0].Body) != 42 {
		t.Errorf("expected replayed body to decode to 42, got %d", decodeU32(pending[0].Body))
	}
}

func TestHandleFrameRejectsBodyNotMatchingSignature(t *testing.T) {
	p := newTestPair(t)
	p.clientRelay.Handshake()
	pump(p.clientExt, p.serverExt)
	p.serverRelay.Handshake()
	pump(p.serverExt, p.clientExt)

	// Address an extid the server hasn't seen yet, carrying a 1-byte
	// body against Say's "u" (4-byte) signature.
	p.clientExt.SendFrame(p.clientExt.AllocExtID(), echoInterface.Name, sayMethod.Name, []byte{1}, -1)
	pump(p.clientExt, p.serverExt)

	if len(p.serverApp.Errors()) == 0 {
		t.Fatalf("expected a signature mismatch to be reported")
	}
	if len(p.serverApp.PendingOutgoing()) != 0 {
		t.Fatalf("expected the malformed frame to never reach Requeue")
	}
}

func TestHandleFrameRejectsMismatchedFilterUID(t *testing.T) {
	p := newTestPair(t)
	p.serverRelay.SetFilterUID(^uint32(0)) // no real uid is this value

	p.clientRelay.Handshake()
	pump(p.clientExt, p.serverExt)

	// Export is on the allowedBeforeAuth whitelist, so the handshake
	// itself must still have gone through despite the uid mismatch...
	if !p.serverRelay.Connected() {
		t.Fatalf("expected Export to still be accepted pre-connect regardless of filter uid")
	}
	// ...but an ordinary application method from the same, now
	// filter-uid-mismatched peer must be rejected.
	p.clientExt.SendFrame(p.clientExt.AllocExtID(), echoInterface.Name, sayMethod.Name, encodeU32(1), -1)
	pump(p.clientExt, p.serverExt)

	if len(p.serverApp.Errors()) == 0 {
		t.Fatalf("expected a filter uid mismatch to be reported")
	}
	if len(p.serverApp.PendingOutgoing()) != 0 {
		t.Fatalf("expected the rejected frame to never reach Requeue")
	}
}
