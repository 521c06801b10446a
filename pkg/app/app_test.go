package app

import (
	"testing"

	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/mrg"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
)

var recorderInterface = iface.New("app.test.Recorder", iface.MethodSpec{Name: "Ping"})
var recorderPing, _ = recorderInterface.MethodByName("Ping")

// recorder is a minimal Msger that appends its own id to a shared log
// every time it's dispatched to.
type recorder struct {
	mrg.Base
	log *[]mrid.ID
}

func (r *recorder) Dispatch(m *msg.Message) bool {
	*r.log = append(*r.log, r.MRID())
	return true
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestBroadcastSkipsUnregisteredAppSlot(t *testing.T) {
	a := newTestApp(t)
	var log []mrid.ID
	r1 := &recorder{log: &log}
	r2 := &recorder{log: &log}
	if _, err := a.RegisterSingleton(r1); err != nil {
		t.Fatalf("RegisterSingleton: %v", err)
	}
	if _, err := a.RegisterSingleton(r2); err != nil {
		t.Fatalf("RegisterSingleton: %v", err)
	}

	m := msg.New(msg.Link{Src: mrid.App, Dest: mrid.Broadcast}, recorderPing, nil)
	a.dispatchBroadcast(m)

	// mrid.App's own slot 0 is always "live" in the id table but never
	// carries a registered Msger; a broadcast must not treat that as a
	// dead destination.
	if len(a.Errors()) != 0 {
		t.Fatalf("expected no errors from broadcasting over the App's own slot, got %v", a.Errors())
	}
	if len(log) != 2 {
		t.Fatalf("expected both registered Msgers dispatched, got %v", log)
	}
}

func TestBroadcastDeliversInAscendingIDOrder(t *testing.T) {
	a := newTestApp(t)
	var log []mrid.ID
	var ids []mrid.ID
	for i := 0; i < 4; i++ {
		r := &recorder{log: &log}
		id, err := a.RegisterSingleton(r)
		if err != nil {
			t.Fatalf("RegisterSingleton: %v", err)
		}
		ids = append(ids, id)
	}

	m := msg.New(msg.Link{Src: mrid.App, Dest: mrid.Broadcast}, recorderPing, nil)
	a.dispatchBroadcast(m)

	if len(log) != len(ids) {
		t.Fatalf("expected %d deliveries, got %d", len(ids), len(log))
	}
	for i, id := range ids {
		if log[i] != id {
			t.Errorf("delivery %d: expected id %d, got %d", i, id, log[i])
		}
	}
}

func TestSwapQueuesRotatesOutgoingIntoIncoming(t *testing.T) {
	a := newTestApp(t)
	m1 := msg.New(msg.Link{Src: mrid.App, Dest: mrid.App}, recorderPing, nil)
	m2 := msg.New(msg.Link{Src: mrid.App, Dest: mrid.App}, recorderPing, nil)
	a.outgoing = append(a.outgoing, m1, m2)

	a.swapQueues()

	if len(a.incoming) != 2 || a.incoming[0] != m1 || a.incoming[1] != m2 {
		t.Fatalf("expected outgoing to rotate into incoming in order, got %v", a.incoming)
	}
	if len(a.outgoing) != 0 {
		t.Fatalf("expected outgoing to start the new iteration empty, got %d", len(a.outgoing))
	}
}

func TestDispatchIncomingDeliversInSendOrder(t *testing.T) {
	a := newTestApp(t)
	var log []mrid.ID
	r1 := &recorder{log: &log}
	r2 := &recorder{log: &log}
	id1, _ := a.RegisterSingleton(r1)
	id2, _ := a.RegisterSingleton(r2)

	a.incoming = []*msg.Message{
		msg.New(msg.Link{Src: mrid.App, Dest: id2}, recorderPing, nil),
		msg.New(msg.Link{Src: mrid.App, Dest: id1}, recorderPing, nil),
	}
	a.dispatchIncoming()

	if len(log) != 2 || log[0] != id2 || log[1] != id1 {
		t.Fatalf("expected delivery in send order [%d %d], got %v", id2, id1, log)
	}
}

func TestReapUnusedDestroysOnlyWhenNothingPending(t *testing.T) {
	a := newTestApp(t)
	a.RegisterFactory(recorderInterface, func(a *App, link msg.Link) (mrg.Msger, error) {
		var log []mrid.ID
		return &recorder{log: &log}, nil
	})
	id, err := a.CreateMsger(mrid.App, recorderInterface)
	if err != nil {
		t.Fatalf("CreateMsger: %v", err)
	}
	m := a.msgers[id]
	m.SetFlags(m.Flags() | mrg.Unused)

	// Something still addressed to id this iteration: must survive.
	a.outgoing = []*msg.Message{msg.New(msg.Link{Src: mrid.App, Dest: id}, recorderPing, nil)}
	a.reapUnused()
	if !a.IsValid(id) {
		t.Fatalf("expected Msger with pending outgoing traffic to survive reaping")
	}

	// Nothing pending now: must be destroyed.
	a.outgoing = nil
	a.reapUnused()
	if a.IsValid(id) {
		t.Fatalf("expected unused Msger with nothing pending to be reaped")
	}
}

func TestReapUnusedNeverDestroysStaticMsgers(t *testing.T) {
	a := newTestApp(t)
	var log []mrid.ID
	r := &recorder{log: &log}
	id, err := a.RegisterSingleton(r)
	if err != nil {
		t.Fatalf("RegisterSingleton: %v", err)
	}
	r.SetFlags(r.Flags() | mrg.Unused)

	a.reapUnused()
	if !a.IsValid(id) {
		t.Fatalf("expected a Static singleton to survive reaping even when flagged Unused")
	}
}

func TestForwardErrorWalksCreatorChainToRoot(t *testing.T) {
	a := newTestApp(t)
	a.AddError(errTest)
	a.ForwardError(mrid.App, mrid.App)
	if !a.quitting {
		t.Fatalf("expected an unhandled error reaching root to quit the App")
	}
	if a.ExitCode() != 1 {
		t.Fatalf("expected exit code 1 on unhandled error, got %d", a.ExitCode())
	}
}

var errTest = &testError{"app_test: boom"}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }
