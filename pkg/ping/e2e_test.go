package ping

import (
	"testing"

	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
)

// TestIntraProcessRoundTrip runs a Pinger and a factory-constructed
// Ponger exchanging messages purely through the App's queues, no
// Extern involved.
func TestIntraProcessRoundTrip(t *testing.T) {
	a, err := app.New(app.Config{})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	a.RegisterFactory(Interface, Factory)

	pinger := NewPinger(a, mrid.New, 5)
	if _, err := a.RegisterSingleton(pinger); err != nil {
		t.Fatalf("RegisterSingleton: %v", err)
	}
	if err := pinger.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	code := a.Run()
	if code != 0 {
		t.Fatalf("Run() = %d, want 0", code)
	}
}
