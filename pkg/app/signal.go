package app

import (
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
	"github.com/msharov/cwiclo-sub000/pkg/msg"
	"github.com/msharov/cwiclo-sub000/pkg/sigbridge"
)

// SignalInterface is the well-known interface async, non-fatal
// signals are converted to and broadcast on: INT, TERM,
// HUP, CHLD, PIPE, USR1, USR2, WINCH, URG, XFSZ, each a no-argument
// method named after the signal.
var SignalInterface = iface.New("cwiclo.Signal",
	iface.MethodSpec{Name: "INT"},
	iface.MethodSpec{Name: "TERM"},
	iface.MethodSpec{Name: "HUP"},
	iface.MethodSpec{Name: "CHLD"},
	iface.MethodSpec{Name: "PIPE"},
	iface.MethodSpec{Name: "USR1"},
	iface.MethodSpec{Name: "USR2"},
	iface.MethodSpec{Name: "WINCH"},
	iface.MethodSpec{Name: "URG"},
	iface.MethodSpec{Name: "XFSZ"},
)

// postSignal broadcasts the method of SignalInterface corresponding
// to s.
func (a *App) postSignal(s sigbridge.Signal) {
	method := a.signalIface.MethodByIndex(int(s))
	if method == nil {
		return
	}
	a.outgoing = append(a.outgoing, msg.New(msg.Link{Src: mrid.App, Dest: mrid.Broadcast}, method, nil))
}
