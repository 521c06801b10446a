// Command ping runs the client half of the ping/pong round trip (spec
// §8 scenarios 1 and 2). With no arguments it pings an in-process
// Ponger; with -s SOCKETNAME it connects to a pingsrv over a Unix
// domain socket instead, exercising the full Extern/COMRelay path.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/extern"
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/mrid"
	"github.com/msharov/cwiclo-sub000/pkg/ping"
	"github.com/msharov/cwiclo-sub000/pkg/sockname"
	"github.com/msharov/cwiclo-sub000/pkg/xcom"
)

func main() {
	debug := flag.Bool("d", false, "enable debug tracing")
	socketName := flag.String("s", "", "connect to pingsrv over this socket name instead of pinging in-process")
	limit := flag.Uint("n", 5, "number of round trips before quitting")
	flag.Parse()

	a, err := app.New(app.Config{Signals: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ping:", err)
		os.Exit(1)
	}
	_ = debug // wired into applog verbosity once a leveled factory override lands

	var dest mrid.ID = mrid.New
	if *socketName == "" {
		a.RegisterFactory(ping.Interface, ping.Factory)
	} else {
		path := sockname.Resolve(*socketName)
		fd, err := extern.DialUnix(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ping: connecting to", path, ":", err)
			os.Exit(1)
		}
		ext, err := extern.New(a, fd, false, nil, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ping:", err)
			os.Exit(1)
		}
		if _, err := ext.Register(); err != nil {
			fmt.Fprintln(os.Stderr, "ping:", err)
			os.Exit(1)
		}
		registry := iface.NewRegistry(ping.Interface)
		relay := xcom.New(a, ext, registry, nil)
		relayID, err := relay.Register()
		if err != nil {
			fmt.Fprintln(os.Stderr, "ping:", err)
			os.Exit(1)
		}
		ext.Handshake()
		relay.Handshake()
		dest = relayID
	}

	pinger := ping.NewPinger(a, dest, uint32(*limit))
	if _, err := a.RegisterSingleton(pinger); err != nil {
		fmt.Fprintln(os.Stderr, "ping:", err)
		os.Exit(1)
	}
	if err := pinger.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "ping:", err)
		os.Exit(1)
	}

	os.Exit(a.Run())
}
