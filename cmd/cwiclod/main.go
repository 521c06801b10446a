// Command cwiclod is a minimal long-running host process: it starts
// the App scheduler, exports the Ping interface over a Unix domain
// socket, optionally advertises that socket over mDNS, and runs the
// App loop. Signals such as SIGINT and SIGTERM reach the loop only as
// broadcast Signal messages, and nothing in this command quits the
// App on them.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/msharov/cwiclo-sub000/pkg/app"
	"github.com/msharov/cwiclo-sub000/pkg/externserver"
	"github.com/msharov/cwiclo-sub000/pkg/iface"
	"github.com/msharov/cwiclo-sub000/pkg/ping"
	"github.com/msharov/cwiclo-sub000/pkg/sockname"
)

func main() {
	debug := flag.Bool("d", false, "enable debug tracing")
	socketName := flag.String("s", "cwiclod", "socket name to export interfaces under")
	advertise := flag.Bool("mdns", false, "advertise the socket name over mDNS")
	flag.Parse()
	_ = debug

	a, err := app.New(app.Config{Signals: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, "cwiclod:", err)
		os.Exit(1)
	}
	a.RegisterFactory(ping.Interface, ping.Factory)

	registry := iface.NewRegistry(ping.Interface)
	path := sockname.Resolve(*socketName)
	srv, err := externserver.New(a, path, externserver.Config{Registry: registry})
	if err != nil {
		fmt.Fprintln(os.Stderr, "cwiclod:", err)
		os.Exit(1)
	}
	if _, err := srv.Register(); err != nil {
		fmt.Fprintln(os.Stderr, "cwiclod:", err)
		os.Exit(1)
	}

	if *advertise {
		adv, err := sockname.Advertise(*socketName, 0)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cwiclod: mdns:", err)
		} else {
			defer adv.Close()
		}
	}

	os.Exit(a.Run())
}
