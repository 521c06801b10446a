// Command pingsrv exports the Ping interface over a Unix domain
// socket for cmd/ping to connect to, mirroring
// test/ipcomsrv.cc.
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
	socketName := flag.String("s", "ping", "socket name to export the Ping interface under")
	flag.Parse()
	_ = debug

	a, err := app.New(app.Config{Signals: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, "pingsrv:", err)
		os.Exit(1)
	}
	a.RegisterFactory(ping.Interface, ping.Factory)

	registry := iface.NewRegistry(ping.Interface)
	path := sockname.Resolve(*socketName)
	srv, err := externserver.New(a, path, externserver.Config{Registry: registry})
	if err != nil {
		fmt.Fprintln(os.Stderr, "pingsrv:", err)
		os.Exit(1)
	}
	if _, err := srv.Register(); err != nil {
		fmt.Fprintln(os.Stderr, "pingsrv:", err)
		os.Exit(1)
	}

	os.Exit(a.Run())
}
