// Package sockname resolves a logical socket name to an actual Unix
// domain socket path (or a systemd socket-activation fd), and
// optionally advertises/discovers names over mDNS.
package sockname

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/grandcat/zeroconf"
)

// serviceType is the mDNS service type cwiclo sockets advertise under.
const serviceType = "_cwiclo._tcp"

// Resolve turns a logical socket name into a connectable path: an
// explicit override in $<NAME>_SOCKET_PATH, then
// $XDG_RUNTIME_DIR/<name>.socket, then the Linux abstract-namespace name
// "@<name>".
func Resolve(name string) string {
	envKey := strings.ToUpper(name) + "_SOCKET_PATH"
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/" + name + ".socket"
	}
	return "@" + name
}

// ListenFD returns the fd systemd socket activation handed this
// process for name, and true, if LISTEN_FDS/LISTEN_PID/LISTEN_FDNAMES
// name it; otherwise it returns
// false so the caller falls back to binding its own listener.
func ListenFD(name string) (int, bool) {
	pidEnv := os.Getenv("LISTEN_PID")
	if pidEnv == "" {
		return 0, false
	}
	pid, err := strconv.Atoi(pidEnv)
	if err != nil || pid != os.Getpid() {
		return 0, false
	}
	n, err := strconv.Atoi(os.Getenv("LISTEN_FDS"))
	if err != nil || n <= 0 {
		return 0, false
	}
	const firstListenFD = 3 // fds 0-2 are stdio; systemd passes from 3
	names := strings.Split(os.Getenv("LISTEN_FDNAMES"), ":")
	for i := 0; i < n; i++ {
		if i < len(names) && names[i] == name {
			return firstListenFD + i, true
		}
	}
	if len(names) == 1 && names[0] == "" && n == 1 {
		// No LISTEN_FDNAMES: a single anonymous fd is accepted for any name.
		return firstListenFD, true
	}
	return 0, false
}

// FilterUID walks path upward to the first filesystem component that
// actually exists and returns its owning uid: for an ordinary
// filesystem socket path that's usually the socket's own directory;
// for an abstract-namespace name (a leading '@', which names no
// filesystem object at all) it resolves against $XDG_RUNTIME_DIR, the
// directory Resolve itself would have used for a non-abstract name.
// The caller uses the result as the access-control anchor for
// connections accepted on this path.
func FilterUID(path string) (uid uint32, ok bool) {
	p := path
	if len(p) > 0 && p[0] == '@' {
		dir := os.Getenv("XDG_RUNTIME_DIR")
		if dir == "" {
			return 0, false
		}
		p = dir
	}
	for {
		info, err := os.Stat(p)
		if err == nil {
			st, ok := info.Sys().(*syscall.Stat_t)
			if !ok {
				return 0, false
			}
			return st.Uid, true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return 0, false
		}
		p = parent
	}
}

// Advertiser wraps a zeroconf mDNS registration for one socket name,
// retried with backoff on transient registration failures.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers name on the network over mDNS, pointing at port
// (0 for a pure Unix-domain-only advertisement, present for parity
// with loopback-TCP Externs). It retries registration with exponential
// backoff since mDNS registration can transiently fail right after
// network interfaces come up.
func Advertise(name string, port int) (*Advertiser, error) {
	var server *zeroconf.Server
	op := func() error {
		s, err := zeroconf.Register(name, serviceType, "local.", port, nil, nil)
		if err != nil {
			return err
		}
		server = s
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("sockname: advertising %q: %w", name, err)
	}
	return &Advertiser{server: server}, nil
}

// Close withdraws the advertisement.
func (a *Advertiser) Close() {
	if a.server != nil {
		a.server.Shutdown()
	}
}

// Browse looks up name over mDNS for up to timeout, returning the
// first matching instance's host:port, or an error if none answered.
func Browse(ctx context.Context, name string, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return "", fmt.Errorf("sockname: creating resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 4)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := resolver.Browse(cctx, serviceType, "local.", entries); err != nil {
		return "", fmt.Errorf("sockname: browsing: %w", err)
	}
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("sockname: %q not found", name)
			}
			if e.Instance == name && len(e.AddrIPv4) > 0 {
				return fmt.Sprintf("%s:%d", e.AddrIPv4[0], e.Port), nil
			}
		case <-cctx.Done():
			return "", fmt.Errorf("sockname: %q not found before timeout", name)
		}
	}
}
