package extern

import (
	"net"

	"golang.org/x/sys/unix"
)

// DialTCP connects to a loopback TCP address and returns a non-blocking
// raw fd suitable for New, the same shape DialUnix returns: net.Dial
// handles DNS/connect retries, then the raw fd is extracted via
// (*net.TCPConn).File() for the App's poll loop to own from here on.
func DialTCP(addr string) (int, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return -1, err
	}
	return detachFD(conn.(*net.TCPConn))
}

// ListenTCPAccept accepts one pending connection on l and returns its
// raw, non-blocking fd.
func ListenTCPAccept(l *net.TCPListener) (int, error) {
	conn, err := l.Accept()
	if err != nil {
		return -1, err
	}
	return detachFD(conn.(*net.TCPConn))
}

// detachFD duplicates conn's underlying fd via File() (which also
// forces it back to blocking mode), duplicates that once more with
// unix.Dup and closes the *os.File, so the returned fd is owned
// outright by the extern package and no os.File finalizer can close
// it out from under us.
func detachFD(conn *net.TCPConn) (int, error) {
	f, err := conn.File()
	if err != nil {
		return -1, err
	}
	fd, err := unix.Dup(int(f.Fd()))
	f.Close()
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	conn.Close()
	return fd, nil
}
