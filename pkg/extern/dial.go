package extern

import "golang.org/x/sys/unix"

// DialUnix connects to a Unix domain stream socket at path (which may
// be an abstract-socket name: a path beginning with '@' is rewritten
// to a leading NUL per the Linux abstract namespace) and returns a
// non-blocking fd ready to hand to New.
func DialUnix(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	addr := &unix.SockaddrUnix{Name: abstractName(path)}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// ListenUnix creates a listening Unix domain stream socket at path,
// non-blocking, backlogged per the usual accept-loop convention
// ExternServer drives.
func ListenUnix(path string, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	addr := &unix.SockaddrUnix{Name: abstractName(path)}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// AcceptUnix accepts one pending connection on a listening fd created
// by ListenUnix, returning it non-blocking. unix.EAGAIN means no
// connection is pending right now.
func AcceptUnix(listenFD int) (int, error) {
	fd, _, err := unix.Accept(listenFD)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// abstractName rewrites a leading '@' to the Linux abstract-namespace
// convention (a NUL byte followed by the name, invisible in the
// filesystem).
func abstractName(path string) string {
	if len(path) > 0 && path[0] == '@' {
		return "\x00" + path[1:]
	}
	return path
}
