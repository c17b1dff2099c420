package telnet

import (
	"syscall"

	"github.com/cockroachdb/errors"
)

// oobWrite sends a single byte flagged MSG_OOB, the transport-level urgent
// pointer the Synch discipline of spec.md §4.7 relies on. It only works on
// a syscall.Conn (a real *net.TCPConn); any other transport returns an
// error so the caller falls back to an in-band write.
func (s *Stream) oobWrite(b byte) error {
	sc, ok := s.conn.(syscall.Conn)
	if !ok {
		return errors.New("transport is not a syscall.Conn")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var werr error
	err = raw.Write(func(fd uintptr) bool {
		werr = syscall.Sendto(int(fd), []byte{b}, syscall.MSG_OOB, nil)
		return true
	})
	if err != nil {
		return err
	}
	return werr
}
