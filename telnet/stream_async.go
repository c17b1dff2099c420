package telnet

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ReadAsync is the asynchronous twin of Read, per spec.md §4.8: it spawns
// Read onto a private single-worker executor (an errgroup of size one) and
// blocks the calling goroutine on the completion slot (g.Wait). It exists
// for callers that want the Asio-composed-operation shape of the original
// design rather than a plain blocking call; Read itself already satisfies
// the "single-threaded cooperative per stream" model on its own goroutine.
func (s *Stream) ReadAsync(ctx context.Context, p []byte) (int, error) {
	g, _ := errgroup.WithContext(ctx)
	var n int
	g.Go(func() error {
		var err error
		n, err = s.Read(p)
		return err
	})
	return n, g.Wait()
}

// WriteAsync is the asynchronous twin of Write.
func (s *Stream) WriteAsync(ctx context.Context, p []byte) (int, error) {
	g, _ := errgroup.WithContext(ctx)
	var n int
	g.Go(func() error {
		var err error
		n, err = s.Write(p)
		return err
	})
	return n, g.Wait()
}
