// Package syncutil provides small concurrency helpers shared by the
// backend's long-lived schedulers (price ingestion, expiration, event
// polling), modeled on the Closer a price-feeder's oracle
// loop (Oracle.Start/Stop) relies on.
package syncutil

// Closer coordinates shutdown of a background task: the owner calls
// Close() once, and the task signals it has actually stopped by closing
// the channel returned from Done().
type Closer struct {
	closeCh chan struct{}
	doneCh  chan struct{}
}

// NewCloser returns a ready-to-use Closer.
func NewCloser() *Closer {
	return &Closer{
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Close signals the task to stop. Safe to call multiple times.
func (c *Closer) Close() {
	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}
}

// Closed returns a channel that is closed once Close has been called.
func (c *Closer) Closed() <-chan struct{} {
	return c.closeCh
}

// Finished marks the task as fully stopped; Done() unblocks after this.
func (c *Closer) Finished() {
	select {
	case <-c.doneCh:
	default:
		close(c.doneCh)
	}
}

// Done blocks until Finished has been called.
func (c *Closer) Done() <-chan struct{} {
	return c.doneCh
}
