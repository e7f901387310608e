// Package nlsock provides the real netlink transport for nftwire, speaking
// NETLINK_NETFILTER through mdlayher/netlink. It owns the monotonic
// sequence counter and the acknowledgement handling that the core
// deliberately leaves to the transport.
package nlsock

import (
	"fmt"
	"sync/atomic"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/nftwire"
)

// Conn is a netlink connection to the nftables subsystem implementing
// nftwire.Transport.
type Conn struct {
	c       *netlink.Conn
	seq     atomic.Uint32
	metrics *Metrics
	netns   int
}

// Option configures a Conn.
type Option func(*Conn)

// WithNetNS makes Dial open the socket inside the network namespace
// referenced by the file descriptor.
func WithNetNS(fd int) Option {
	return func(c *Conn) { c.netns = fd }
}

// WithMetrics attaches prometheus counters to the connection.
func WithMetrics(m *Metrics) Option {
	return func(c *Conn) { c.metrics = m }
}

// Dial opens a NETLINK_NETFILTER socket.
func Dial(opts ...Option) (*Conn, error) {
	c := newConn(opts...)
	nc, err := netlink.Dial(unix.NETLINK_NETFILTER, &netlink.Config{NetNS: c.netns})
	if err != nil {
		return nil, fmt.Errorf("dialing netfilter socket: %w", err)
	}
	c.c = nc
	return c, nil
}

// New wraps an existing netlink connection, typically one produced by
// nltest.Dial in tests.
func New(nc *netlink.Conn, opts ...Option) *Conn {
	c := newConn(opts...)
	c.c = nc
	return c
}

func newConn(opts ...Option) *Conn {
	c := &Conn{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seq returns the next sequence number. Values are monotonic for the
// lifetime of the connection.
func (c *Conn) Seq() uint32 {
	return c.seq.Add(1)
}

// Send implements nftwire.Transport.
func (c *Conn) Send(msgs []netlink.Message) error {
	if _, err := c.c.SendMessages(msgs); err != nil {
		c.metrics.countSendError()
		return fmt.Errorf("sending %d messages: %w", len(msgs), err)
	}
	c.metrics.countSent(len(msgs))
	return nil
}

// Receive implements nftwire.Transport.
func (c *Conn) Receive() ([]netlink.Message, error) {
	msgs, err := c.c.Receive()
	if err != nil {
		c.metrics.countRecvError()
		return nil, err
	}
	return msgs, nil
}

// SendBatch transmits the batch and collects one acknowledgement per
// message that requested one. Kernel-reported errors surface from Receive
// as netlink.OpError values.
func (c *Conn) SendBatch(batch *nftwire.Batch) error {
	msgs := batch.Messages()
	if err := c.Send(msgs); err != nil {
		return err
	}
	for _, m := range msgs {
		if m.Header.Flags&netlink.Acknowledge == 0 {
			continue
		}
		if _, err := c.c.Receive(); err != nil {
			c.metrics.countRecvError()
			return fmt.Errorf("batch ack (seq %d): %w", m.Header.Sequence, err)
		}
	}
	c.metrics.countBatch()
	return nil
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.c.Close()
}
