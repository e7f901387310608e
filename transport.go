package nftwire

import "github.com/mdlayher/netlink"

// Transport is the socket collaborator this package sends through and
// receives from. The real implementation lives in the nlsock subpackage;
// tests substitute mocks.
//
// The transport owns the monotonic sequence counter used to correlate
// kernel acknowledgements with requests: this package only consumes values
// from Seq, never generates its own.
type Transport interface {
	// Send delivers the messages to the kernel as one transmission.
	Send(msgs []netlink.Message) error
	// Receive returns the next batch of response messages. The stream for
	// one request is finite and not restartable.
	Receive() ([]netlink.Message, error)
	// Seq returns the next sequence number.
	Seq() uint32
}
