package nftwire

import (
	"errors"
	"fmt"

	"github.com/mdlayher/netlink"
)

// ErrAllocation is returned when an Arena cannot produce a raw object.
// It is fatal to the operation in progress and is never retried internally;
// callers may retry the whole construction.
var ErrAllocation = errors.New("nftwire: raw object allocation failed")

// ErrClosed is returned when an operation touches a wrapper after Close.
var ErrClosed = errors.New("nftwire: object already closed")

// ParseError reports a kernel response message that could not be decoded.
// A single ParseError aborts the entire list operation it occurred in.
type ParseError struct {
	// Type is the netlink header type of the offending message.
	Type netlink.HeaderType
	// Err is the underlying decode failure.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("nftwire: parsing netlink message (type %#04x): %v", uint16(e.Type), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
