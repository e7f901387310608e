package nftwire

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Family is the address family a table is scoped to. Values match the
// kernel's NFPROTO_* constants and are carried verbatim in the nfgenmsg
// header of every message.
type Family uint8

// Possible Family values.
const (
	FamilyUnspec Family = unix.NFPROTO_UNSPEC
	FamilyInet   Family = unix.NFPROTO_INET
	FamilyIPv4   Family = unix.NFPROTO_IPV4
	FamilyARP    Family = unix.NFPROTO_ARP
	FamilyNetdev Family = unix.NFPROTO_NETDEV
	FamilyBridge Family = unix.NFPROTO_BRIDGE
	FamilyIPv6   Family = unix.NFPROTO_IPV6
)

func (f Family) String() string {
	switch f {
	case FamilyUnspec:
		return "unspec"
	case FamilyInet:
		return "inet"
	case FamilyIPv4:
		return "ip"
	case FamilyARP:
		return "arp"
	case FamilyNetdev:
		return "netdev"
	case FamilyBridge:
		return "bridge"
	case FamilyIPv6:
		return "ip6"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}
