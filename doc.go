// Package nftwire constructs and parses nftables netlink messages.
//
// # Overview
//
// The package models the nftables object hierarchy (Table, Chain, Rule,
// expressions) and turns it into the binary netlink transactions the kernel
// expects, without shelling out to nft or linking against libnftnl. It is the
// message-construction layer only: opening the netlink socket, batching sends
// and correlating acknowledgements belong to a [Transport] implementation
// (see the nlsock subpackage for the real one).
//
// # Architecture
//
//	Table → Chain → Rule (+ expr fragments) → Batch → Transport → Kernel
//	Kernel responses → query parse → typed objects
//
// # Key Types
//
//   - [Table], [Chain], [Rule]: safe wrappers, each exclusively owning one
//     raw object allocated from an [Arena]
//   - [Batch]: assembles netlink messages with exact header, flag and
//     sequence-number semantics
//   - [Transport]: send/receive collaborator consumed by the query helpers
//   - [ListRules], [ListChains], [ListTables]: dump requests parsed back
//     into wrappers, all-or-nothing
//
// # Ownership
//
// Chains keep their Table reachable and Rules keep their Chain reachable;
// the ownership graph has no cycles. A wrapper's Close releases its raw
// object back to the arena exactly once. Fully constructed objects are safe
// for concurrent reads; callers must serialize mutation externally.
package nftwire
