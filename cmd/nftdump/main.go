// nftdump prints the nftables ruleset visible on this host: tables, their
// chains, and each chain's rules, queried over netlink via nftwire.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"grimm.is/nftwire"
	"grimm.is/nftwire/internal/logging"
	"grimm.is/nftwire/nlsock"
)

func main() {
	familyFlag := flag.String("family", "unspec", "address family to list (unspec, inet, ip, ip6, arp, bridge, netdev)")
	tableFlag := flag.String("table", "", "restrict output to one table")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logging.Default().SetLevel(logging.LevelDebug)
	}

	family, err := parseFamily(*familyFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nftdump: %v\n", err)
		os.Exit(2)
	}

	conn, err := nlsock.Dial()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nftdump: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := dump(conn, family, *tableFlag); err != nil {
		fmt.Fprintf(os.Stderr, "nftdump: %v\n", err)
		os.Exit(1)
	}
}

func dump(conn *nlsock.Conn, family nftwire.Family, tableName string) error {
	tables, err := nftwire.ListTables(conn, family)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	defer w.Flush()

	for _, table := range tables {
		if tableName != "" && table.Name() != tableName {
			continue
		}
		fmt.Fprintf(w, "table %s %s\n", table.Family(), table.Name())

		chains, err := nftwire.ListChains(conn, table)
		if err != nil {
			return fmt.Errorf("listing chains in %s: %w", table.Name(), err)
		}
		for _, chain := range chains {
			policy := "-"
			if p, ok := chain.Policy(); ok {
				if p == nftwire.PolicyAccept {
					policy = "accept"
				} else {
					policy = "drop"
				}
			}
			fmt.Fprintf(w, "\tchain %s\tpolicy %s\n", chain.Name(), policy)

			rules, err := nftwire.ListRules(conn, chain)
			if err != nil {
				return fmt.Errorf("listing rules in %s/%s: %w", table.Name(), chain.Name(), err)
			}
			for _, rule := range rules {
				fmt.Fprintf(w, "\t\t%s\n", rule)
			}
		}
	}
	return nil
}

func parseFamily(s string) (nftwire.Family, error) {
	switch s {
	case "unspec", "":
		return nftwire.FamilyUnspec, nil
	case "inet":
		return nftwire.FamilyInet, nil
	case "ip", "ipv4":
		return nftwire.FamilyIPv4, nil
	case "ip6", "ipv6":
		return nftwire.FamilyIPv6, nil
	case "arp":
		return nftwire.FamilyARP, nil
	case "bridge":
		return nftwire.FamilyBridge, nil
	case "netdev":
		return nftwire.FamilyNetdev, nil
	default:
		return 0, fmt.Errorf("unknown family %q", s)
	}
}
