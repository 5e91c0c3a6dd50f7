package main

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joshuafuller/linkbeacon/querier"
)

var (
	queryTimeout    time.Duration
	queryIPv6       bool
	queryInterfaces []string
)

var queryCmd = &cobra.Command{
	Use:   "query <name> [type]",
	Short: "Send one mDNS query and print the records received",
	Long: `Send one multicast question and print every record received before the
timeout. The type defaults to PTR; A, AAAA, SRV, TXT and ANY are also
accepted.`,
	Example: `  # List the service types on the link
  beacond query _services._dns-sd._udp.local

  # Resolve a host
  beacond query dev.local A`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().DurationVarP(&queryTimeout, "timeout", "t", querier.DefaultTimeout, "how long to collect responses")
	queryCmd.Flags().BoolVar(&queryIPv6, "ipv6", false, "also query ff02::fb")
	queryCmd.Flags().StringSliceVarP(&queryInterfaces, "interface", "i", nil, "interfaces to query on (default all)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	rtype := querier.RecordTypePTR
	if len(args) == 2 {
		t, ok := querier.ParseRecordType(strings.ToUpper(args[1]))
		if !ok {
			return fmt.Errorf("unsupported record type %q", args[1])
		}
		rtype = t
	}

	q, err := querier.New(
		querier.WithTimeout(queryTimeout),
		querier.WithIPv6(queryIPv6),
		querier.WithInterfaces(queryInterfaces...),
		querier.WithLogger(log.NewEntry(log.StandardLogger())),
	)
	if err != nil {
		return err
	}
	defer q.Close()

	resp, err := q.Query(cmd.Context(), args[0], rtype)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(resp.Records) == 0 {
		fmt.Fprintln(out, "no records received")
		return nil
	}
	for _, rr := range resp.Records {
		fmt.Fprintf(out, "%-40s %-5d %-4s %s\n", rr.Name, rr.TTL, rr.Type, formatData(rr))
	}
	return nil
}

func formatData(rr querier.ResourceRecord) string {
	switch rr.Type {
	case querier.RecordTypeA:
		return rr.AsA().String()
	case querier.RecordTypeAAAA:
		return rr.AsAAAA().String()
	case querier.RecordTypePTR:
		return rr.AsPTR()
	case querier.RecordTypeSRV:
		srv := rr.AsSRV()
		return fmt.Sprintf("%d %d %d %s", srv.Priority, srv.Weight, srv.Port, srv.Target)
	case querier.RecordTypeTXT:
		return fmt.Sprintf("%q", rr.AsTXT())
	}
	return ""
}
