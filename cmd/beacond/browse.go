package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/spf13/cobra"
)

var (
	browseTimeout time.Duration
	browseDomain  string
)

var browseCmd = &cobra.Command{
	Use:   "browse <service>",
	Short: "Browse for service instances with an independent DNS-SD client",
	Long: `Browse for instances of a service type, e.g. _http._tcp, and print every
instance resolved before the timeout.

The browser is a separate DNS-SD implementation, so it can be pointed at a
running beacond to check what other hosts on the link see.`,
	Example: `  beacond browse _http._tcp
  beacond browse _ipp._tcp --timeout 10s`,
	Args: cobra.ExactArgs(1),
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().DurationVarP(&browseTimeout, "timeout", "t", 3*time.Second, "how long to browse")
	browseCmd.Flags().StringVar(&browseDomain, "domain", "local.", "browse domain")
}

// browseService strips the domain so both "_http._tcp" and
// "_http._tcp.local." are accepted.
func browseService(arg, domain string) string {
	svc := strings.TrimSuffix(arg, ".")
	return strings.TrimSuffix(svc, "."+strings.TrimSuffix(domain, "."))
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), browseTimeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var wg sync.WaitGroup
	wg.Add(1)
	found := 0
	go func() {
		defer wg.Done()
		for entry := range entries {
			found++
			printEntry(cmd, entry)
		}
	}()

	if err := resolver.Browse(ctx, browseService(args[0], browseDomain), browseDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// the resolver closes entries once it has shut down
	wg.Wait()

	if found == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no instances found")
	}
	return nil
}

func printEntry(cmd *cobra.Command, entry *zeroconf.ServiceEntry) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", entry.Instance)
	fmt.Fprintf(out, "  host: %s port: %d ttl: %d\n", entry.HostName, entry.Port, entry.TTL)
	for _, ip := range entry.AddrIPv4 {
		fmt.Fprintf(out, "  addr: %s\n", ip)
	}
	for _, ip := range entry.AddrIPv6 {
		fmt.Fprintf(out, "  addr: %s\n", ip)
	}
	for _, txt := range entry.Text {
		fmt.Fprintf(out, "  txt:  %s\n", txt)
	}
}
