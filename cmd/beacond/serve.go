package main

import (
	"context"
	goerrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuafuller/linkbeacon/internal/config"
	"github.com/joshuafuller/linkbeacon/internal/hostaddr"
	"github.com/joshuafuller/linkbeacon/internal/linkstate"
	"github.com/joshuafuller/linkbeacon/internal/metrics"
	"github.com/joshuafuller/linkbeacon/internal/records"
	"github.com/joshuafuller/linkbeacon/internal/transport"
	"github.com/joshuafuller/linkbeacon/responder"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the responder",
	Long: `Run the responder until SIGINT or SIGTERM.

Settings come from built-in defaults, then the YAML file given with --config,
then any flag set on the command line. Services can only be declared in the
file. On shutdown every service is withdrawn with goodbye packets before the
sockets are closed.`,
	Example: `  # Publish the services in a config file
  beacond serve --config /etc/beacond.yml

  # Override the station interface and expose metrics
  beacond serve --config beacond.yml --station-interface wlan1 --metrics-addr :9153`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	config.RegisterFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel, cfg.LogJSON); err != nil {
		return err
	}
	entry := log.NewEntry(log.StandardLogger())

	services, err := cfg.Records()
	if err != nil {
		return err
	}
	names := cfg.InterfaceNames()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, err := transport.Open(ctx, entry.WithField("component", "transport"), transport.Config{
		Interfaces: interfaceList(names),
		IPv6:       cfg.IPv6,
	}, 0)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	watcher := linkstate.NewWatcher(entry.WithField("component", "linkstate"), names,
		linkstate.WithPollInterval(cfg.LinkPollInterval))

	// The responder outlives the signal context so goodbyes can still be
	// sent after SIGTERM.
	resp, err := responder.New(context.Background(),
		responder.WithTransport(tr),
		responder.WithAddressSource(hostaddr.NewSystem(entry.WithField("component", "hostaddr"), names)),
		responder.WithLogger(entry),
		responder.WithMetrics(metrics.New(reg)),
		responder.WithCapacity(cfg.Capacity),
		responder.WithIPv6(cfg.IPv6),
		responder.WithMaxIPv6Addresses(cfg.MaxIPv6Addresses),
		responder.WithMaxMessageSize(cfg.MaxMessageSize),
		responder.WithTickInterval(cfg.TickInterval),
		responder.WithPaceInterval(cfg.PaceInterval),
		responder.WithLinkEvents(watcher.Events()),
	)
	if err != nil {
		_ = tr.Close()
		return err
	}

	for _, svc := range services {
		if err := resp.Add(svc); err != nil {
			_ = resp.Close()
			return err
		}
	}
	entry.WithField("services", len(services)).Info("responder started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := watcher.Run(gctx); err != nil && !goerrors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			entry.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
			if err := srv.ListenAndServe(); !goerrors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		entry.Info("shutting down, withdrawing services")
		resp.HandleEvent(linkstate.PowerOff)
		time.Sleep(cfg.ShutdownGrace)
		return resp.Close()
	})

	return g.Wait()
}

func interfaceList(names map[records.Interface]string) []string {
	var out []string
	for _, iface := range records.Interfaces {
		if name, ok := names[iface]; ok {
			out = append(out, name)
		}
	}
	return out
}
