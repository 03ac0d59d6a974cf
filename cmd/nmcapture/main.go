// Command nmcapture attaches to one netmap-capable interface (or a
// forwarding pair, for tap/ips copy modes), partitions its rings
// across a configurable number of capture threads, and decodes
// whatever passes an optional BPF filter.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-netmap/nmcapture/bpf"
	"github.com/go-netmap/nmcapture/capture"
	"github.com/go-netmap/nmcapture/netmap"
)

// runID identifies one process invocation. run logs it once, on the
// startup line, so that invocation's output can be told apart when
// several nmcapture instances run side by side against different
// interfaces on the same host; it is not attached to later log lines
// or to any metric.
var runID = uuid.New().String()

func main() {
	var configPath string
	v := viper.New()

	root := &cobra.Command{
		Use:   "nmcapture",
		Short: "netmap-backed packet capture engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides flag defaults; explicitly set flags and NMCAPTURE_ env vars take precedence over it)")
	bindFlags(root, v)

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("nmcapture exited with error")
	}
}

func run(cli *cliConfig) error {
	log := newLogger(cli.LogLevel)
	log.WithField("run_id", runID).Info("starting nmcapture")

	copyMode, err := cli.copyMode()
	if err != nil {
		return err
	}
	checksumMode, err := cli.checksumMode()
	if err != nil {
		return err
	}

	var filter bpf.Filter
	if cli.BPFFile != "" {
		f, err := os.Open(cli.BPFFile)
		if err != nil {
			return fmt.Errorf("opening bpf file: %w", err)
		}
		raw, err := bpf.ParseRawDump(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parsing bpf file: %w", err)
		}
		prog, err := bpf.Compile(raw)
		if err != nil {
			return fmt.Errorf("compiling bpf program: %w", err)
		}
		filter = prog
	}

	cfg := capture.Config{
		Iface:        cli.Iface,
		OutIface:     cli.OutIface,
		Threads:      cli.Threads,
		Promisc:      cli.Promisc,
		CopyMode:     copyMode,
		ChecksumMode: checksumMode,
		Filter:       filter,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry := netmap.NewRegistry()

	warn := func(err error) { log.WithError(err).Warn("non-fatal device setup error") }

	src, err := registry.Acquire(cfg.Iface, cfg.Promisc, warn)
	if err != nil {
		return fmt.Errorf("acquiring %s: %w", cfg.Iface, err)
	}
	defer registry.Release(cfg.Iface)

	var dst *netmap.Device
	if cfg.CopyMode != capture.CopyModeNone {
		dst, err = registry.Acquire(cfg.OutIface, cfg.Promisc, warn)
		if err != nil {
			return fmt.Errorf("acquiring %s: %w", cfg.OutIface, err)
		}
		defer registry.Release(cfg.OutIface)
	}

	stats := capture.NewPrometheusRegistry("nmcapture")
	livedev := capture.NewLivedev(cfg.Iface)

	pool := newFixedPool(src.NumRings() * 1024)
	decoder := newLogDecoder(log)

	done := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < cfg.Threads; i++ {
		ringFrom, ringTo, err := src.AssignThreadRange(cfg.Threads)
		if err != nil {
			close(done)
			wg.Wait()
			return fmt.Errorf("assigning thread range: %w", err)
		}

		th := capture.NewCaptureThreadState(cfg, i, src, dst, ringFrom, ringTo, pool, decoder, livedev, true)
		if err := th.Init(stats); err != nil {
			close(done)
			wg.Wait()
			return fmt.Errorf("initializing thread %d: %w", i, err)
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			if err := th.Loop(done); err != nil {
				log.WithError(err).WithField("thread", idx).Error("capture loop exited")
			}
		}(i)
	}

	metricsServer := &http.Server{
		Addr:    cli.MetricsAddr,
		Handler: promhttp.HandlerFor(stats.Registry(), promhttp.HandlerOpts{}),
	}
	go func() {
		log.WithField("addr", cli.MetricsAddr).Info("serving metrics")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	close(done)
	wg.Wait()
	metricsServer.Close()

	return nil
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return logrus.NewEntry(l)
}
