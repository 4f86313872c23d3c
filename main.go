package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pmc-io/pmc/daemonize"
	"github.com/pmc-io/pmc/httpapi"
	"github.com/pmc-io/pmc/metrics"
	"github.com/pmc-io/pmc/paths"
	"github.com/pmc-io/pmc/pmcconfig"
	"github.com/pmc-io/pmc/registry"
	"github.com/pmc-io/pmc/registry/procstat"
	"github.com/pmc-io/pmc/supervisor"
)

var version = "dev"

// daemonSampleInterval governs how often the daemon samples its own
// CPU/memory usage into the §4.8 metrics histograms. Independent of the
// supervisor's scan interval since it measures the daemon, not its children.
const daemonSampleInterval = 15 * time.Second

func main() {
	home := flag.String("home", "", "pmcd home directory (default ${HOME}/.pmc)")
	foreground := flag.Bool("foreground", false, "run in the foreground instead of daemonizing")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pmcd %s\n", version)
		os.Exit(0)
	}

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	p, err := paths.New(*home)
	if err != nil {
		log.Fatalf("pmcd: resolve paths: %v", err)
	}
	if err := p.EnsureDirs(); err != nil {
		log.Fatalf("pmcd: create directories: %v", err)
	}

	if !*foreground && !daemonize.IsDetachedChild() {
		if err := daemonize.CheckNotRunning(p.PidFile); err != nil {
			log.Fatalf("pmcd: %v", err)
		}
		if err := daemonize.Fork(p.DaemonLog); err != nil {
			log.Fatalf("pmcd: daemonize: %v", err)
		}
		// Fork calls os.Exit(0) in the parent; unreachable here.
	}

	if err := daemonize.CheckNotRunning(p.PidFile); err != nil {
		log.Fatalf("pmcd: %v", err)
	}
	if err := daemonize.WritePidFile(p.PidFile); err != nil {
		log.Fatalf("pmcd: write pid file: %v", err)
	}

	log.Printf("pmcd %s starting (home=%s)", version, p.Base)

	cfg, err := pmcconfig.Load(p.ConfigFile)
	if err != nil {
		log.Fatalf("pmcd: load config: %v", err)
	}
	cfg = cfg.WithDefaults()

	reg, err := registry.Open(registry.Config{
		DumpPath:  p.Dump,
		LogDir:    p.LogDir,
		Shell:     cfg.Runner.Shell,
		ShellArgs: cfg.Runner.Args,
	})
	if err != nil {
		log.Fatalf("pmcd: open registry: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sup := supervisor.New(reg, time.Duration(cfg.Daemon.Interval), cfg.Daemon.Restarts)
	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Printf("pmcd: supervisor stopped: %v", err)
		}
	}()

	server := httpapi.New(reg, cfg)
	go func() {
		log.Printf("pmcd: control API listening on %s:%d", cfg.Daemon.Web.Address, cfg.Daemon.Web.Port)
		if err := server.ListenAndServe(); err != nil {
			log.Printf("pmcd: control API stopped: %v", err)
		}
	}()

	go runDaemonSelfSampler(ctx)

	daemonize.HandleShutdown(p.PidFile, cancel)

	// HandleShutdown's goroutine calls os.Exit once SIGTERM/SIGINT arrives;
	// block here so main doesn't return while the daemon is otherwise idle.
	select {}
}

// runDaemonSelfSampler feeds the daemon memory/CPU histograms (§4.8) with a
// reading of pmcd's own process on a fixed tick. procstat.Sample blocks for
// its 100ms measurement window, so it runs on its own ticker rather than
// piggybacking on the supervisor's scan loop.
func runDaemonSelfSampler(ctx context.Context) {
	pid := os.Getpid()
	ticker := time.NewTicker(daemonSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := procstat.Sample(pid)
			metrics.ObserveDaemonSample(sample.MemoryRSS, sample.CPUPercent)
		}
	}
}
