// Command mainmemory-server runs a standalone MainMemory cache listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	mainmemory "github.com/ehrlich-b/mainmemory"
	"github.com/ehrlich-b/mainmemory/internal/dispatch"
	"github.com/ehrlich-b/mainmemory/internal/logging"
	"golang.org/x/sys/unix"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1", "Address to bind")
		port       = flag.Int("port", 11211, "Port to listen on")
		volumeStr  = flag.String("volume", "64M", "Total cache volume budget (e.g., 64M, 1G)")
		threads    = flag.Int("threads", 0, "Number of partitions/worker threads (0 = auto)")
		affinity   = flag.String("affinity", "", "Comma-separated CPU indices to pin worker threads to")
		mode       = flag.String("mode", "direct", "Cross-partition dispatch mode: direct, delegate, combine")
		_          = flag.Int("batch", 32, "Completion batch size (reserved, implementation-defined default)")
		_          = flag.Int("rx-chunk", 4096, "Receive buffer growth chunk size in bytes (accepted but not applied; buffers grow in fixed 8 KiB chunks)")
		_          = flag.Int("tx-chunk", 4096, "Transmit buffer growth chunk size in bytes (accepted but not applied; buffers grow in fixed 8 KiB chunks)")
		verbose    = flag.Bool("v", false, "Verbose (debug) logging")
	)
	flag.Parse()

	volume, err := parseSize(*volumeStr)
	if err != nil {
		log.Fatalf("invalid --volume %q: %v", *volumeStr, err)
	}

	cpus, err := parseAffinity(*affinity)
	if err != nil {
		log.Fatalf("invalid --affinity %q: %v", *affinity, err)
	}

	dispatchMode, err := parseMode(*mode)
	if err != nil {
		log.Fatalf("invalid --mode %q: %v", *mode, err)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg := mainmemory.DefaultConfig()
	cfg.Addr = *addr
	cfg.Port = *port
	cfg.Volume = volume
	cfg.DispatchMode = dispatchMode
	cfg.Logger = logger
	if *threads > 0 {
		cfg.Threads = *threads
	} else {
		cfg.Threads = runtime.NumCPU()
	}

	srv := mainmemory.New(cfg)
	applyAffinity(logger, cpus)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			logger.Error("server exited", "error", err)
			cancel()
			os.Exit(1)
		}
	}

	cancel()
	done := make(chan struct{})
	go func() {
		srv.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logger.Warn("shutdown timed out, exiting anyway")
	}
	fmt.Fprintln(os.Stderr, "mainmemory-server stopped")
}

// applyAffinity pins the process to the given CPU set, matching the
// teacher's per-queue unix.SchedSetaffinity call; here it's applied once
// at the process level since partitions are goroutines, not dedicated
// kernel threads each requiring their own pin.
func applyAffinity(logger *logging.Logger, cpus []int) {
	if len(cpus) == 0 {
		return
	}
	var mask unix.CPUSet
	for _, c := range cpus {
		mask.Set(c)
	}
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		logger.Warn("failed to set CPU affinity", "error", err, "cpus", cpus)
		return
	}
	logger.Debug("set CPU affinity", "cpus", cpus)
}

func parseMode(s string) (dispatch.Mode, error) {
	switch strings.ToLower(s) {
	case "direct", "":
		return dispatch.ModeDirect, nil
	case "delegate":
		return dispatch.ModeDelegate, nil
	case "combine":
		return dispatch.ModeCombine, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func parseAffinity(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	cpus := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		cpus = append(cpus, n)
	}
	return cpus, nil
}

// parseSize parses a size string like "64M", "1G", "512K".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
