// Package cluster runs the serving-plane process topology: a primary
// that forks one worker process per core and restarts any that die, and
// workers that each bind the shared listen address with SO_REUSEPORT so
// the kernel spreads accepted connections across them.
package cluster

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// workerEnv marks a process as a worker and carries its slot index. The
// primary never serves requests; workers never fork.
const workerEnv = "VANTAGE_WORKER"

// restartDelay spaces worker restarts so a crash looping worker cannot
// spin the primary.
const restartDelay = time.Second

// killGrace is how long a worker gets to drain after SIGTERM before the
// primary kills it outright.
const killGrace = 30 * time.Second

// IsWorker reports whether this process is a forked worker.
func IsWorker() bool {
	_, ok := os.LookupEnv(workerEnv)
	return ok
}

// WorkerIndex returns this worker's slot index, or -1 in the primary.
func WorkerIndex() int {
	raw, ok := os.LookupEnv(workerEnv)
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

// Listen opens a TCP listener with SO_REUSEPORT set, so every worker
// can bind the same address.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: setReusePort}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return l, nil
}

func setReusePort(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// Supervise forks count workers by re-executing this binary with the
// worker marker set, restarts any worker that exits before ctx is
// canceled, and returns once every worker is gone. Cancellation is the
// shutdown path: each worker is sent SIGTERM and given killGrace to
// drain.
func Supervise(ctx context.Context, count int, log zerolog.Logger) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve own binary: %w", err)
	}

	log.Info().Int("workers", count).Msg("starting workers")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			return superviseSlot(gctx, self, i, log)
		})
	}
	return g.Wait()
}

// superviseSlot keeps one worker slot occupied until shutdown.
func superviseSlot(ctx context.Context, binary string, slot int, log zerolog.Logger) error {
	for {
		err := runWorker(ctx, binary, slot)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Int("worker", slot).Msg("worker exited, restarting")
		} else {
			log.Warn().Int("worker", slot).Msg("worker exited cleanly before shutdown, restarting")
		}

		select {
		case <-time.After(restartDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// runWorker starts one worker process and waits for it to exit. On
// context cancellation it forwards SIGTERM and waits out the grace
// period before killing.
func runWorker(ctx context.Context, binary string, slot int) error {
	cmd := exec.Command(binary, os.Args[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", workerEnv, slot))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker %d: %w", slot, err)
	}

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	select {
	case err := <-waited:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-waited:
		case <-time.After(killGrace):
			_ = cmd.Process.Kill()
			<-waited
		}
		return nil
	}
}
