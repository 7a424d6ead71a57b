package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"

	"github.com/bdew/MCMultiPart/internal/logging"
	"github.com/bdew/MCMultiPart/internal/protocol"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
	"github.com/bdew/MCMultiPart/internal/sim/parts/kinds"
	"github.com/bdew/MCMultiPart/internal/sim/replica"
	"github.com/bdew/MCMultiPart/internal/transport/observer"
)

func main() {
	var (
		server      = flag.String("server", "http://127.0.0.1:8080", "server base url")
		center      = flag.String("center", "0,64,0", "watched block position x,y,z")
		chunkRadius = flag.Int("chunk_radius", 0, "watched chunk radius (0: server default)")
		statusEvery = flag.Duration("status_every", 10*time.Second, "how often to log the replica digest")
		logLevel    = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	logger := logging.New(os.Stdout, *logLevel)
	l := logger.WithField("cmd", "observer")

	pos, err := parsePos(*center)
	if err != nil {
		l.WithError(err).Fatal("bad -center")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bootCtx, bootCancel := context.WithTimeout(ctx, 10*time.Second)
	boot, err := observer.FetchBootstrap(bootCtx, *server)
	bootCancel()
	if err != nil {
		l.WithError(err).Fatal("bootstrap")
	}
	l = l.WithFields(log.Fields{"world": boot.WorldID, "protocol": boot.ProtocolVersion})

	reg := parts.NewRegistry()
	enabled, unknown := splitTypes(boot)
	if len(unknown) > 0 {
		// Records of these types are skipped by the replica.
		l.WithField("types", strings.Join(unknown, ",")).Warn("server has part types this build does not know")
	}
	if len(enabled) == 0 {
		l.Fatal("no shared part types with server")
	}
	if err := kinds.RegisterDefaults(reg, enabled); err != nil {
		l.WithError(err).Fatal("register part types")
	}

	rep, err := replica.New(replica.Config{TickRateHz: boot.TickRateHz}, reg, logger)
	if err != nil {
		l.WithError(err).Fatal("replica")
	}
	var last time.Time
	rep.OnRefresh = func(r replica.Refresh) {
		l.WithFields(log.Fields{"tick": r.Tick, "rerender": len(r.Rerender), "light": len(r.Light)}).Debug("refresh")
		if time.Since(last) >= *statusEvery {
			last = time.Now()
			st := rep.Store()
			l.WithFields(log.Fields{
				"parts":      st.Len(),
				"containers": st.ContainerCount(),
				"digest":     fmt.Sprintf("%016x", rep.Digest()),
			}).Info("replica")
		}
	}
	go func() {
		_ = rep.Run(ctx)
	}()

	c, err := observer.Dial(ctx, wsURL(*server), pos, *chunkRadius, logger)
	if err != nil {
		l.WithError(err).Fatal("dial")
	}
	defer c.Close()
	l.WithFields(log.Fields{"center": pos.String(), "chunk_radius": *chunkRadius}).Info("subscribed")

	if err := c.Run(ctx, rep); err != nil && err != context.Canceled {
		l.WithError(err).Fatal("stream ended")
	}
	l.Info("stream closed")
}

func parsePos(s string) (change.BlockPos, error) {
	f := strings.Split(s, ",")
	if len(f) != 3 {
		return change.BlockPos{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]int32
	for i, part := range f {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return change.BlockPos{}, fmt.Errorf("coordinate %d: %w", i, err)
		}
		v[i] = int32(n)
	}
	return change.BlockPos{X: v[0], Y: v[1], Z: v[2]}, nil
}

// splitTypes separates the server's part types into the ones this build can
// construct and the ones it cannot.
func splitTypes(boot protocol.BootstrapResponse) (enabled, unknown []string) {
	known := map[string]bool{}
	for _, t := range kinds.Builtins() {
		known[t] = true
	}
	for _, t := range boot.PartTypes {
		if known[t] {
			enabled = append(enabled, t)
		} else {
			unknown = append(unknown, t)
		}
	}
	return enabled, unknown
}

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/observer/ws"
}
