// Command node boots exactly one process of the Dolev/Bracha/RCO
// broadcast stack, parameterised by a TOML Configuration file, and
// runs it over a minimal TCP transport until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/jabolina-labs/dolev-brb-rco/internal/config"
	"github.com/jabolina-labs/dolev-brb-rco/internal/transport"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/definition"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/process"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

var (
	app = kingpin.New("node", "Run one process of the Dolev/Bracha/RCO broadcast stack.")

	configPath = app.Flag("config", "Path to the TOML process configuration.").Required().String()
	listenAddr = app.Flag("listen", "Address this process listens on for peer connections.").Required().String()
	peerAddrs  = app.Flag("peer-addr", "peer_id=host:port, repeatable, one per peer.").Strings()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("fatal: %v", err))
		os.Exit(1)
	}

	addrs, err := parsePeerAddrs(*peerAddrs)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("fatal: %v", err))
		os.Exit(1)
	}

	log := definition.NewLogrusLogger(cfg.Self)

	var sinks []types.MetricsSink
	if cfg.MetricsPath != "" {
		csvSink, err := definition.NewCSVMetricsSink(cfg.MetricsPath)
		if err != nil {
			log.Fatalf("metrics sink: %v", err)
		}
		defer csvSink.Close()
		sinks = append(sinks, csvSink)
	}

	trans, err := transport.NewTCPTransport(cfg.Self, *listenAddr, func(peer types.ProcessID) (string, error) {
		addr, ok := addrs[peer]
		if !ok {
			return "", fmt.Errorf("no address configured for peer %d", peer)
		}
		return addr, nil
	}, log)
	if err != nil {
		log.Fatalf("transport: %v", err)
	}
	defer trans.Close()

	proc, err := process.New(cfg, trans, log, func(author types.ProcessID, content []byte) {
		log.Infof("RCO-delivered from %d: %q", author, content)
	}, process.WithMetrics(definition.NewMultiMetricsSink(sinks...)))
	if err != nil {
		log.Fatalf("process: %v", err)
	}

	banner := color.New(color.FgCyan, color.Bold)
	banner.Printf("node %d up: N=%d f=%d peers=%d\n", cfg.Self, cfg.N, cfg.F, len(cfg.Peers))

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	proc.Run(ctx)
}

func parsePeerAddrs(raw []string) (map[types.ProcessID]string, error) {
	out := make(map[types.ProcessID]string, len(raw))
	for _, entry := range raw {
		var idStr, addr string
		for i, r := range entry {
			if r == '=' {
				idStr, addr = entry[:i], entry[i+1:]
				break
			}
		}
		if idStr == "" || addr == "" {
			return nil, fmt.Errorf("invalid --peer-addr %q, want peer_id=host:port", entry)
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --peer-addr %q: %w", entry, err)
		}
		out[types.ProcessID(id)] = addr
	}
	return out, nil
}
