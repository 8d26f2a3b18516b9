package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mini-bidi/registry"
	"mini-bidi/server"
)

type serveCmd struct {
	gs        *globalState
	addr      string
	advertise string
	heartbeat time.Duration
}

// run serves an in-process remote end until the command context ends. With
// --heartbeat it emits a log.entryAdded event to every session periodically,
// which gives `bidictl logs` something to show.
func (c *serveCmd) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := c.gs.cfg

	var reg registry.Registry
	if len(cfg.Etcd) > 0 {
		etcd, err := registry.NewEtcdRegistry(cfg.Etcd, cfg.EtcdDialTimeout)
		if err != nil {
			return err
		}
		defer etcd.Close()
		reg = etcd
	}
	advertise := c.advertise
	if advertise == "" {
		advertise = "ws://" + c.addr + "/session"
	}

	srv := server.NewServer(c.gs.logger)
	srv.SetService(cfg.Service)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(c.addr, advertise, reg) }()

	if c.heartbeat > 0 {
		go c.beat(ctx, srv)
	}

	select {
	case err := <-served:
		if err == nil {
			err = errors.New("server stopped")
		}
		return err
	case <-ctx.Done():
	}
	if err := srv.Shutdown(5 * time.Second); err != nil {
		return err
	}
	return <-served
}

func (c *serveCmd) beat(ctx context.Context, srv *server.Server) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			err := srv.Emit("log.entryAdded", map[string]any{
				"type":      "console",
				"level":     "info",
				"method":    "log",
				"source":    map[string]any{"realm": "bidictl"},
				"text":      fmt.Sprintf("heartbeat %d", n),
				"timestamp": now.UnixMilli(),
				"args":      []any{map[string]any{"type": "number", "value": n}},
			})
			if err != nil {
				c.gs.logger.Debugf("server", "heartbeat: %v", err)
			}
		}
	}
}

func getCmdServe(gs *globalState) *cobra.Command {
	c := &serveCmd{gs: gs}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-process BiDi remote end",
		Long: `Run an in-process BiDi remote end that answers the session module.

When etcd endpoints are configured the remote end registers itself under the
configured service so drivers can discover it.`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}
	cmd.Flags().StringVar(&c.addr, "addr", "127.0.0.1:9222", "listen address")
	cmd.Flags().StringVar(&c.advertise, "advertise", "", "URL registered for discovery (default ws://<addr>/session)")
	cmd.Flags().DurationVar(&c.heartbeat, "heartbeat", 0, "emit a log entry this often")
	return cmd
}
