package main

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mini-bidi/bidi/session"
	"mini-bidi/connection"
	"mini-bidi/driver"
	"mini-bidi/registry"
	"mini-bidi/transport"
)

type statusCmd struct {
	gs  *globalState
	all bool
}

func (c *statusCmd) run(cmd *cobra.Command, _ []string) error {
	if c.all {
		return c.runAll(cmd.Context())
	}
	d, err := c.gs.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = d.Stop() }()

	res, err := d.Session.Status(cmd.Context())
	if err != nil {
		return err
	}
	status, err := res.Unwrap()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.gs.stdout, "ready=%t message=%q\n", status.Ready, status.Message)
	return err
}

// runAll asks every discovered remote end for its status over a shared
// transport pool.
func (c *statusCmd) runAll(ctx context.Context) error {
	cfg := c.gs.cfg
	var eps []registry.Endpoint
	switch {
	case len(cfg.Etcd) > 0:
		reg, err := registry.NewEtcdRegistry(cfg.Etcd, cfg.EtcdDialTimeout)
		if err != nil {
			return err
		}
		defer reg.Close()
		if eps, err = reg.Discover(ctx, cfg.Service); err != nil {
			return err
		}
	case len(cfg.Endpoints) > 0:
		eps = cfg.Endpoints
	case cfg.URL != "":
		eps = []registry.Endpoint{{URL: cfg.URL}}
	default:
		return driver.ErrNoEndpoint
	}

	pool := transport.NewPool(0, func() connection.Connection { return driver.NewConnection(cfg) },
		transport.Options{Timeout: cfg.Timeout, Logger: c.gs.logger})
	defer func() { _ = pool.Close() }()

	var mu sync.Mutex
	lines := make([]string, 0, len(eps))
	g, ctx := errgroup.WithContext(ctx)
	for _, ep := range eps {
		ep := ep
		g.Go(func() error {
			line := fmt.Sprintf("%s\t", ep.URL)
			status, err := poolStatus(ctx, pool, ep.URL)
			if err == nil {
				line += fmt.Sprintf("ready=%t message=%q", status.Ready, status.Message)
			}
			if err != nil {
				line += "error=" + err.Error()
			}
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(c.gs.stdout, line); err != nil {
			return err
		}
	}
	return nil
}

func poolStatus(ctx context.Context, pool *transport.Pool, url string) (session.StatusResult, error) {
	t, err := pool.Get(ctx, url)
	if err != nil {
		return session.StatusResult{}, err
	}
	res, err := session.New(t).Status(ctx)
	if err != nil {
		return session.StatusResult{}, err
	}
	return res.Unwrap()
}

func getCmdStatus(gs *globalState) *cobra.Command {
	c := &statusCmd{gs: gs}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the remote end accepts new sessions",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	cmd.Flags().BoolVar(&c.all, "all", false, "query every endpoint from the registry")
	return cmd
}
