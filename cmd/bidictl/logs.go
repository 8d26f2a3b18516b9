package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	bidilog "mini-bidi/bidi/log"
	"mini-bidi/bidi/session"
)

type logsCmd struct {
	gs       *globalState
	count    int
	duration time.Duration
	level    string
}

func (c *logsCmd) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if c.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.duration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var minLevel bidilog.Level
	if c.level != "" {
		if err := minLevel.UnmarshalJSON([]byte(`"` + c.level + `"`)); err != nil {
			return err
		}
	}
	if err := c.gs.serveMetrics(ctx); err != nil {
		return err
	}

	d, err := c.gs.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = d.Stop() }()

	var (
		mu   sync.Mutex
		seen int
	)
	remove := d.Log.OnEntryAdded.On(func(e bidilog.EntryAddedEventArgs) {
		if e.Level < minLevel {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if c.count > 0 && seen >= c.count {
			return
		}
		seen++
		fmt.Fprintln(c.gs.stdout, formatEntry(e))
		if c.count > 0 && seen == c.count {
			cancel()
		}
	})
	defer remove()

	sub, err := d.Session.Subscribe(ctx, session.SubscribeParameters{Events: []string{bidilog.EventEntryAdded}})
	if err != nil {
		return err
	}
	subscription, err := sub.Unwrap()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-d.Done():
		return fmt.Errorf("connection closed")
	}

	unsubCtx, unsubCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer unsubCancel()
	_, err = d.Session.Unsubscribe(unsubCtx, session.UnsubscribeParameters{Subscriptions: []string{subscription.Subscription}})
	return err
}

func formatEntry(e bidilog.EntryAddedEventArgs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", e.Timestamp.UTC().Format(time.RFC3339Nano), e.Level, e.Type)
	if e.Method != "" {
		fmt.Fprintf(&b, ".%s", e.Method)
	}
	if e.HasText {
		fmt.Fprintf(&b, " %s", e.Text)
	}
	if e.Source.Context != "" {
		fmt.Fprintf(&b, " (context %s)", e.Source.Context)
	}
	return b.String()
}

func getCmdLogs(gs *globalState) *cobra.Command {
	c := &logsCmd{gs: gs}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Stream log.entryAdded events",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	cmd.Flags().IntVarP(&c.count, "count", "n", 0, "exit after this many entries")
	cmd.Flags().DurationVar(&c.duration, "duration", 0, "exit after this long")
	cmd.Flags().StringVar(&c.level, "level", "", "minimum level: debug, info, warn, error")
	return cmd
}
