package main

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lengxu/sensecam"
)

type scanEntry struct {
	Address  string             `json:"address" yaml:"address"`
	Error    string             `json:"error,omitempty" yaml:"error,omitempty"`
	Snapshot *sensecam.Snapshot `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover cameras and read metadata from each of them",
	Example: `  sensecam scan --user admin --pass secret
  sensecam scan --scope 192.168.1.10 -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := newDiscoverer().Discover(configScope())
		if err != nil {
			return err
		}

		entries, err := describeAll(cmd.Context(), addrs, cfg.Username, cfg.Password, cfg.Scan.Concurrency, cfg.Scan.Rate)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if done, err := render(out, cfg.Output, entries); done {
			return err
		}

		if len(entries) == 0 {
			fmt.Fprintln(out, "No ONVIF cameras found")
			return nil
		}
		for i, e := range entries {
			if i > 0 {
				fmt.Fprintln(out)
			}
			if e.Snapshot == nil {
				fmt.Fprintf(out, "%s: %s\n", e.Address, e.Error)
				continue
			}
			printSnapshot(out, *e.Snapshot)
		}
		return nil
	},
}

// describeAll opens every address and collects its snapshot. A device that
// cannot be opened gets an error entry; the others carry on. Entries keep the
// order of addrs.
func describeAll(ctx context.Context, addrs []string, username, password string, concurrency int, opensPerSecond float64, opts ...sensecam.Option) ([]scanEntry, error) {
	entries := make([]scanEntry, len(addrs))
	limiter := rate.NewLimiter(rate.Limit(opensPerSecond), 1)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}

			entries[i].Address = addr
			cam, err := sensecam.Open(addr, username, password, opts...)
			if err != nil {
				glog.Warningf("Skip %s: %v", addr, err)
				entries[i].Error = err.Error()
				return nil
			}
			snapshot := sensecam.Describe(cam)
			entries[i].Snapshot = &snapshot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addScopeFlags(scanCmd)
}
