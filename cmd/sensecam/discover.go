package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lengxu/sensecam"
)

var discoverVerbose bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List ONVIF cameras answering a WS-Discovery probe",
	Example: `  sensecam discover
  sensecam discover --scope 192.168.1.10 --scope 10.0.0.5 -o json
  sensecam discover --types dn:NetworkVideoTransmitter --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := newDiscoverer()
		out := cmd.OutOrStdout()

		if discoverVerbose {
			return discoverMatches(cmd, d)
		}

		addrs, err := d.Discover(configScope())
		if err != nil {
			return err
		}
		if done, err := render(out, cfg.Output, addrs); done {
			return err
		}

		if len(addrs) == 0 {
			fmt.Fprintln(out, "No ONVIF cameras found")
			return nil
		}
		for _, addr := range addrs {
			fmt.Fprintln(out, addr)
		}
		return nil
	},
}

type matchReport struct {
	Addresses []string           `json:"addresses" yaml:"addresses"`
	XAddrs    []string           `json:"xaddrs" yaml:"xaddrs"`
	Types     []string           `json:"types" yaml:"types"`
	Endpoint  string             `json:"endpoint" yaml:"endpoint"`
	Info      sensecam.ScopeInfo `json:"info" yaml:"info"`
}

func discoverMatches(cmd *cobra.Command, d *sensecam.Discoverer) error {
	scope, err := d.ResolveScope(configScope())
	if err != nil {
		return err
	}
	matches, err := d.Matches(scope)
	if err != nil {
		return err
	}

	reports := make([]matchReport, 0, len(matches))
	for _, m := range matches {
		reports = append(reports, matchReport{
			Addresses: sensecam.SortUnique(sensecam.MatchScope(m, scope)),
			XAddrs:    m.XAddrs,
			Types:     m.Types,
			Endpoint:  m.EndpointReference,
			Info:      m.ScopeInfo(),
		})
	}

	out := cmd.OutOrStdout()
	if done, err := render(out, cfg.Output, reports); done {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tHARDWARE\tMAC\tVENDOR\tXADDRS")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			strings.Join(r.Addresses, ","),
			r.Info.Name,
			r.Info.Hardware,
			r.Info.MAC,
			r.Info.Vendor,
			strings.Join(r.XAddrs, " "),
		)
	}
	return tw.Flush()
}

func newDiscoverer() *sensecam.Discoverer {
	var opts []sensecam.DiscovererOption
	if len(cfg.ProbeTypes) > 0 {
		opts = append(opts, sensecam.WithProbeTypes(cfg.ProbeTypes...))
	}
	return sensecam.NewDiscoverer(opts...)
}

// configScope returns nil when no scope was configured so discovery falls
// back to the host's addresses.
func configScope() sensecam.Scope {
	if len(cfg.Scope) == 0 {
		return nil
	}
	return sensecam.Scope(cfg.Scope)
}

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("scope", nil, "local IPv4 address whose /16 prefix is searched (repeatable; default: this host's addresses)")
	cmd.Flags().StringSlice("types", nil, "restrict the probe to these types, e.g. dn:NetworkVideoTransmitter")
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	addScopeFlags(discoverCmd)
	discoverCmd.Flags().BoolVar(&discoverVerbose, "verbose", false, "show the raw matches with scope metadata")
}
