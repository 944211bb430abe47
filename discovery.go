// Package sensecam finds ONVIF cameras on the local subnets with WS-Discovery
// and reads identity and capability metadata from them over SOAP.
package sensecam

import (
	"slices"
	"strings"

	"github.com/golang/glog"
)

// Discoverer runs WS-Discovery probes and filters the replies down to ONVIF
// cameras whose transport addresses fall in a scope.
type Discoverer struct {
	prober     Prober
	addrs      LocalAddresser
	probeTypes []string
}

// DiscovererOption customises a Discoverer.
type DiscovererOption func(*Discoverer)

// WithProber replaces the multicast session, mostly for tests.
func WithProber(p Prober) DiscovererOption {
	return func(d *Discoverer) { d.prober = p }
}

// WithLocalAddresser replaces the source of the host's addresses used when no
// scope is supplied.
func WithLocalAddresser(a LocalAddresser) DiscovererOption {
	return func(d *Discoverer) { d.addrs = a }
}

// WithProbeTypes restricts the Probe to the given types, for example
// "dn:NetworkVideoTransmitter". By default the probe is untyped.
func WithProbeTypes(types ...string) DiscovererOption {
	return func(d *Discoverer) { d.probeTypes = types }
}

// NewDiscoverer returns a Discoverer using multicast UDP and the host's
// interfaces unless overridden.
func NewDiscoverer(opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		prober: &UDPProber{},
		addrs:  InterfaceAddrs{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover probes the network with a default Discoverer.
func Discover(scope Scope) ([]string, error) {
	return NewDiscoverer().Discover(scope)
}

// Discover returns the sorted, duplicate-free IP addresses of ONVIF devices
// that answered the probe from within scope. A nil scope is replaced by the
// host's own IPv4 addresses. It blocks for the whole listen window unless the
// scope is empty, in which case nothing is probed.
func (d *Discoverer) Discover(scope Scope) ([]string, error) {
	matches, scope, err := d.probe(scope)
	if err != nil {
		return nil, err
	}

	var found []string
	for _, m := range matches {
		found = append(found, MatchScope(m, scope)...)
	}
	found = SortUnique(found)

	glog.Infof("Discovered %d camera(s) in scope %v", len(found), scope)
	return found, nil
}

// Matches returns the raw ProbeMatches that pass the same scope and ONVIF
// filters as Discover, in arrival order.
func (d *Discoverer) Matches(scope Scope) ([]Match, error) {
	matches, scope, err := d.probe(scope)
	if err != nil {
		return nil, err
	}

	var kept []Match
	for _, m := range matches {
		if len(MatchScope(m, scope)) > 0 {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

// ResolveScope returns scope unchanged, or the host's IPv4 addresses when
// scope is nil.
func (d *Discoverer) ResolveScope(scope Scope) (Scope, error) {
	if scope != nil {
		return scope, nil
	}
	addrs, err := d.addrs.LocalIPv4Addrs()
	if err != nil {
		return nil, &DiscoverySessionError{Op: "local-addrs", Err: err}
	}
	glog.V(1).Infof("Using local addresses as scope: %v", addrs)
	return Scope(addrs), nil
}

func (d *Discoverer) probe(scope Scope) ([]Match, Scope, error) {
	scope, err := d.ResolveScope(scope)
	if err != nil {
		return nil, nil, err
	}
	if len(scope) == 0 {
		glog.V(1).Info("Empty scope, skipping probe")
		return nil, scope, nil
	}

	matches, err := d.prober.Probe(d.probeTypes)
	if err != nil {
		return nil, nil, err
	}
	return matches, scope, nil
}

// MatchScope returns the addresses extracted from m for each scope entry whose
// two-octet key occurs in m's transport addresses. A match without the ONVIF
// marker yields nothing.
func MatchScope(m Match, scope Scope) []string {
	if !m.IsOnvif() {
		return nil
	}

	xaddrs := m.TransportAddresses()
	var found []string
	for _, ip := range scope {
		key, ok := scopeKey(ip)
		if !ok {
			glog.Warningf("Skip malformed scope entry %q", ip)
			continue
		}
		pos := strings.Index(xaddrs, key)
		if pos < 0 {
			continue
		}
		if addr := ExtractAddress(xaddrs[pos:]); addr != "" {
			found = append(found, addr)
		}
	}
	return found
}

// SortUnique sorts addrs ascending and drops repeats in place.
func SortUnique(addrs []string) []string {
	if len(addrs) == 0 {
		return []string{}
	}
	slices.Sort(addrs)
	return slices.Compact(addrs)
}
