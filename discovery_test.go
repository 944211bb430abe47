package sensecam

import (
	"errors"
	"sort"
	"strings"
	"testing"
)

type fakeProber struct {
	matches []Match
	err     error
	calls   int
	types   []string
}

func (p *fakeProber) Probe(types []string) ([]Match, error) {
	p.calls++
	p.types = types
	return p.matches, p.err
}

type fakeAddrs struct {
	addrs []string
	err   error
	calls int
}

func (a *fakeAddrs) LocalIPv4Addrs() ([]string, error) {
	a.calls++
	return a.addrs, a.err
}

func camera(xaddrs ...string) Match {
	return Match{
		XAddrs: xaddrs,
		Types:  []string{"{http://www.onvif.org/ver10/network/wsdl}NetworkVideoTransmitter"},
	}
}

func newTestDiscoverer(p *fakeProber, a *fakeAddrs) *Discoverer {
	if a == nil {
		a = &fakeAddrs{}
	}
	return NewDiscoverer(WithProber(p), WithLocalAddresser(a))
}

func TestDiscoverSingleCamera(t *testing.T) {
	p := &fakeProber{matches: []Match{{
		XAddrs: []string{"http://192.168.1.50:80/onvif/device_service"},
		Types:  []string{"NetworkVideoTransmitter onvif"},
	}}}

	got, err := newTestDiscoverer(p, nil).Discover(Scope{"192.168.1.10"})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 1 || got[0] != "192.168.1.50" {
		t.Errorf("Discover() = %v, want [192.168.1.50]", got)
	}
}

func TestDiscoverFiltering(t *testing.T) {
	printer := Match{
		XAddrs: []string{"http://192.168.1.20:80/wsd"},
		Types:  []string{"{http://schemas.microsoft.com/windows/2006/08/wdp/print}PrintDeviceType"},
	}

	tests := []struct {
		name    string
		scope   Scope
		matches []Match
		want    []string
	}{
		{
			name:    "no responses",
			scope:   Scope{"192.168.1.10"},
			matches: nil,
			want:    []string{},
		},
		{
			name:    "missing onvif marker",
			scope:   Scope{"192.168.1.10"},
			matches: []Match{printer},
			want:    []string{},
		},
		{
			name:    "out of scope",
			scope:   Scope{"10.0.0.5"},
			matches: []Match{camera("http://192.168.1.50/onvif/device_service")},
			want:    []string{},
		},
		{
			name:    "empty scope",
			scope:   Scope{},
			matches: []Match{camera("http://192.168.1.50/onvif/device_service")},
			want:    []string{},
		},
		{
			name:  "sorted",
			scope: Scope{"192.168.1.10", "10.0.0.5"},
			matches: []Match{
				camera("http://192.168.1.7/onvif/device_service"),
				camera("http://10.0.0.9:8080/onvif/device_service"),
				camera("http://192.168.1.12/onvif/device_service"),
			},
			want: []string{"10.0.0.9", "192.168.1.12", "192.168.1.7"},
		},
		{
			name:  "duplicates folded",
			scope: Scope{"192.168.1.10", "192.168.2.1"},
			matches: []Match{
				camera("http://192.168.1.50/onvif/device_service"),
				camera("http://192.168.1.50:80/onvif/device_service"),
			},
			want: []string{"192.168.1.50"},
		},
		{
			name:    "malformed scope entry skipped",
			scope:   Scope{"garbage", "192.168.1.10"},
			matches: []Match{camera("http://192.168.1.50/onvif/device_service")},
			want:    []string{"192.168.1.50"},
		},
		{
			name:    "ipv6 transport never matches",
			scope:   Scope{"192.168.1.10"},
			matches: []Match{camera("http://[fe80::1]/onvif/device_service")},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newTestDiscoverer(&fakeProber{matches: tt.matches}, nil).Discover(tt.scope)
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") || got == nil {
				t.Errorf("Discover() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

// Every returned address comes from a response that carries the marker and
// contains a scope key; the result is sorted and duplicate free.
func TestDiscoverResultInvariants(t *testing.T) {
	scopes := []Scope{
		{"192.168.1.10"},
		{"10.0.0.1", "172.16.5.5"},
		{"192.168.0.2", "10.1.1.1"},
	}
	hosts := []string{"192.168.1.50", "192.168.0.9", "10.0.0.3", "10.1.7.7", "172.16.1.1", "8.8.8.8"}
	types := [][]string{
		{"{http://www.onvif.org/ver10/network/wsdl}NetworkVideoTransmitter"},
		{"{http://schemas.xmlsoap.org/ws/2006/02/devprof}Device"},
	}

	var matches []Match
	for i, h := range hosts {
		matches = append(matches, Match{
			XAddrs: []string{"http://" + h + "/onvif/device_service"},
			Types:  types[i%len(types)],
		})
	}

	for _, scope := range scopes {
		got, err := newTestDiscoverer(&fakeProber{matches: matches}, nil).Discover(scope)
		if err != nil {
			t.Fatalf("Discover(%v) error = %v", scope, err)
		}
		if !sort.StringsAreSorted(got) {
			t.Errorf("Discover(%v) = %v is not sorted", scope, got)
		}

		seen := map[string]bool{}
		for _, addr := range got {
			if seen[addr] {
				t.Errorf("Discover(%v) repeats %s", scope, addr)
			}
			seen[addr] = true

			var source *Match
			for i := range matches {
				if strings.Contains(matches[i].TransportAddresses(), addr) {
					source = &matches[i]
				}
			}
			if source == nil {
				t.Fatalf("address %s has no source response", addr)
			}
			if !strings.Contains(source.ServiceTypes(), OnvifMarker) {
				t.Errorf("address %s came from a response without the marker", addr)
			}
			inScope := false
			for _, ip := range scope {
				key, _ := scopeKey(ip)
				if strings.Contains(source.TransportAddresses(), key) {
					inScope = true
				}
			}
			if !inScope {
				t.Errorf("address %s is outside scope %v", addr, scope)
			}
		}
	}
}

func TestDiscoverNilScopeUsesLocalAddresses(t *testing.T) {
	p := &fakeProber{matches: []Match{camera("http://172.16.3.4/onvif/device_service")}}
	a := &fakeAddrs{addrs: []string{"172.16.0.10"}}

	got, err := newTestDiscoverer(p, a).Discover(nil)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if a.calls != 1 {
		t.Errorf("local addresser called %d times, want 1", a.calls)
	}
	if len(got) != 1 || got[0] != "172.16.3.4" {
		t.Errorf("Discover() = %v, want [172.16.3.4]", got)
	}
}

func TestDiscoverSuppliedScopeSkipsLocalAddresses(t *testing.T) {
	a := &fakeAddrs{addrs: []string{"172.16.0.10"}}
	if _, err := newTestDiscoverer(&fakeProber{}, a).Discover(Scope{"10.0.0.1"}); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if a.calls != 0 {
		t.Errorf("local addresser called %d times for a supplied scope", a.calls)
	}
}

func TestDiscoverErrors(t *testing.T) {
	sessionErr := &DiscoverySessionError{Op: "listen", Err: errors.New("address in use")}

	_, err := newTestDiscoverer(&fakeProber{err: sessionErr}, nil).Discover(Scope{"10.0.0.1"})
	var dse *DiscoverySessionError
	if !errors.As(err, &dse) || dse.Op != "listen" {
		t.Errorf("prober failure: got %v, want DiscoverySessionError(listen)", err)
	}

	p := &fakeProber{}
	_, err = newTestDiscoverer(p, &fakeAddrs{err: errors.New("no interfaces")}).Discover(nil)
	if !errors.As(err, &dse) || dse.Op != "local-addrs" {
		t.Errorf("address failure: got %v, want DiscoverySessionError(local-addrs)", err)
	}
	if p.calls != 0 {
		t.Errorf("probe sent although the scope could not be resolved")
	}
}

func TestDiscoverEmptyScopeSkipsProbe(t *testing.T) {
	p := &fakeProber{matches: []Match{camera("http://192.168.1.50/onvif/device_service")}}

	got, err := newTestDiscoverer(p, nil).Discover(Scope{})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Discover() = %#v, want empty non-nil", got)
	}
	if p.calls != 0 {
		t.Errorf("prober called %d times for an empty scope", p.calls)
	}

	// No local addresses leaves no keys either.
	if _, err := newTestDiscoverer(p, &fakeAddrs{}).Discover(nil); err != nil {
		t.Fatalf("Discover(nil) error = %v", err)
	}
	if p.calls != 0 {
		t.Errorf("prober called %d times without local addresses", p.calls)
	}
}

func TestDiscoverProbeTypes(t *testing.T) {
	p := &fakeProber{}
	d := NewDiscoverer(WithProber(p), WithLocalAddresser(&fakeAddrs{}), WithProbeTypes("dn:NetworkVideoTransmitter"))
	if _, err := d.Discover(Scope{"10.0.0.1"}); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(p.types) != 1 || p.types[0] != "dn:NetworkVideoTransmitter" {
		t.Errorf("probe types = %v", p.types)
	}
}

func TestMatches(t *testing.T) {
	in := camera("http://192.168.1.50/onvif/device_service")
	out := camera("http://10.9.9.9/onvif/device_service")
	p := &fakeProber{matches: []Match{in, out}}

	got, err := newTestDiscoverer(p, nil).Matches(Scope{"192.168.7.7"})
	if err != nil {
		t.Fatalf("Matches() error = %v", err)
	}
	if len(got) != 1 || got[0].TransportAddresses() != in.TransportAddresses() {
		t.Errorf("Matches() = %v", got)
	}
}

func TestSortUnique(t *testing.T) {
	got := SortUnique([]string{"b", "a", "b", "c", "a"})
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("SortUnique() = %v", got)
	}
	if got := SortUnique(nil); got == nil || len(got) != 0 {
		t.Errorf("SortUnique(nil) = %#v, want empty non-nil", got)
	}
}
