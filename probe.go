package sensecam

import (
	"errors"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"golang.org/x/net/ipv4"
)

const (
	// MulticastGroup is the WS-Discovery IPv4 multicast endpoint.
	MulticastGroup = "239.255.255.250:3702"

	// ListenWindow is how long a probe session collects ProbeMatches.
	ListenWindow = 3 * time.Second

	probeRepeat    = 2
	probeRepeatGap = 50 * time.Millisecond
	multicastTTL   = 1
	maxDatagram    = 64 * 1024
)

// Prober runs one WS-Discovery session: it sends a Probe for the given types
// and returns every match collected before the session ends.
type Prober interface {
	Probe(types []string) ([]Match, error)
}

// UDPProber is the multicast Prober. The zero value probes MulticastGroup for
// ListenWindow on every up, multicast-capable IPv4 interface.
type UDPProber struct {
	group      string
	window     time.Duration
	interfaces func() ([]net.Interface, error)
}

func (p *UDPProber) groupAddr() string {
	if p.group == "" {
		return MulticastGroup
	}
	return p.group
}

func (p *UDPProber) listenWindow() time.Duration {
	if p.window <= 0 {
		return ListenWindow
	}
	return p.window
}

// Probe binds an ephemeral UDP socket, multicasts the probe out of every
// interface and reads replies until the listen window closes. Duplicate
// matches, which devices send when the probe is repeated or heard on several
// interfaces, are folded.
func (p *UDPProber) Probe(types []string) ([]Match, error) {
	messageID := "uuid:" + uuid.New().String()
	request := buildProbe(messageID, types)

	group, err := net.ResolveUDPAddr("udp4", p.groupAddr())
	if err != nil {
		return nil, &DiscoverySessionError{Op: "resolve", Err: err}
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, &DiscoverySessionError{Op: "listen", Err: err}
	}

	matches, err := p.exchange(conn, group, messageID, request)
	if closeErr := conn.Close(); closeErr != nil && err == nil {
		err = &DiscoverySessionError{Op: "close", Err: closeErr}
	}
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (p *UDPProber) exchange(conn *net.UDPConn, group *net.UDPAddr, messageID string, request []byte) ([]Match, error) {
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(multicastTTL); err != nil {
		glog.Warningf("Set multicast TTL error %v", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		glog.Warningf("Set multicast loopback error %v", err)
	}

	if err := conn.SetDeadline(time.Now().Add(p.listenWindow())); err != nil {
		return nil, &DiscoverySessionError{Op: "deadline", Err: err}
	}

	ifis := p.probeInterfaces()
	for i := 0; i < probeRepeat; i++ {
		if i > 0 {
			time.Sleep(probeRepeatGap)
		}
		if sendOnInterfaces(pc, ifis, group, request) > 0 {
			continue
		}
		if _, err := conn.WriteToUDP(request, group); err != nil {
			return nil, &DiscoverySessionError{Op: "send", Err: err}
		}
	}

	seen := make(map[string]bool)
	var matches []Match
	buffer := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return nil, &DiscoverySessionError{Op: "receive", Err: err}
		}

		found, err := parseProbeMatches(messageID, buffer[:n])
		if err != nil {
			if err != errWrongDiscoveryResponse {
				glog.Warningf("Skip malformed discovery response from %v: %v", from, err)
			} else {
				glog.V(2).Infof("Skip unrelated datagram from %v", from)
			}
			continue
		}

		for _, m := range found {
			if seen[m.key()] {
				continue
			}
			seen[m.key()] = true
			matches = append(matches, m)
		}
	}

	glog.V(1).Infof("Probe %s collected %d match(es)", messageID, len(matches))
	return matches, nil
}

func (p *UDPProber) probeInterfaces() []net.Interface {
	list := p.interfaces
	if list == nil {
		list = multicastInterfaces
	}
	ifis, err := list()
	if err != nil {
		glog.Warningf("List multicast interfaces error %v", err)
		return nil
	}
	return ifis
}

// sendOnInterfaces writes the probe once through each interface and returns
// how many writes went out. Zero leaves the choice to the kernel's default
// multicast route.
func sendOnInterfaces(pc *ipv4.PacketConn, ifis []net.Interface, group *net.UDPAddr, request []byte) int {
	sent := 0
	for _, ifi := range ifis {
		if err := pc.SetMulticastInterface(&ifi); err != nil {
			glog.Warningf("Skip interface %s: set multicast interface error %v", ifi.Name, err)
			continue
		}
		if _, err := pc.WriteTo(request, nil, group); err != nil {
			glog.Warningf("Skip interface %s: send probe error %v", ifi.Name, err)
			continue
		}
		sent++
	}
	return sent
}

// multicastInterfaces returns the non-loopback interfaces that are up, can
// multicast and carry an IPv4 address.
func multicastInterfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ifis []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.To4() != nil {
				ifis = append(ifis, ifi)
				break
			}
		}
	}
	return ifis, nil
}

// buildProbe renders a WS-Discovery Probe. Types are QNames in the dn prefix
// (e.g. "dn:NetworkVideoTransmitter") or bare local names, which get dn.
func buildProbe(messageID string, types []string) []byte {
	qnames := make([]string, 0, len(types))
	for _, t := range types {
		if !strings.Contains(t, ":") {
			t = "dn:" + t
		}
		qnames = append(qnames, t)
	}

	typesElement := ""
	if len(qnames) > 0 {
		typesElement = `<d:Types>` + strings.Join(qnames, " ") + `</d:Types>`
	}

	request := `<?xml version="1.0" encoding="UTF-8"?>
				<s:Envelope
					xmlns:s="http://www.w3.org/2003/05/soap-envelope"
					xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing"
					xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery"
					xmlns:dn="http://www.onvif.org/ver10/network/wsdl"
					xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
					<s:Header>
						<a:Action s:mustUnderstand="1">http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe</a:Action>
						<a:MessageID>` + messageID + `</a:MessageID>
						<a:ReplyTo><a:Address>http://schemas.xmlsoap.org/ws/2004/08/addressing/role/anonymous</a:Address></a:ReplyTo>
						<a:To s:mustUnderstand="1">urn:schemas-xmlsoap-org:ws:2005:04:discovery</a:To>
					</s:Header>
					<s:Body>
						<d:Probe>` + typesElement + `</d:Probe>
					</s:Body>
				</s:Envelope>`

	request = interTagSpace.ReplaceAllString(request, "><")
	request = runsOfSpace.ReplaceAllString(request, " ")
	return []byte(request)
}

var (
	interTagSpace = regexp.MustCompile(`>\s+<`)
	runsOfSpace   = regexp.MustCompile(`\s+`)
)
