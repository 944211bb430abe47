package sensecam

import (
	"net"
	"strings"
)

// addressWidth is how many characters of the transport address string are
// kept after a scope key match. It fits "A.B.C.D:port" for short addresses.
const addressWidth = 13

// Scope lists local IPv4 addresses whose subnets are of interest. A nil
// Scope means "not supplied" and is replaced by the host's own addresses.
type Scope []string

// LocalAddresser reports the IPv4 addresses bound on this host.
type LocalAddresser interface {
	LocalIPv4Addrs() ([]string, error)
}

// InterfaceAddrs is the LocalAddresser backed by the host's network
// interfaces.
type InterfaceAddrs struct{}

// LocalIPv4Addrs returns every non-loopback IPv4 interface address.
func (InterfaceAddrs) LocalIPv4Addrs() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			ips = append(ips, ipNet.IP.String())
		}
	}
	return ips, nil
}

// scopeKey returns the first two dot-separated components of ip, e.g.
// "192.168" for "192.168.1.10".
func scopeKey(ip string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(ip), ".")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "." + parts[1], true
}

// ExtractAddress pulls a bare IP out of s, which must start at the position
// where a scope key matched inside a transport address string. It keeps the
// first 13 characters and cuts at the first '/' and then at the first ':'.
//
// Addresses longer than 13 characters, such as "192.168.100.200", come back
// truncated. IPv6 hosts never reach here because they cannot match a dotted key.
func ExtractAddress(s string) string {
	if len(s) > addressWidth {
		s = s[:addressWidth]
	}
	s, _, _ = strings.Cut(s, "/")
	s, _, _ = strings.Cut(s, ":")
	return s
}
