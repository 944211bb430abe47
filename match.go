package sensecam

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/clbanning/mxj"
	"github.com/endobit/oui"
	"github.com/golang/glog"
)

// OnvifMarker must appear in a match's rendered service types for the device
// to count as a camera.
const OnvifMarker = "onvif"

const onvifScopePrefix = "onvif://www.onvif.org/"

var xmlnsPattern = regexp.MustCompile(`xmlns:([A-Za-z_][\w.\-]*)\s*=\s*["']([^"']*)["']`)

// Match is a single ProbeMatch taken from a WS-Discovery reply.
type Match struct {
	EndpointReference string
	XAddrs            []string
	// Types holds the advertised QNames. A prefix declared in the datagram is
	// expanded to "{namespace}Local".
	Types           []string
	Scopes          []string
	MetadataVersion string
}

// TransportAddresses renders XAddrs as one searchable string.
func (m Match) TransportAddresses() string {
	return strings.Join(m.XAddrs, " ")
}

// ServiceTypes renders Types as one searchable string.
func (m Match) ServiceTypes() string {
	return strings.Join(m.Types, " ")
}

// IsOnvif reports whether the rendered service types carry the ONVIF marker.
func (m Match) IsOnvif() bool {
	return strings.Contains(m.ServiceTypes(), OnvifMarker)
}

func (m Match) key() string {
	return m.EndpointReference + "|" + m.TransportAddresses()
}

// ScopeInfo is what a device tells about itself through its ONVIF scopes.
type ScopeInfo struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Hardware string `json:"hardware,omitempty" yaml:"hardware,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	MAC      string `json:"mac,omitempty" yaml:"mac,omitempty"`
	Vendor   string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
}

// ScopeInfo parses the onvif://www.onvif.org/... scope URIs of the match.
func (m Match) ScopeInfo() ScopeInfo {
	var info ScopeInfo
	for _, scope := range m.Scopes {
		rest, ok := strings.CutPrefix(strings.TrimSpace(scope), onvifScopePrefix)
		if !ok {
			continue
		}
		kind, value, ok := strings.Cut(rest, "/")
		if !ok || value == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}

		switch strings.ToLower(kind) {
		case "name":
			info.Name = strings.ReplaceAll(value, "_", " ")
		case "hardware":
			info.Hardware = value
		case "location":
			info.Location = value
		case "mac":
			info.MAC = value
		}
	}

	if info.MAC != "" {
		info.Vendor = oui.Vendor(info.MAC)
	}
	return info
}

// parseProbeMatches decodes one datagram. Replies to a different probe return
// errWrongDiscoveryResponse.
func parseProbeMatches(messageID string, buffer []byte) ([]Match, error) {
	glog.V(2).Infof("Discover response: %s", string(buffer))

	mapXML, err := mxj.NewMapXml(buffer)
	if err != nil {
		return nil, err
	}

	relatesTo, err := mapXML.ValueForPath("Envelope.Header.RelatesTo")
	if err != nil {
		return nil, errWrongDiscoveryResponse
	}
	if strings.TrimSpace(textOf(relatesTo)) != messageID {
		return nil, errWrongDiscoveryResponse
	}

	namespaces := declaredNamespaces(buffer)

	values, err := mapXML.ValuesForPath("Envelope.Body.ProbeMatches.ProbeMatch")
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(values))
	for _, v := range values {
		pm, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		match := Match{
			XAddrs:          strings.Fields(textOf(pm["XAddrs"])),
			Scopes:          strings.Fields(textOf(pm["Scopes"])),
			MetadataVersion: strings.TrimSpace(textOf(pm["MetadataVersion"])),
		}
		if epr, ok := pm["EndpointReference"].(map[string]interface{}); ok {
			match.EndpointReference = strings.TrimSpace(textOf(epr["Address"]))
		}
		for _, qname := range strings.Fields(textOf(pm["Types"])) {
			match.Types = append(match.Types, expandQName(qname, namespaces))
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// textOf returns the character data of an mxj value. Elements that carry
// attributes (namespace declarations included) decode to a map holding "#text".
func textOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if s, ok := t["#text"].(string); ok {
			return s
		}
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := textOf(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// declaredNamespaces collects every xmlns:prefix declaration in the datagram.
// A prefix declared twice keeps its last binding.
func declaredNamespaces(buffer []byte) map[string]string {
	namespaces := make(map[string]string)
	for _, m := range xmlnsPattern.FindAllSubmatch(buffer, -1) {
		namespaces[string(m[1])] = string(m[2])
	}
	return namespaces
}

func expandQName(qname string, namespaces map[string]string) string {
	prefix, local, ok := strings.Cut(qname, ":")
	if !ok {
		return qname
	}
	if ns, found := namespaces[prefix]; found {
		return "{" + ns + "}" + local
	}
	return qname
}
