package sensecam

import (
	"strings"
	"testing"
)

const testMessageID = "uuid:6f2c1c64-0d7e-4a5b-9a55-3e1bb1d0a9f1"

func probeMatchesXML(relatesTo string, matches ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope"
	xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing"
	xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery"
	xmlns:dn="http://www.onvif.org/ver10/network/wsdl"
	xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
<SOAP-ENV:Header>
	<wsa:MessageID>uuid:a1b2c3d4-0000-1111-2222-333344445555</wsa:MessageID>
	<wsa:RelatesTo>` + relatesTo + `</wsa:RelatesTo>
	<wsa:To>http://schemas.xmlsoap.org/ws/2004/08/addressing/role/anonymous</wsa:To>
	<wsa:Action>http://schemas.xmlsoap.org/ws/2005/04/discovery/ProbeMatches</wsa:Action>
</SOAP-ENV:Header>
<SOAP-ENV:Body><d:ProbeMatches>` + strings.Join(matches, "") + `</d:ProbeMatches></SOAP-ENV:Body>
</SOAP-ENV:Envelope>`
}

func probeMatchXML(epr, types, scopes, xaddrs string) string {
	return `<d:ProbeMatch>
	<wsa:EndpointReference><wsa:Address>` + epr + `</wsa:Address></wsa:EndpointReference>
	<d:Types>` + types + `</d:Types>
	<d:Scopes>` + scopes + `</d:Scopes>
	<d:XAddrs>` + xaddrs + `</d:XAddrs>
	<d:MetadataVersion>10</d:MetadataVersion>
</d:ProbeMatch>`
}

func TestParseProbeMatches(t *testing.T) {
	datagram := probeMatchesXML(testMessageID, probeMatchXML(
		"urn:uuid:0a940000-d700-11b5-84bd-98df82531003",
		"dn:NetworkVideoTransmitter tds:Device",
		"onvif://www.onvif.org/type/video_encoder onvif://www.onvif.org/name/IPC_Front onvif://www.onvif.org/hardware/DS-2CD2143G0",
		"http://192.168.1.50/onvif/device_service http://[fe80::1]/onvif/device_service",
	))

	matches, err := parseProbeMatches(testMessageID, []byte(datagram))
	if err != nil {
		t.Fatalf("parseProbeMatches() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}

	m := matches[0]
	if m.EndpointReference != "urn:uuid:0a940000-d700-11b5-84bd-98df82531003" {
		t.Errorf("EndpointReference = %q", m.EndpointReference)
	}
	if len(m.XAddrs) != 2 || m.XAddrs[0] != "http://192.168.1.50/onvif/device_service" {
		t.Errorf("XAddrs = %v", m.XAddrs)
	}
	wantTypes := []string{
		"{http://www.onvif.org/ver10/network/wsdl}NetworkVideoTransmitter",
		"{http://www.onvif.org/ver10/device/wsdl}Device",
	}
	if strings.Join(m.Types, "|") != strings.Join(wantTypes, "|") {
		t.Errorf("Types = %v, want %v", m.Types, wantTypes)
	}
	if !m.IsOnvif() {
		t.Errorf("IsOnvif() = false for an ONVIF transmitter")
	}
	if m.MetadataVersion != "10" {
		t.Errorf("MetadataVersion = %q", m.MetadataVersion)
	}
	if len(m.Scopes) != 3 {
		t.Errorf("Scopes = %v", m.Scopes)
	}
}

func TestParseProbeMatchesMultiple(t *testing.T) {
	datagram := probeMatchesXML(testMessageID,
		probeMatchXML("urn:uuid:1", "dn:NetworkVideoTransmitter", "", "http://10.0.0.2/onvif/device_service"),
		probeMatchXML("urn:uuid:2", "dn:NetworkVideoTransmitter", "", "http://10.0.0.3/onvif/device_service"),
	)

	matches, err := parseProbeMatches(testMessageID, []byte(datagram))
	if err != nil {
		t.Fatalf("parseProbeMatches() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[1].EndpointReference != "urn:uuid:2" {
		t.Errorf("second EndpointReference = %q", matches[1].EndpointReference)
	}
}

func TestParseProbeMatchesRejects(t *testing.T) {
	tests := []struct {
		name      string
		datagram  string
		wantWrong bool
	}{
		{
			name:      "other probe",
			datagram:  probeMatchesXML("uuid:someone-else", probeMatchXML("urn:uuid:1", "dn:NetworkVideoTransmitter", "", "http://10.0.0.2/")),
			wantWrong: true,
		},
		{
			name:      "hello without RelatesTo",
			datagram:  `<Envelope><Header><Action>Hello</Action></Header><Body/></Envelope>`,
			wantWrong: true,
		},
		{
			name:     "truncated xml",
			datagram: `<Envelope><Header><RelatesTo>` + testMessageID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := parseProbeMatches(testMessageID, []byte(tt.datagram))
			if err == nil {
				t.Fatalf("expected an error, got matches %v", matches)
			}
			if (err == errWrongDiscoveryResponse) != tt.wantWrong {
				t.Errorf("error = %v, wantWrong %v", err, tt.wantWrong)
			}
		})
	}
}

func TestExpandQName(t *testing.T) {
	ns := map[string]string{"dn": "http://www.onvif.org/ver10/network/wsdl"}

	if got := expandQName("dn:NetworkVideoTransmitter", ns); got != "{http://www.onvif.org/ver10/network/wsdl}NetworkVideoTransmitter" {
		t.Errorf("declared prefix: got %q", got)
	}
	if got := expandQName("wsdp:Device", ns); got != "wsdp:Device" {
		t.Errorf("undeclared prefix: got %q", got)
	}
	if got := expandQName("Device", ns); got != "Device" {
		t.Errorf("no prefix: got %q", got)
	}
}

func TestMatchScopeInfo(t *testing.T) {
	m := Match{Scopes: []string{
		"onvif://www.onvif.org/type/NetworkVideoTransmitter",
		"onvif://www.onvif.org/name/HIKVISION%20DS-2CD2143G0-I",
		"onvif://www.onvif.org/hardware/DS-2CD2143G0-I",
		"onvif://www.onvif.org/location/city/hangzhou",
		"http://example.com/unrelated",
	}}

	info := m.ScopeInfo()
	if info.Name != "HIKVISION DS-2CD2143G0-I" {
		t.Errorf("Name = %q", info.Name)
	}
	if info.Hardware != "DS-2CD2143G0-I" {
		t.Errorf("Hardware = %q", info.Hardware)
	}
	if info.Location != "city/hangzhou" {
		t.Errorf("Location = %q", info.Location)
	}
	if info.MAC != "" || info.Vendor != "" {
		t.Errorf("MAC/Vendor should be empty without a MAC scope, got %q/%q", info.MAC, info.Vendor)
	}
}

func TestMatchScopeInfoVendor(t *testing.T) {
	m := Match{Scopes: []string{
		"onvif://www.onvif.org/name/IPC",
		"onvif://www.onvif.org/MAC/44:19:b6:12:34:56",
	}}

	info := m.ScopeInfo()
	if info.MAC != "44:19:b6:12:34:56" {
		t.Errorf("MAC = %q", info.MAC)
	}
	if !strings.Contains(info.Vendor, "Hikvision") {
		t.Errorf("Vendor = %q, want the Hikvision OUI owner", info.Vendor)
	}
}

func TestTextOf(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"string", "a", "a"},
		{"element with attributes", map[string]interface{}{"-xmlns:dn": "x", "#text": "dn:Device"}, "dn:Device"},
		{"repeated elements", []interface{}{"http://a/", map[string]interface{}{"#text": "http://b/"}}, "http://a/ http://b/"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		if got := textOf(tt.in); got != tt.want {
			t.Errorf("%s: textOf() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
