// Package onviftest provides an in-process ONVIF device for tests.
package onviftest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const (
	ActionGetCapabilities   = "http://www.onvif.org/ver10/device/wsdl/GetCapabilities"
	ActionGetDeviceInfo     = "http://www.onvif.org/ver10/device/wsdl/GetDeviceInformation"
	ActionGetHostname       = "http://www.onvif.org/ver10/device/wsdl/GetHostname"
	ActionGetSystemDateTime = "http://www.onvif.org/ver10/device/wsdl/GetSystemDateAndTime"
	ActionGetProfiles       = "http://www.onvif.org/ver10/media/wsdl/GetProfiles"
	ActionGetEncoderOptions = "http://www.onvif.org/ver10/media/wsdl/GetVideoEncoderConfigurationOptions"

	DeviceServicePath = "/onvif/device_service"
	MediaServicePath  = "/onvif/media_service"
)

// Resolution is a width and height advertised in the H264 options.
type Resolution struct{ Width, Height int }

// Request is one SOAP request the device received.
type Request struct {
	Path   string
	Action string
	Header http.Header
	Body   string
}

// Device answers the device and media service operations a metadata client
// needs. Exported fields are read on every request and must only be changed
// while no request is in flight.
type Device struct {
	*httptest.Server

	Hostname        string
	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareID      string
	Profiles        []string
	Resolutions     []Resolution
	FrameRateMin    int
	FrameRateMax    int
	PTZ             bool
	// PTZElement, when set, is served verbatim inside Capabilities in place
	// of the element PTZ would produce.
	PTZElement string
	// UTC is year, month, day, hour, minute, second.
	UTC [6]int

	mu       sync.Mutex
	down     bool
	faults   map[string]string
	digest   string
	requests []Request
}

// NewDevice starts a device with plausible defaults. Close it when done.
func NewDevice() *Device {
	d := &Device{
		Hostname:        "lobby-cam",
		Manufacturer:    "HIKVISION",
		Model:           "DS-2CD2143G0-I",
		FirmwareVersion: "V5.5.82 build 190909",
		SerialNumber:    "DS-2CD2143G0-I20190101AAWRD12345678",
		HardwareID:      "88",
		Profiles:        []string{"Profile_1", "Profile_2"},
		Resolutions:     []Resolution{{1920, 1080}, {1280, 720}, {640, 480}},
		FrameRateMin:    1,
		FrameRateMax:    25,
		PTZ:             false,
		UTC:             [6]int{2024, 3, 7, 9, 5, 2},
		faults:          make(map[string]string),
	}
	d.Server = httptest.NewServer(http.HandlerFunc(d.serve))
	return d
}

// Host returns host:port without a scheme.
func (d *Device) Host() string {
	return strings.TrimPrefix(d.URL, "http://")
}

// SetDown makes every request fail with HTTP 500 until called with false.
func (d *Device) SetDown(down bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.down = down
}

// Fault makes action answer with a SOAP fault carrying reason.
func (d *Device) Fault(action, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[action] = reason
}

// RequireDigest challenges requests without an Authorization header for the
// given user. Credentials are not verified.
func (d *Device) RequireDigest(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.digest = username
}

// Requests returns a copy of what the device received so far.
func (d *Device) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Request(nil), d.requests...)
}

func (d *Device) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	action := r.Header.Get("SOAPAction")

	d.mu.Lock()
	d.requests = append(d.requests, Request{Path: r.URL.Path, Action: action, Header: r.Header.Clone(), Body: string(body)})
	down, user := d.down, d.digest
	reason, faulted := d.faults[action]
	d.mu.Unlock()

	if down {
		http.Error(w, "service unavailable", http.StatusInternalServerError)
		return
	}
	if user != "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Digest ") || !strings.Contains(auth, `username="`+user+`"`) {
			w.Header().Set("WWW-Authenticate", `Digest realm="onvif", qop="auth", nonce="4e6f6e6365", algorithm=MD5`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	if faulted {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, envelope(fmt.Sprintf(`<SOAP-ENV:Fault><SOAP-ENV:Code><SOAP-ENV:Value>SOAP-ENV:Sender</SOAP-ENV:Value>`+
			`<SOAP-ENV:Subcode><SOAP-ENV:Value>ter:ActionNotSupported</SOAP-ENV:Value></SOAP-ENV:Subcode></SOAP-ENV:Code>`+
			`<SOAP-ENV:Reason><SOAP-ENV:Text xml:lang="en">%s</SOAP-ENV:Text></SOAP-ENV:Reason></SOAP-ENV:Fault>`, reason)))
		return
	}

	response, ok := d.respond(action)
	if !ok {
		http.Error(w, "unknown action "+action, http.StatusNotFound)
		return
	}
	io.WriteString(w, envelope(response))
}

func (d *Device) respond(action string) (string, bool) {
	switch action {
	case ActionGetCapabilities:
		ptz := d.PTZElement
		if ptz == "" && d.PTZ {
			ptz = `<tt:PTZ><tt:XAddr>` + d.URL + `/onvif/ptz_service</tt:XAddr></tt:PTZ>`
		}
		return `<tds:GetCapabilitiesResponse><tds:Capabilities>` +
			`<tt:Device><tt:XAddr>` + d.URL + DeviceServicePath + `</tt:XAddr></tt:Device>` +
			`<tt:Media><tt:XAddr>` + d.URL + MediaServicePath + `</tt:XAddr></tt:Media>` +
			ptz +
			`</tds:Capabilities></tds:GetCapabilitiesResponse>`, true

	case ActionGetDeviceInfo:
		return `<tds:GetDeviceInformationResponse>` +
			`<tds:Manufacturer>` + d.Manufacturer + `</tds:Manufacturer>` +
			`<tds:Model>` + d.Model + `</tds:Model>` +
			`<tds:FirmwareVersion>` + d.FirmwareVersion + `</tds:FirmwareVersion>` +
			`<tds:SerialNumber>` + d.SerialNumber + `</tds:SerialNumber>` +
			`<tds:HardwareId>` + d.HardwareID + `</tds:HardwareId>` +
			`</tds:GetDeviceInformationResponse>`, true

	case ActionGetHostname:
		return `<tds:GetHostnameResponse><tds:HostnameInformation>` +
			`<tt:FromDHCP>false</tt:FromDHCP><tt:Name>` + d.Hostname + `</tt:Name>` +
			`</tds:HostnameInformation></tds:GetHostnameResponse>`, true

	case ActionGetSystemDateTime:
		u := d.UTC
		return fmt.Sprintf(`<tds:GetSystemDateAndTimeResponse><tds:SystemDateAndTime>`+
			`<tt:DateTimeType>NTP</tt:DateTimeType><tt:DaylightSavings>false</tt:DaylightSavings>`+
			`<tt:UTCDateTime><tt:Time><tt:Hour>%d</tt:Hour><tt:Minute>%d</tt:Minute><tt:Second>%d</tt:Second></tt:Time>`+
			`<tt:Date><tt:Year>%d</tt:Year><tt:Month>%d</tt:Month><tt:Day>%d</tt:Day></tt:Date></tt:UTCDateTime>`+
			`</tds:SystemDateAndTime></tds:GetSystemDateAndTimeResponse>`,
			u[3], u[4], u[5], u[0], u[1], u[2]), true

	case ActionGetProfiles:
		var b strings.Builder
		b.WriteString(`<trt:GetProfilesResponse>`)
		for i, token := range d.Profiles {
			fmt.Fprintf(&b, `<trt:Profiles token="%s" fixed="true"><tt:Name>main%d</tt:Name>`+
				`<tt:VideoEncoderConfiguration token="VideoEncoder_%d"><tt:Name>enc</tt:Name></tt:VideoEncoderConfiguration>`+
				`</trt:Profiles>`, token, i+1, i+1)
		}
		b.WriteString(`</trt:GetProfilesResponse>`)
		return b.String(), true

	case ActionGetEncoderOptions:
		var b strings.Builder
		b.WriteString(`<trt:GetVideoEncoderConfigurationOptionsResponse><trt:Options>`)
		b.WriteString(`<tt:QualityRange><tt:Min>1</tt:Min><tt:Max>6</tt:Max></tt:QualityRange><tt:H264>`)
		for _, r := range d.Resolutions {
			fmt.Fprintf(&b, `<tt:ResolutionsAvailable><tt:Width>%d</tt:Width><tt:Height>%d</tt:Height></tt:ResolutionsAvailable>`, r.Width, r.Height)
		}
		fmt.Fprintf(&b, `<tt:GovLengthRange><tt:Min>1</tt:Min><tt:Max>400</tt:Max></tt:GovLengthRange>`+
			`<tt:FrameRateRange><tt:Min>%d</tt:Min><tt:Max>%d</tt:Max></tt:FrameRateRange>`+
			`<tt:H264ProfilesSupported>Main</tt:H264ProfilesSupported>`, d.FrameRateMin, d.FrameRateMax)
		b.WriteString(`</tt:H264></trt:Options></trt:GetVideoEncoderConfigurationOptionsResponse>`)
		return b.String(), true
	}
	return "", false
}

func envelope(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope"` +
		` xmlns:tds="http://www.onvif.org/ver10/device/wsdl"` +
		` xmlns:trt="http://www.onvif.org/ver10/media/wsdl"` +
		` xmlns:tt="http://www.onvif.org/ver10/schema"` +
		` xmlns:ter="http://www.onvif.org/ver10/error">` +
		`<SOAP-ENV:Body>` + body + `</SOAP-ENV:Body></SOAP-ENV:Envelope>`
}
