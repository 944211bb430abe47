package sensecam

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/clbanning/mxj"
	"github.com/golang/glog"
)

const (
	// DevicePort is the ONVIF device management port used when an address
	// carries none.
	DevicePort = "80"

	deviceServicePath = "/onvif/device_service"
)

// Profile is the media profile a Camera queries encoder options for.
type Profile struct {
	Token             string `json:"token" yaml:"token"`
	Name              string `json:"name,omitempty" yaml:"name,omitempty"`
	VideoEncoderToken string `json:"video_encoder_token,omitempty" yaml:"video_encoder_token,omitempty"`
}

// DeviceInformation is the GetDeviceInformation response.
type DeviceInformation struct {
	Manufacturer    string `json:"manufacturer" yaml:"manufacturer"`
	Model           string `json:"model" yaml:"model"`
	FirmwareVersion string `json:"firmware_version" yaml:"firmware_version"`
	SerialNumber    string `json:"serial_number" yaml:"serial_number"`
	HardwareID      string `json:"hardware_id" yaml:"hardware_id"`
}

// Resolution is one encoder frame size in pixels.
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// FrameRateRange bounds the encoder frame rate in frames per second.
type FrameRateRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Option customises Open.
type Option func(*cameraOptions)

type cameraOptions struct {
	httpClient *http.Client
}

// WithHTTPClient sets the client SOAP requests go through. Its timeout bounds
// every query; digest authentication is layered on top.
func WithHTTPClient(c *http.Client) Option {
	return func(o *cameraOptions) { o.httpClient = c }
}

// Camera is an open session with one device's management and media services.
// Every query goes to the live device; only the default profile is kept.
// A Camera is safe for concurrent use.
type Camera struct {
	address string
	device  *soapClient
	media   *soapClient
	profile Profile
}

// Open connects to the device at address (an IP, host:port or device service
// URL), locates its media service and keeps its first media profile.
func Open(address, username, password string, opts ...Option) (*Camera, error) {
	var o cameraOptions
	for _, opt := range opts {
		opt(&o)
	}
	httpClient := newHTTPClient(o.httpClient, username, password)

	device := &soapClient{
		endpoint: deviceEndpoint(address),
		username: username,
		password: password,
		client:   httpClient,
	}

	caps, err := getCapabilities(device)
	if err != nil {
		return nil, &ConnectionError{Address: address, Err: err}
	}

	mediaXAddr, _ := caps.ValueForPathString("Media.XAddr")
	mediaXAddr = strings.TrimSpace(mediaXAddr)
	if mediaXAddr == "" {
		mediaXAddr = device.endpoint
	}
	media := &soapClient{
		endpoint: mediaXAddr,
		username: username,
		password: password,
		client:   httpClient,
	}

	profiles, err := getProfiles(media)
	if err != nil {
		return nil, &ConnectionError{Address: address, Err: err}
	}
	if len(profiles) == 0 {
		return nil, &ConnectionError{Address: address, Err: ErrNoProfiles}
	}

	glog.V(1).Infof("Opened %s, media %s, default profile %q", device.endpoint, media.endpoint, profiles[0].Token)
	return &Camera{
		address: address,
		device:  device,
		media:   media,
		profile: profiles[0],
	}, nil
}

func deviceEndpoint(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}
	host := address
	if _, _, err := net.SplitHostPort(address); err != nil {
		host = net.JoinHostPort(address, DevicePort)
	}
	return "http://" + host + deviceServicePath
}

// Address is the address the camera was opened with.
func (c *Camera) Address() string { return c.address }

// Profile returns the default media profile fetched by Open.
func (c *Camera) Profile() Profile { return c.profile }

func (c *Camera) queryError(op string, err error) error {
	return &DeviceQueryError{Op: op, Address: c.address, Err: err}
}

// Hostname asks the device for its configured hostname.
func (c *Camera) Hostname() (string, error) {
	body, err := c.device.call(nsDevice+"/GetHostname", `<tds:GetHostname/>`)
	if err != nil {
		return "", c.queryError("Hostname", err)
	}
	name, err := requireText(body, "GetHostnameResponse.HostnameInformation.Name")
	if err != nil {
		return "", c.queryError("Hostname", err)
	}
	return name, nil
}

// DeviceInformation fetches manufacturer, model, firmware, serial and
// hardware id in one call.
func (c *Camera) DeviceInformation() (DeviceInformation, error) {
	info, err := c.deviceInformation()
	if err != nil {
		return DeviceInformation{}, c.queryError("DeviceInformation", err)
	}
	return info, nil
}

func (c *Camera) deviceInformation() (DeviceInformation, error) {
	body, err := c.device.call(nsDevice+"/GetDeviceInformation", `<tds:GetDeviceInformation/>`)
	if err != nil {
		return DeviceInformation{}, err
	}
	if _, err := requireValue(body, "GetDeviceInformationResponse"); err != nil {
		return DeviceInformation{}, err
	}

	field := func(name string) string {
		s, _ := body.ValueForPath("GetDeviceInformationResponse." + name)
		return strings.TrimSpace(textOf(s))
	}
	return DeviceInformation{
		Manufacturer:    field("Manufacturer"),
		Model:           field("Model"),
		FirmwareVersion: field("FirmwareVersion"),
		SerialNumber:    field("SerialNumber"),
		HardwareID:      field("HardwareId"),
	}, nil
}

func (c *Camera) infoField(op string, pick func(DeviceInformation) string) (string, error) {
	info, err := c.deviceInformation()
	if err != nil {
		return "", c.queryError(op, err)
	}
	return pick(info), nil
}

// Manufacturer returns the device vendor name.
func (c *Camera) Manufacturer() (string, error) {
	return c.infoField("Manufacturer", func(i DeviceInformation) string { return i.Manufacturer })
}

// Model returns the device model.
func (c *Camera) Model() (string, error) {
	return c.infoField("Model", func(i DeviceInformation) string { return i.Model })
}

// FirmwareVersion returns the running firmware version.
func (c *Camera) FirmwareVersion() (string, error) {
	return c.infoField("FirmwareVersion", func(i DeviceInformation) string { return i.FirmwareVersion })
}

// MACAddress returns the serial number field, which many cameras fill with
// their MAC.
func (c *Camera) MACAddress() (string, error) {
	return c.infoField("MACAddress", func(i DeviceInformation) string { return i.SerialNumber })
}

// HardwareID returns the hardware identifier reported by the device.
func (c *Camera) HardwareID() (string, error) {
	return c.infoField("HardwareID", func(i DeviceInformation) string { return i.HardwareID })
}

// ResolutionsAvailable lists the H264 resolutions of the default profile in
// the order the device reports them.
func (c *Camera) ResolutionsAvailable() ([]Resolution, error) {
	h264, err := c.h264Options()
	if err != nil {
		return nil, c.queryError("ResolutionsAvailable", err)
	}

	values, err := h264.ValuesForPath("ResolutionsAvailable")
	if err != nil {
		return nil, c.queryError("ResolutionsAvailable", err)
	}
	resolutions := make([]Resolution, 0, len(values))
	for _, v := range values {
		res, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		width, err := intOf(res["Width"])
		if err != nil {
			return nil, c.queryError("ResolutionsAvailable", fmt.Errorf("width: %w", err))
		}
		height, err := intOf(res["Height"])
		if err != nil {
			return nil, c.queryError("ResolutionsAvailable", fmt.Errorf("height: %w", err))
		}
		resolutions = append(resolutions, Resolution{Width: width, Height: height})
	}
	return resolutions, nil
}

// FrameRateRange returns the H264 frame rate bounds of the default profile.
func (c *Camera) FrameRateRange() (FrameRateRange, error) {
	h264, err := c.h264Options()
	if err != nil {
		return FrameRateRange{}, c.queryError("FrameRateRange", err)
	}
	lo, err := requireInt(h264, "FrameRateRange.Min")
	if err != nil {
		return FrameRateRange{}, c.queryError("FrameRateRange", err)
	}
	hi, err := requireInt(h264, "FrameRateRange.Max")
	if err != nil {
		return FrameRateRange{}, c.queryError("FrameRateRange", err)
	}
	return FrameRateRange{Min: lo, Max: hi}, nil
}

func (c *Camera) h264Options() (mxj.Map, error) {
	request := `<trt:GetVideoEncoderConfigurationOptions>` +
		`<trt:ProfileToken>` + xmlEscaper.Replace(c.profile.Token) + `</trt:ProfileToken>` +
		`</trt:GetVideoEncoderConfigurationOptions>`
	body, err := c.media.call(nsMedia+"/GetVideoEncoderConfigurationOptions", request)
	if err != nil {
		return nil, err
	}
	v, err := requireValue(body, "GetVideoEncoderConfigurationOptionsResponse.Options.H264")
	if err != nil {
		return nil, err
	}
	h264, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("empty H264 options")
	}
	return mxj.Map(h264), nil
}

// Date returns the device's UTC date as YYYY-MM-DD.
func (c *Camera) Date() (string, error) {
	utc, err := c.utcDateTime()
	if err != nil {
		return "", c.queryError("Date", err)
	}
	return c.formatTriple("Date", utc, "%04d-%02d-%02d", "Date.Year", "Date.Month", "Date.Day")
}

// Time returns the device's UTC time of day as HH:MM:SS.
func (c *Camera) Time() (string, error) {
	utc, err := c.utcDateTime()
	if err != nil {
		return "", c.queryError("Time", err)
	}
	return c.formatTriple("Time", utc, "%02d:%02d:%02d", "Time.Hour", "Time.Minute", "Time.Second")
}

func (c *Camera) formatTriple(op string, m mxj.Map, format string, paths ...string) (string, error) {
	parts := make([]interface{}, 0, len(paths))
	for _, path := range paths {
		n, err := requireInt(m, path)
		if err != nil {
			return "", c.queryError(op, err)
		}
		parts = append(parts, n)
	}
	return fmt.Sprintf(format, parts...), nil
}

func (c *Camera) utcDateTime() (mxj.Map, error) {
	body, err := c.device.call(nsDevice+"/GetSystemDateAndTime", `<tds:GetSystemDateAndTime/>`)
	if err != nil {
		return nil, err
	}
	v, err := requireValue(body, "GetSystemDateAndTimeResponse.SystemDateAndTime.UTCDateTime")
	if err != nil {
		return nil, err
	}
	utc, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("empty UTCDateTime")
	}
	return mxj.Map(utc), nil
}

// IsPTZ reports whether the device advertises a PTZ capability. A missing or
// empty PTZ element is false, not an error; attributes alone leave it empty.
func (c *Camera) IsPTZ() (bool, error) {
	caps, err := getCapabilities(c.device)
	if err != nil {
		return false, c.queryError("IsPTZ", err)
	}
	v, err := caps.ValueForPath("PTZ")
	if err != nil || v == nil {
		return false, nil
	}
	return populated(v), nil
}

// populated reports whether an mxj element has content. Attributes, namespace
// declarations included, do not count.
func populated(v interface{}) bool {
	t, ok := v.(map[string]interface{})
	if !ok {
		return strings.TrimSpace(textOf(v)) != ""
	}
	for key, child := range t {
		switch {
		case strings.HasPrefix(key, "-"):
		case key == "#text":
			if strings.TrimSpace(textOf(child)) != "" {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// getCapabilities returns the Capabilities element of GetCapabilities.
func getCapabilities(device *soapClient) (mxj.Map, error) {
	request := `<tds:GetCapabilities><tds:Category>All</tds:Category></tds:GetCapabilities>`
	body, err := device.call(nsDevice+"/GetCapabilities", request)
	if err != nil {
		return nil, err
	}
	v, err := requireValue(body, "GetCapabilitiesResponse.Capabilities")
	if err != nil {
		return nil, err
	}
	caps, ok := v.(map[string]interface{})
	if !ok {
		return mxj.Map{}, nil
	}
	return mxj.Map(caps), nil
}

func getProfiles(media *soapClient) ([]Profile, error) {
	body, err := media.call(nsMedia+"/GetProfiles", `<trt:GetProfiles/>`)
	if err != nil {
		return nil, err
	}
	if _, err := requireValue(body, "GetProfilesResponse"); err != nil {
		return nil, err
	}

	values, err := body.ValuesForPath("GetProfilesResponse.Profiles")
	if err != nil {
		return nil, err
	}
	profiles := make([]Profile, 0, len(values))
	for _, v := range values {
		p, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		profile := Profile{
			Token: textOf(p["-token"]),
			Name:  strings.TrimSpace(textOf(p["Name"])),
		}
		if vec, ok := p["VideoEncoderConfiguration"].(map[string]interface{}); ok {
			profile.VideoEncoderToken = textOf(vec["-token"])
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func requireValue(m mxj.Map, path string) (interface{}, error) {
	v, err := m.ValueForPath(path)
	if err != nil || v == nil {
		return nil, fmt.Errorf("response is missing %s", path)
	}
	return v, nil
}

func requireText(m mxj.Map, path string) (string, error) {
	v, err := requireValue(m, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(textOf(v)), nil
}

func requireInt(m mxj.Map, path string) (int, error) {
	v, err := requireValue(m, path)
	if err != nil {
		return 0, err
	}
	n, err := intOf(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

func intOf(v interface{}) (int, error) {
	return strconv.Atoi(strings.TrimSpace(textOf(v)))
}
