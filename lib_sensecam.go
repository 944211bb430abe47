package sensecam

import (
	"encoding/json"
	"strings"
)

// Result is the envelope returned by the JSON string API.
type Result struct {
	Error string
	Data  interface{}
}

// Snapshot collects every metadata query of one camera. Fields whose query
// failed are left empty and the failure is recorded in Errors under the
// query name.
type Snapshot struct {
	Address        string            `json:"address" yaml:"address"`
	Hostname       string            `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Information    DeviceInformation `json:"information" yaml:"information"`
	Profile        Profile           `json:"profile" yaml:"profile"`
	Resolutions    []Resolution      `json:"resolutions,omitempty" yaml:"resolutions,omitempty"`
	FrameRateRange FrameRateRange    `json:"frame_rate_range" yaml:"frame_rate_range"`
	Date           string            `json:"date,omitempty" yaml:"date,omitempty"`
	Time           string            `json:"time,omitempty" yaml:"time,omitempty"`
	PTZ            bool              `json:"ptz" yaml:"ptz"`
	Errors         map[string]string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Describe runs every query against c. Individual failures do not stop the
// remaining queries.
func Describe(c *Camera) Snapshot {
	s := Snapshot{Address: c.Address(), Profile: c.Profile()}
	record := func(op string, err error) {
		if err == nil {
			return
		}
		if s.Errors == nil {
			s.Errors = make(map[string]string)
		}
		s.Errors[op] = err.Error()
	}

	var err error
	s.Hostname, err = c.Hostname()
	record("hostname", err)
	s.Information, err = c.DeviceInformation()
	record("information", err)
	s.Resolutions, err = c.ResolutionsAvailable()
	record("resolutions", err)
	s.FrameRateRange, err = c.FrameRateRange()
	record("frame_rate_range", err)
	s.Date, err = c.Date()
	record("date", err)
	s.Time, err = c.Time()
	record("time", err)
	s.PTZ, err = c.IsPTZ()
	record("ptz", err)
	return s
}

// DiscoverJSON runs Discover and returns a JSON encoded Result. scope is a
// whitespace or comma separated list of local IPv4 addresses; an empty string
// means the host's own addresses.
func DiscoverJSON(scope string) string {
	result := Result{}

	var s Scope
	if fields := strings.FieldsFunc(scope, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' }); len(fields) > 0 {
		s = Scope(fields)
	}

	addrs, err := Discover(s)
	if err != nil {
		result.Error = err.Error()
	}
	result.Data = addrs
	return marshalResult(result)
}

// GetInformationJSON opens the camera at host and returns its Snapshot as a
// JSON encoded Result.
func GetInformationJSON(host, username, password string) string {
	result := Result{}

	cam, err := Open(host, username, password)
	if err != nil {
		result.Error = err.Error()
		return marshalResult(result)
	}

	result.Data = Describe(cam)
	return marshalResult(result)
}

func marshalResult(result Result) string {
	str, err := json.Marshal(result)
	if err != nil {
		str, _ = json.Marshal(Result{Error: err.Error()})
	}
	return string(str)
}
