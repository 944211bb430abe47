package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/lengxu/sensecam"
)

// render writes data as JSON or YAML. It reports false for text output so the
// caller can print its own table.
func render(w io.Writer, format string, data interface{}) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func printSnapshot(w io.Writer, s sensecam.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Address\t%s\n", s.Address)
	fmt.Fprintf(tw, "Hostname\t%s\n", s.Hostname)
	fmt.Fprintf(tw, "Manufacturer\t%s\n", s.Information.Manufacturer)
	fmt.Fprintf(tw, "Model\t%s\n", s.Information.Model)
	fmt.Fprintf(tw, "Firmware\t%s\n", s.Information.FirmwareVersion)
	fmt.Fprintf(tw, "MAC/Serial\t%s\n", s.Information.SerialNumber)
	fmt.Fprintf(tw, "Hardware ID\t%s\n", s.Information.HardwareID)
	fmt.Fprintf(tw, "Profile\t%s\n", s.Profile.Token)
	fmt.Fprintf(tw, "Resolutions\t%s\n", formatResolutions(s.Resolutions))
	fmt.Fprintf(tw, "Frame rate\t%d-%d fps\n", s.FrameRateRange.Min, s.FrameRateRange.Max)
	fmt.Fprintf(tw, "UTC clock\t%s %s\n", s.Date, s.Time)
	fmt.Fprintf(tw, "PTZ\t%t\n", s.PTZ)

	ops := make([]string, 0, len(s.Errors))
	for op := range s.Errors {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(tw, "Error (%s)\t%s\n", op, s.Errors[op])
	}
	tw.Flush()
}

func formatResolutions(resolutions []sensecam.Resolution) string {
	parts := make([]string, 0, len(resolutions))
	for _, r := range resolutions {
		parts = append(parts, fmt.Sprintf("%dx%d", r.Width, r.Height))
	}
	return strings.Join(parts, ", ")
}
