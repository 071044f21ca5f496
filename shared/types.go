package shared

import (
	"fmt"
	"strings"
	"time"
)

// FieldErrorPolicy decides what a WMI query does when a single property of a
// row cannot be read.
type FieldErrorPolicy string

const (
	FieldErrorSkip  FieldErrorPolicy = "skip"  // drop the property, keep the row
	FieldErrorEmpty FieldErrorPolicy = "empty" // record the property as ""
	FieldErrorFail  FieldErrorPolicy = "fail"  // abort the query
)

// ParseFieldErrorPolicy is case-insensitive; an empty string selects skip.
func ParseFieldErrorPolicy(s string) (FieldErrorPolicy, error) {
	switch p := FieldErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FieldErrorSkip, nil
	case FieldErrorSkip, FieldErrorEmpty, FieldErrorFail:
		return p, nil
	default:
		return "", fmt.Errorf("unknown field error policy %q (want skip, empty or fail)", s)
	}
}

type OSInfo struct {
	Edition         string `json:"edition" yaml:"edition"`
	Version         string `json:"version" yaml:"version"`
	FriendlyVersion string `json:"friendly_version" yaml:"friendly_version"`
	InstallDate     int64  `json:"install_date" yaml:"install_date"` // unix seconds
	Uptime          int64  `json:"uptime" yaml:"uptime"`             // seconds
	Username        string `json:"username" yaml:"username"`
	Domain          string `json:"domain" yaml:"domain"`
	BootMode        string `json:"boot_mode" yaml:"boot_mode"`
	BootState       string `json:"boot_state" yaml:"boot_state"`
	Model           string `json:"model" yaml:"model"`
}

type ProcessorInfo struct {
	Name              string  `json:"name" yaml:"name"`
	Cores             uint32  `json:"cores" yaml:"cores"`
	Threads           uint32  `json:"threads" yaml:"threads"`
	CurrentClockSpeed uint32  `json:"current_clock_speed" yaml:"current_clock_speed"` // MHz
	CurrentVoltage    *uint16 `json:"current_voltage,omitempty" yaml:"current_voltage,omitempty"` // tenths of a volt
	MaxClockSpeed     uint32  `json:"max_clock_speed" yaml:"max_clock_speed"`
	Socket            string  `json:"socket" yaml:"socket"`
	LoadPercentage    *uint16 `json:"load_percentage,omitempty" yaml:"load_percentage,omitempty"`
	VoltageCaps       *string `json:"voltage_caps,omitempty" yaml:"voltage_caps,omitempty"`
}

// GraphicsInfo describes one video controller. The display fields are nil
// when the adapter is not driving an output.
type GraphicsInfo struct {
	Name                 string  `json:"name" yaml:"name"`
	AdapterRAM           *uint64 `json:"adapter_ram,omitempty" yaml:"adapter_ram,omitempty"`
	HorizontalResolution *uint32 `json:"horizontal_resolution,omitempty" yaml:"horizontal_resolution,omitempty"`
	VerticalResolution   *uint32 `json:"vertical_resolution,omitempty" yaml:"vertical_resolution,omitempty"`
	RefreshRate          *uint32 `json:"refresh_rate,omitempty" yaml:"refresh_rate,omitempty"`
	BitsPerPixel         *uint32 `json:"bits_per_pixel,omitempty" yaml:"bits_per_pixel,omitempty"`
}

type HardwareInfo struct {
	Processors []ProcessorInfo `json:"processors" yaml:"processors"`
	Graphics   []GraphicsInfo  `json:"graphics" yaml:"graphics"`
}

type HostInfo struct {
	Hostname     string    `json:"hostname" yaml:"hostname"`
	Architecture string    `json:"architecture" yaml:"architecture"`
	BootTime     time.Time `json:"boot_time" yaml:"boot_time"`
	TotalMemory  uint64    `json:"total_memory" yaml:"total_memory"`
	LogicalCPUs  int       `json:"logical_cpus" yaml:"logical_cpus"`
}

// Report is one collection pass. A record that could not be built is left
// nil and its failure is listed in Errors.
type Report struct {
	ID          string            `json:"id" yaml:"id"`
	AgentID     string            `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	CollectedAt time.Time         `json:"collected_at" yaml:"collected_at"`
	Host        *HostInfo         `json:"host,omitempty" yaml:"host,omitempty"`
	OS          *OSInfo           `json:"os,omitempty" yaml:"os,omitempty"`
	Hardware    *HardwareInfo     `json:"hardware,omitempty" yaml:"hardware,omitempty"`
	Errors      map[string]string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Fail records a collector failure under name.
func (r *Report) Fail(name string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[name] = err.Error()
}

// OutputFormat selects how reports and query results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// ParseOutputFormat is case-insensitive; an empty string selects text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputText, nil
	case OutputText, OutputJSON, OutputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}
