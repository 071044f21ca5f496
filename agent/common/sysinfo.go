package common

import (
	"time"

	"github.com/jetrmm/sysprobe/internal/registry"
	"github.com/jetrmm/sysprobe/shared"
)

const (
	CLASS_OS        = "Win32_OperatingSystem"
	CLASS_COMPUTER  = "Win32_ComputerSystem"
	CLASS_PROCESSOR = "Win32_Processor"
	CLASS_VIDEO     = "Win32_VideoController"

	REG_CURRENT_VERSION = `SOFTWARE\Microsoft\Windows NT\CurrentVersion`
	REG_DISPLAY_VERSION = "DisplayVersion"

	// CurrentVoltage carries tenths of a volt in bits 0-6 when bit 7 is set.
	VOLTAGE_VALID_BIT = 0x0080
	VOLTAGE_MASK      = 0x007f
)

var (
	osFields        = []string{"Caption", "Version", "InstallDate", "LastBootUpTime"}
	computerFields  = []string{"UserName", "Domain", "BootupState", "Model"}
	processorFields = []string{"Name", "NumberOfCores", "ThreadCount", "CurrentClockSpeed", "CurrentVoltage",
		"MaxClockSpeed", "SocketDesignation", "LoadPercentage", "VoltageCaps"}
	videoFields = []string{"Name", "AdapterRAM", "CurrentHorizontalResolution", "CurrentVerticalResolution",
		"CurrentRefreshRate", "CurrentBitsPerPixel"}
)

// Querier is the part of WMIClient the record builders use.
type Querier interface {
	Query(class string, fields []string) (QueryResult, error)
}

// ValueReader reads one registry string.
type ValueReader interface {
	ReadString(root registry.Root, path, name string, flags registry.Flags) (string, error)
}

// Environment supplies facts that do not come from WMI.
type Environment interface {
	FirmwareType() (string, error)
	Now() time.Time
}

// first returns the first row of class or a missing-field error naming the
// first requested field.
func first(q Querier, class string, fields []string) (FieldMap, error) {
	rows, err := q.Query(class, fields)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &shared.MissingFieldError{Class: class, Field: fields[0]}
	}
	return rows[0], nil
}

func required(class string, m FieldMap, name string) (string, error) {
	v, err := m.Required(name)
	if err != nil {
		return "", &shared.MissingFieldError{Class: class, Field: name}
	}
	return v, nil
}

// BuildOSInfo assembles the operating system summary.
func BuildOSInfo(q Querier, r ValueReader, env Environment) (*shared.OSInfo, error) {
	osRow, err := first(q, CLASS_OS, osFields)
	if err != nil {
		return nil, err
	}
	csRow, err := first(q, CLASS_COMPUTER, computerFields)
	if err != nil {
		return nil, err
	}

	info := &shared.OSInfo{}
	for _, f := range []struct {
		class string
		row   FieldMap
		name  string
		dst   *string
	}{
		{CLASS_OS, osRow, "Caption", &info.Edition},
		{CLASS_OS, osRow, "Version", &info.Version},
		{CLASS_COMPUTER, csRow, "UserName", &info.Username},
		{CLASS_COMPUTER, csRow, "Domain", &info.Domain},
		{CLASS_COMPUTER, csRow, "BootupState", &info.BootState},
		{CLASS_COMPUTER, csRow, "Model", &info.Model},
	} {
		if *f.dst, err = required(f.class, f.row, f.name); err != nil {
			return nil, err
		}
	}

	if info.InstallDate, err = osRow.Timestamp("InstallDate"); err != nil {
		return nil, err
	}
	boot, err := osRow.Timestamp("LastBootUpTime")
	if err != nil {
		return nil, err
	}
	info.Uptime = env.Now().Unix() - boot

	if info.FriendlyVersion, err = r.ReadString(registry.LocalMachine, REG_CURRENT_VERSION, REG_DISPLAY_VERSION, registry.RRF_RT_REG_SZ); err != nil {
		return nil, err
	}
	if info.BootMode, err = env.FirmwareType(); err != nil {
		return nil, err
	}
	return info, nil
}

// BuildProcessorInfo returns one record per processor socket.
func BuildProcessorInfo(q Querier) ([]shared.ProcessorInfo, error) {
	rows, err := q.Query(CLASS_PROCESSOR, processorFields)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &shared.MissingFieldError{Class: CLASS_PROCESSOR, Field: "Name"}
	}

	ret := make([]shared.ProcessorInfo, 0, len(rows))
	for _, row := range rows {
		p, err := processorFromRow(row)
		if err != nil {
			return nil, err
		}
		ret = append(ret, p)
	}
	return ret, nil
}

func processorFromRow(row FieldMap) (p shared.ProcessorInfo, err error) {
	if p.Name, err = required(CLASS_PROCESSOR, row, "Name"); err != nil {
		return p, err
	}
	if p.Socket, err = required(CLASS_PROCESSOR, row, "SocketDesignation"); err != nil {
		return p, err
	}

	for _, f := range []struct {
		name string
		dst  *uint32
	}{
		{"NumberOfCores", &p.Cores},
		{"ThreadCount", &p.Threads},
		{"CurrentClockSpeed", &p.CurrentClockSpeed},
		{"MaxClockSpeed", &p.MaxClockSpeed},
	} {
		n, err := row.Uint(f.name, 32)
		if err != nil {
			return p, err
		}
		*f.dst = uint32(n)
	}

	voltage, err := row.OptionalUint("CurrentVoltage", 16)
	if err != nil {
		return p, err
	}
	if voltage != nil && *voltage&VOLTAGE_VALID_BIT != 0 {
		v := uint16(*voltage&VOLTAGE_MASK) * 10
		p.CurrentVoltage = &v
	}

	load, err := row.OptionalUint("LoadPercentage", 16)
	if err != nil {
		return p, err
	}
	if load != nil {
		l := uint16(*load)
		p.LoadPercentage = &l
	}

	if _, err = required(CLASS_PROCESSOR, row, "VoltageCaps"); err != nil {
		return p, err
	}
	if caps, ok := row.Optional("VoltageCaps"); ok {
		p.VoltageCaps = &caps
	}
	return p, nil
}

// BuildGraphicsInfo returns one record per video controller. A machine
// without one yields an empty slice.
func BuildGraphicsInfo(q Querier) ([]shared.GraphicsInfo, error) {
	rows, err := q.Query(CLASS_VIDEO, videoFields)
	if err != nil {
		return nil, err
	}

	ret := make([]shared.GraphicsInfo, 0, len(rows))
	for _, row := range rows {
		var g shared.GraphicsInfo
		if g.Name, err = required(CLASS_VIDEO, row, "Name"); err != nil {
			return nil, err
		}
		if g.AdapterRAM, err = row.OptionalUint("AdapterRAM", 64); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			name string
			dst  **uint32
		}{
			{"CurrentHorizontalResolution", &g.HorizontalResolution},
			{"CurrentVerticalResolution", &g.VerticalResolution},
			{"CurrentRefreshRate", &g.RefreshRate},
			{"CurrentBitsPerPixel", &g.BitsPerPixel},
		} {
			n, err := row.OptionalUint(f.name, 32)
			if err != nil {
				return nil, err
			}
			if n != nil {
				v := uint32(*n)
				*f.dst = &v
			}
		}
		ret = append(ret, g)
	}
	return ret, nil
}

// BuildHardwareInfo groups the processor and graphics records.
func BuildHardwareInfo(q Querier) (*shared.HardwareInfo, error) {
	cpus, err := BuildProcessorInfo(q)
	if err != nil {
		return nil, err
	}
	gpus, err := BuildGraphicsInfo(q)
	if err != nil {
		return nil, err
	}
	return &shared.HardwareInfo{Processors: cpus, Graphics: gpus}, nil
}
