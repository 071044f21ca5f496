package windows

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/jetrmm/sysprobe/agent/common"
)

// windowsEnv answers the questions WMI does not.
type windowsEnv struct{}

func (windowsEnv) FirmwareType() (string, error) {
	if v := os.Getenv(ENV_FIRMWARE_TYPE); v != "" {
		return v, nil
	}
	ft, err := GetFirmwareType()
	if err != nil {
		return "", err
	}
	switch ft {
	case FIRMWARE_TYPE_BIOS:
		return "BIOS", nil
	case FIRMWARE_TYPE_UEFI:
		return "UEFI", nil
	default:
		return "Unknown", nil
	}
}

func (windowsEnv) Now() time.Time { return time.Now() }

// SysInfo collects the report, renders it to w and sends it on.
func (a *windowsAgent) SysInfo(ctx context.Context, w io.Writer) error {
	if err := ensureConnected(a.sys, common.DEFAULT_NAMESPACE); err != nil {
		return err
	}

	r, err := a.Collect(common.Sources{Querier: a.sys, Reader: a.reg, Env: windowsEnv{}}, time.Now())
	if err != nil {
		return err
	}
	if len(r.Errors) > 0 {
		a.Logger.Warnf("Sysinfo %s collected with %d failed section(s)", r.ID, len(r.Errors))
	}
	return a.Publish(ctx, w, r)
}
