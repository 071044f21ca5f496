package common

import (
	ps "github.com/elastic/go-sysinfo"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/jetrmm/sysprobe/shared"
)

// CollectHostInfo gathers the OS-independent host facts. Memory and CPU
// counts are best effort and left zero when unavailable.
func CollectHostInfo(logger *logrus.Logger) (*shared.HostInfo, error) {
	host, err := ps.Host()
	if err != nil {
		return nil, err
	}
	info := host.Info()

	ret := &shared.HostInfo{
		Hostname:     info.Hostname,
		Architecture: info.Architecture,
		BootTime:     info.BootTime,
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		logger.Debugln("VirtualMemory:", err)
	} else {
		ret.TotalMemory = vm.Total
	}

	if n, err := cpu.Counts(true); err != nil {
		logger.Debugln("cpu.Counts:", err)
	} else {
		ret.LogicalCPUs = n
	}
	return ret, nil
}
