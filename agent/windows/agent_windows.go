package windows

import (
	"fmt"
	"io"
	"strings"

	"github.com/gonutz/w32/v2"
	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"

	"github.com/jetrmm/sysprobe/agent"
	"github.com/jetrmm/sysprobe/agent/common"
	"github.com/jetrmm/sysprobe/agent/config"
	"github.com/jetrmm/sysprobe/internal/registry"
)

func init() {
	agent.Register(windowsProvider{})
}

type windowsProvider struct{}

func (windowsProvider) Agent(logger *logrus.Logger, cfg *config.Config, version string) (agent.Agent, error) {
	a, err := NewAgent(logger, cfg, version)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type windowsAgent struct {
	common.Agent

	rt *common.Runtime
	// sys always talks to root\CIMV2 for the report; wmi uses the
	// configured namespace for raw queries.
	sys *common.WMIClient
	wmi *common.WMIClient
	reg *registry.Reader
}

// NewAgent initializes COM for the process. Close the agent to release it.
func NewAgent(logger *logrus.Logger, cfg *config.Config, version string) (*windowsAgent, error) {
	rt, err := common.InitRuntime(&comInitializer{logger: logger})
	if err != nil {
		return nil, err
	}

	return &windowsAgent{
		Agent: common.NewAgent(logger, cfg, version),
		rt:    rt,
		sys:   common.NewWMIClient(rt, oleConnector{}, logger, cfg.Policy()),
		wmi:   common.NewWMIClient(rt, oleConnector{}, logger, cfg.Policy()),
		reg:   registry.NewReader(regFetcher{}, localAllocator{}, logger),
	}, nil
}

func ensureConnected(c *common.WMIClient, namespace string) error {
	if c.Connected() {
		return nil
	}
	return c.Connect(namespace)
}

// Query runs SELECT fields FROM class in the configured namespace.
func (a *windowsAgent) Query(w io.Writer, class string, fields []string) error {
	if err := ensureConnected(a.wmi, a.Namespace); err != nil {
		return err
	}
	res, err := a.wmi.Query(class, fields)
	if err != nil {
		return err
	}
	return common.RenderQuery(w, class, res, a.Format())
}

// ReadValue reads a REG_SZ value below HKEY_LOCAL_MACHINE.
func (a *windowsAgent) ReadValue(path, name string) (string, error) {
	return a.reg.ReadString(registry.LocalMachine, path, name, registry.RRF_RT_REG_SZ)
}

// Close releases both WMI sessions, then COM.
func (a *windowsAgent) Close() error {
	a.sys.Release()
	a.wmi.Release()
	return a.rt.Close()
}

func (a *windowsAgent) statusLines() []string {
	lines := make([]string, 0, 4)

	if err := ensureConnected(a.sys, common.DEFAULT_NAMESPACE); err != nil {
		lines = append(lines, fmt.Sprintf("WMI (%s): %v", common.DEFAULT_NAMESPACE, err))
	} else {
		lines = append(lines, fmt.Sprintf("WMI (%s): connected", common.DEFAULT_NAMESPACE))
	}

	if ver, err := a.ReadValue(common.REG_CURRENT_VERSION, common.REG_DISPLAY_VERSION); err != nil {
		lines = append(lines, fmt.Sprintf("Windows version: %v", err))
	} else {
		lines = append(lines, "Windows version: "+ver)
	}

	var dest []string
	if a.ServerURL != "" {
		dest = append(dest, a.ServerURL)
	}
	if a.NatsURL != "" {
		dest = append(dest, a.NatsURL+" ("+a.NatsSubject+")")
	}
	if len(dest) == 0 {
		dest = append(dest, "none")
	}
	lines = append(lines, "Reporting to: "+strings.Join(dest, ", "))
	return lines
}

// ShowStatus checks WMI and registry access.
// If called from an interactive desktop, pops up a message box
// Otherwise prints to the console
func (a *windowsAgent) ShowStatus(version string) {
	lines := a.statusLines()

	if service.Interactive() {
		window := w32.GetForegroundWindow()
		if window != 0 {
			_, consoleProcID := w32.GetWindowThreadProcessId(window)
			if w32.GetCurrentProcessId() == consoleProcID {
				w32.ShowWindow(window, w32.SW_HIDE)
			}
			var handle w32.HWND
			w32.MessageBox(handle, strings.Join(lines, "\n\n"), fmt.Sprintf("%s v%s", common.AGENT_NAME_LONG, version), w32.MB_OK|w32.MB_ICONINFORMATION)
			return
		}
	}

	fmt.Println(common.AGENT_NAME_LONG, "Version", version)
	for _, l := range lines {
		fmt.Println(l)
	}
}
