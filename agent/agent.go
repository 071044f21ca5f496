package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/jetrmm/sysprobe/agent/common"
)

// Agent is what the command line drives. Each supported platform registers
// a provider for it.
type Agent interface {
	// SysInfo collects a report, renders it to w and ships it to the
	// configured reporters.
	SysInfo(ctx context.Context, w io.Writer) error
	// Query runs a raw WMI query and renders every row to w.
	Query(w io.Writer, class string, fields []string) error
	// ReadValue reads a string value below HKEY_LOCAL_MACHINE.
	ReadValue(path, name string) (string, error)
	ShowStatus(version string)
	Close() error
}

// ShowVersionInfo prints basic debugging info
func ShowVersionInfo(ver string) {
	fmt.Println(common.AGENT_NAME_LONG, ver, runtime.GOARCH, runtime.Version())
	if runtime.GOOS == "windows" {
		fmt.Println("Program Directory: ", filepath.Join(os.Getenv("ProgramFiles"), common.AGENT_FOLDER))
	}
}
