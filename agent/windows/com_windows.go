package windows

import (
	"runtime"

	ole "github.com/go-ole/go-ole"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// comInitializer brings COM up on the calling goroutine's OS thread, which
// stays locked until Uninitialize.
type comInitializer struct {
	logger *logrus.Logger
}

func (c *comInitializer) Initialize() error {
	runtime.LockOSThread()

	// S_FALSE means COM was already initialized on this thread.
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || (oleErr.Code() != S_OK && oleErr.Code() != S_FALSE) {
			runtime.UnlockOSThread()
			return err
		}
	}

	if err := CoInitializeSecurity(); err != nil {
		var oleErr *ole.OleError
		if errors.As(err, &oleErr) && oleErr.Code() == RPC_E_TOO_LATE {
			c.logger.Debugln("COM security already set for this process")
			return nil
		}
		ole.CoUninitialize()
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

func (c *comInitializer) Uninitialize() {
	ole.CoUninitialize()
	runtime.UnlockOSThread()
}
