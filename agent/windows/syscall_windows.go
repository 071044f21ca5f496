package windows

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	modadvapi32 = windows.NewLazySystemDLL("advapi32.dll")
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modole32    = windows.NewLazySystemDLL("ole32.dll")
	modoleaut32 = windows.NewLazySystemDLL("oleaut32.dll")

	procRegGetValueW         = modadvapi32.NewProc("RegGetValueW")
	procGetFirmwareType      = modkernel32.NewProc("GetFirmwareType")
	procCoInitializeSecurity = modole32.NewProc("CoInitializeSecurity")
	procVarFormat            = modoleaut32.NewProc("VarFormat")
)

func FAILED(hresult uintptr) bool {
	return int32(hresult) < 0
}

// RegGetValue calls RegGetValueW. A nil data pointer asks only for the size.
func RegGetValue(key windows.Handle, subKey, value *uint16, flags uint32, valType *uint32, data unsafe.Pointer, dataLen *uint32) error {
	r0, _, _ := syscall.SyscallN(procRegGetValueW.Addr(), uintptr(key), uintptr(unsafe.Pointer(subKey)), uintptr(unsafe.Pointer(value)),
		uintptr(flags), uintptr(unsafe.Pointer(valType)), uintptr(data), uintptr(unsafe.Pointer(dataLen)))
	if r0 != 0 {
		return syscall.Errno(r0)
	}
	return nil
}

// GetFirmwareType returns one of the FIRMWARE_TYPE_* values.
func GetFirmwareType() (uint32, error) {
	var ft uint32
	r1, _, e1 := syscall.SyscallN(procGetFirmwareType.Addr(), uintptr(unsafe.Pointer(&ft)))
	if r1 == 0 {
		if e1 != 0 {
			return 0, error(e1)
		}
		return 0, syscall.EINVAL
	}
	return ft, nil
}

// CoInitializeSecurity sets the process-wide COM security levels WMI needs.
func CoInitializeSecurity() error {
	hres, _, _ := procCoInitializeSecurity.Call(
		uintptr(0),
		uintptr(0xFFFFFFFF),                  // COM authentication
		uintptr(0),                           // Authentication services
		uintptr(0),                           // Reserved
		uintptr(RPC_C_AUTHN_LEVEL_DEFAULT),   // Default authentication
		uintptr(RPC_C_IMP_LEVEL_IMPERSONATE), // Default Impersonation
		uintptr(0),                           // Authentication info
		uintptr(EOAC_NONE),                   // Additional capabilities
		uintptr(0))                           // Reserved
	if FAILED(hres) {
		return ole.NewError(hres)
	}
	return nil
}

// VarFormat renders a VARIANT as text using the user's locale.
func VarFormat(v *ole.VARIANT) (string, error) {
	var out *uint16
	hres, _, _ := procVarFormat.Call(uintptr(unsafe.Pointer(v)), 0, 0, 0, 0, uintptr(unsafe.Pointer(&out)))
	if FAILED(hres) {
		return "", ole.NewError(hres)
	}
	if out == nil {
		return "", nil
	}
	defer ole.SysFreeString((*int16)(unsafe.Pointer(out)))
	return ole.BstrToString(out), nil
}
