package windows

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/jetrmm/sysprobe/internal/registry"
)

// regFetcher issues RegGetValueW against the live registry.
type regFetcher struct{}

func (regFetcher) Fetch(root registry.Root, path, name string, flags registry.Flags, buf []byte) (uint32, error) {
	subKey, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	value, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}

	size := uint32(len(buf))
	var data unsafe.Pointer
	if len(buf) > 0 {
		data = unsafe.Pointer(&buf[0])
	}
	if err := RegGetValue(windows.Handle(root), subKey, value, uint32(flags), nil, data, &size); err != nil {
		return 0, err
	}
	return size, nil
}

// localAllocator hands out LocalAlloc memory so the buffer RegGetValueW
// writes into is owned by the native heap.
type localAllocator struct{}

func (localAllocator) Alloc(size uint32) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	p, err := windows.LocalAlloc(LMEM_FIXED, size)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), size), nil
}

func (localAllocator) Free(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	_, err := windows.LocalFree(windows.Handle(uintptr(unsafe.Pointer(&buf[0]))))
	return err
}
