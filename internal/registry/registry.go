// Package registry reads single string values from the Windows registry
// using the size-then-fetch protocol of RegGetValueW. The native calls are
// supplied by the caller so the protocol itself runs on any platform.
package registry

import (
	"strings"

	"github.com/jetrmm/sysprobe/shared"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
)

// Root is a predefined registry key handle (HKEY).
type Root uintptr

const (
	ClassesRoot   Root = 0x80000000
	CurrentUser   Root = 0x80000001
	LocalMachine  Root = 0x80000002
	Users         Root = 0x80000003
	CurrentConfig Root = 0x80000005
)

// Flags restrict the value types RegGetValueW accepts (RRF_*).
type Flags uint32

const (
	RRF_RT_REG_NONE      Flags = 0x00000001
	RRF_RT_REG_SZ        Flags = 0x00000002
	RRF_RT_REG_EXPAND_SZ Flags = 0x00000004
	RRF_RT_REG_BINARY    Flags = 0x00000008
	RRF_RT_REG_DWORD     Flags = 0x00000010
	RRF_RT_REG_MULTI_SZ  Flags = 0x00000020
	RRF_RT_REG_QWORD     Flags = 0x00000040
	RRF_RT_ANY           Flags = 0x0000ffff
	RRF_NOEXPAND         Flags = 0x10000000
)

// WindowUnits is how many UTF-16 code units are searched for the NUL
// terminator. Longer values are cut at this length without an error.
const WindowUnits = 12

// Fetcher performs one RegGetValueW call. With a nil buf it only reports the
// size in bytes; otherwise it fills buf and reports the bytes written.
type Fetcher interface {
	Fetch(root Root, path, name string, flags Flags, buf []byte) (uint32, error)
}

// Allocator hands out byte buffers of an exact size. Every buffer returned
// by Alloc is passed to Free once.
type Allocator interface {
	Alloc(size uint32) ([]byte, error)
	Free(buf []byte) error
}

type Reader struct {
	fetcher Fetcher
	alloc   Allocator
	logger  *logrus.Logger
}

func NewReader(fetcher Fetcher, alloc Allocator, logger *logrus.Logger) *Reader {
	return &Reader{fetcher: fetcher, alloc: alloc, logger: logger}
}

// NormalizePath converts forward slashes to the backslashes the registry uses.
func NormalizePath(path string) string {
	return strings.ReplaceAll(path, "/", `\`)
}

// ReadString returns the text stored at root\path\name.
func (r *Reader) ReadString(root Root, path, name string, flags Flags) (value string, err error) {
	path = NormalizePath(path)

	size, err := r.fetcher.Fetch(root, path, name, flags, nil)
	if err != nil {
		return "", shared.Tag(shared.ErrRegistry, err, "size %s\\%s", path, name)
	}
	r.logger.Debugf("registry: %s\\%s needs %d bytes", path, name, size)

	buf, err := r.alloc.Alloc(size)
	if err != nil {
		return "", shared.Tag(shared.ErrRegistry, err, "allocate %d bytes for %s\\%s", size, path, name)
	}
	defer func() {
		if ferr := r.alloc.Free(buf); ferr != nil && err == nil {
			value, err = "", shared.Tag(shared.ErrRegistry, ferr, "free buffer for %s\\%s", path, name)
		}
	}()

	n, err := r.fetcher.Fetch(root, path, name, flags, buf)
	if err != nil {
		return "", shared.Tag(shared.ErrRegistry, err, "fetch %s\\%s", path, name)
	}
	data := buf
	if int(n) < len(data) {
		data = data[:n]
	}

	value, err = DecodeWindow(data)
	if err != nil {
		return "", shared.Tag(shared.ErrDecode, err, "decode %s\\%s", path, name)
	}
	return value, nil
}

// DecodeWindow decodes little-endian UTF-16 up to the first NUL found in the
// first WindowUnits code units, or the whole window if there is none.
// Unpaired surrogates become U+FFFD.
func DecodeWindow(buf []byte) (string, error) {
	units := len(buf) / 2
	if units > WindowUnits {
		units = WindowUnits
	}
	window := buf[:units*2]
	for i := 0; i < units; i++ {
		if window[2*i] == 0 && window[2*i+1] == 0 {
			window = window[:2*i]
			break
		}
	}

	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(window)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
