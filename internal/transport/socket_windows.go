//go:build windows

package transport

import (
	"golang.org/x/sys/windows"
)

// setSocketOptions sets SO_REUSEADDR and SO_BROADCAST. Windows has no
// SO_REUSEPORT; SO_REUSEADDR already allows sharing the port.
func setSocketOptions(fd uintptr) error {
	h := windows.Handle(fd)
	if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
}
