package core

import (
	"net"
	"syscall"
)

// setReuseAddr sets SO_REUSEADDR on fd so the discovery broadcaster and
// listener can share one bound port. SO_REUSEPORT is deliberately not set —
// that is a platform-specific quirk left to the deployer.
func setReuseAddr(fd uintptr) error {
	return syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}

// enableBroadcast sets SO_BROADCAST on conn's underlying file descriptor so
// sends to 255.255.255.255 are not rejected by the kernel.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		setErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return setErr
}
