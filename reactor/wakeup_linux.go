//go:build linux
// +build linux

// File: reactor/wakeup_linux.go
// Author: momentics <momentics@gmail.com>
//
// eventfd wake descriptor and the one-second timerfd that drives the wheel.

package reactor

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

func createWakeFd() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("eventfd: %w", err)
	}
	return fd, nil
}

// writeWake adds one to the eventfd counter. It returns the bytes written.
func writeWake(fd int) (int, error) {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	return unix.Write(fd, buf[:])
}

// readCounter drains an eventfd or timerfd and returns its 8-byte counter.
func readCounter(fd int) (uint64, int, error) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil || n != len(buf) {
		return 0, n, err
	}
	return binary.NativeEndian.Uint64(buf[:]), n, nil
}

func createTimerFd(interval int64) (int, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("timerfd create: %w", err)
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(interval),
		Value:    unix.NsecToTimespec(interval),
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("timerfd settime: %w", err)
	}
	return fd, nil
}
