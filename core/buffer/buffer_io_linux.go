//go:build linux
// +build linux

// File: core/buffer/buffer_io_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket I/O directly into and out of buffer storage.

package buffer

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/pool"
)

// ReadFd performs a single readv into the writable tail plus a pooled 64 KiB
// overflow region, then appends whatever spilled over. A would-block or
// interrupted read is returned unchanged for the caller to classify; 0 with
// a nil error means the peer closed.
func (b *Buffer) ReadFd(fd int) (int, error) {
	b.own(0)
	extra := pool.GetScratch()
	defer pool.PutScratch(extra)

	writable := b.Writable()
	iovs := [][]byte{b.st.data[b.writeIndex:], extra[:]}
	if writable >= len(extra) {
		iovs = iovs[:1]
	}
	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return 0, err
	}
	if n <= writable {
		b.writeIndex += n
	} else {
		b.writeIndex = b.Capacity()
		b.Append(extra[:n-writable])
	}
	return n, nil
}

// WriteFd performs a single write of the readable bytes. It does not consume
// them; the caller retrieves what was written.
func (b *Buffer) WriteFd(fd int) (int, error) {
	p := b.Peek()
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Write(fd, p)
	if err != nil {
		return 0, err
	}
	return n, nil
}
