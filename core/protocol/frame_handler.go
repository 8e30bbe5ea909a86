//go:build linux
// +build linux

// File: core/protocol/frame_handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/core/buffer"
	"github.com/momentics/hioload-net/logging"
	"github.com/momentics/hioload-net/reactor"
)

// FrameCallback receives one decoded frame. The frame is released when the
// callback returns; Clone it to keep the bytes.
type FrameCallback func(c *reactor.Connection, frame *buffer.Buffer, receiveTime time.Time)

// FrameHandler turns d into a message callback that delivers every complete
// frame in arrival order. A decode error force-closes the connection and
// discards the pending input.
func FrameHandler(d Decoder, cb FrameCallback) reactor.MessageCallback {
	logger := logging.Named("protocol")
	return func(c *reactor.Connection, in *buffer.Buffer, receiveTime time.Time) {
		for c.Connected() {
			frame, err := d.Decode(in)
			if err != nil {
				logger.Warn("decode failed, closing",
					zap.String("conn", c.Name()),
					zap.Int("buffered", in.Readable()),
					zap.Error(err))
				in.RetrieveAll()
				c.ForceClose()
				return
			}
			if frame == nil {
				return
			}
			cb(c, frame, receiveTime)
			frame.Release()
		}
	}
}
