// File: core/protocol/length_field.go
// Package protocol implements length-field framing with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame layout seen by the decoder:
//
//	| header (LengthFieldOffset) | length (LengthFieldLength) | body |
//
// frameLength = LengthFieldOffset + LengthFieldLength + length + LengthAdjustment

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/core/buffer"
)

// Decoder extracts at most one frame per call. A nil frame with a nil error
// means more input is needed.
type Decoder interface {
	Decode(in *buffer.Buffer) (*buffer.Buffer, error)
}

// LengthFieldConfig configures a LengthFieldDecoder.
type LengthFieldConfig struct {
	MaxFrameLength      int              // upper bound on frameLength
	LengthFieldOffset   int              // bytes before the length field
	LengthFieldLength   int              // 1, 2, 4 or 8
	LengthAdjustment    int              // added to the decoded length; may be negative
	InitialBytesToStrip int              // dropped from the front of every frame
	ByteOrder           binary.ByteOrder // defaults to big endian
}

// LengthFieldDecoder is stateless; one instance may serve many connections
// as long as each call happens on the connection's loop.
type LengthFieldDecoder struct {
	cfg LengthFieldConfig
}

var _ Decoder = (*LengthFieldDecoder)(nil)

// NewLengthFieldDecoder validates cfg.
func NewLengthFieldDecoder(cfg LengthFieldConfig) (*LengthFieldDecoder, error) {
	if err := checkFieldLength(cfg.LengthFieldLength); err != nil {
		return nil, err
	}
	if cfg.MaxFrameLength <= 0 || cfg.LengthFieldOffset < 0 || cfg.InitialBytesToStrip < 0 {
		return nil, fmt.Errorf("%w: max=%d offset=%d strip=%d", api.ErrInvalidArgument,
			cfg.MaxFrameLength, cfg.LengthFieldOffset, cfg.InitialBytesToStrip)
	}
	if cfg.ByteOrder == nil {
		cfg.ByteOrder = binary.BigEndian
	}
	return &LengthFieldDecoder{cfg: cfg}, nil
}

func checkFieldLength(n int) error {
	switch n {
	case 1, 2, 4, 8:
		return nil
	}
	return fmt.Errorf("%w: length field of %d bytes", api.ErrInvalidArgument, n)
}

// Decode returns the next complete frame, consuming it from in. The frame
// is a view sharing in's storage and must be released by the caller.
// Oversized frames fail with api.ErrFrameTooLong and leave in untouched.
func (d *LengthFieldDecoder) Decode(in *buffer.Buffer) (*buffer.Buffer, error) {
	c := &d.cfg
	header := c.LengthFieldOffset + c.LengthFieldLength
	if in.Readable() < header {
		return nil, nil
	}

	field := in.PeekAt(c.LengthFieldOffset, c.LengthFieldLength)
	var length uint64
	switch c.LengthFieldLength {
	case 1:
		length = uint64(field[0])
	case 2:
		length = uint64(c.ByteOrder.Uint16(field))
	case 4:
		length = uint64(c.ByteOrder.Uint32(field))
	case 8:
		length = c.ByteOrder.Uint64(field)
	}
	if length > uint64(math.MaxInt32) {
		return nil, fmt.Errorf("%w: length field %d", api.ErrFrameTooLong, length)
	}

	frameLength := header + int(length) + c.LengthAdjustment
	if frameLength > c.MaxFrameLength {
		return nil, fmt.Errorf("%w: %d > %d", api.ErrFrameTooLong, frameLength, c.MaxFrameLength)
	}
	if frameLength < header || frameLength < c.InitialBytesToStrip {
		return nil, fmt.Errorf("%w: frame length %d shorter than its header", api.ErrInvalidArgument, frameLength)
	}
	if in.Readable() < frameLength {
		return nil, nil
	}

	frame := in.ReadBuffer(frameLength)
	frame.Skip(c.InitialBytesToStrip)
	return frame, nil
}

// LengthFieldPrepender writes the length of a message in front of it.
type LengthFieldPrepender struct {
	LengthFieldLength int              // 1, 2, 4 or 8
	LengthAdjustment  int              // added to the written length
	IncludesLength    bool             // count the field itself
	ByteOrder         binary.ByteOrder // defaults to big endian
}

// Encode prepends the length field to msg's readable bytes in place.
func (p *LengthFieldPrepender) Encode(msg *buffer.Buffer) error {
	if err := checkFieldLength(p.LengthFieldLength); err != nil {
		return err
	}
	order := p.ByteOrder
	if order == nil {
		order = binary.BigEndian
	}
	length := msg.Readable() + p.LengthAdjustment
	if p.IncludesLength {
		length += p.LengthFieldLength
	}
	if length < 0 {
		return fmt.Errorf("%w: negative length %d", api.ErrInvalidArgument, length)
	}

	var tmp [8]byte
	switch p.LengthFieldLength {
	case 1:
		if length > math.MaxUint8 {
			return fmt.Errorf("%w: %d does not fit one byte", api.ErrFrameTooLong, length)
		}
		tmp[0] = byte(length)
	case 2:
		if length > math.MaxUint16 {
			return fmt.Errorf("%w: %d does not fit two bytes", api.ErrFrameTooLong, length)
		}
		order.PutUint16(tmp[:], uint16(length))
	case 4:
		if uint64(length) > math.MaxUint32 {
			return fmt.Errorf("%w: %d does not fit four bytes", api.ErrFrameTooLong, length)
		}
		order.PutUint32(tmp[:], uint32(length))
	case 8:
		order.PutUint64(tmp[:], uint64(length))
	}
	msg.Prepend(tmp[:p.LengthFieldLength])
	return nil
}
