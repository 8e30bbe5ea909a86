// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements stream framing over the connection input buffer.
//
// Includes:
//   - Length-field based frame decoding with configurable offset, width,
//     adjustment and stripping
//   - A matching prepender that writes the length field into the buffer's
//     front reservation
//   - FrameHandler, adapting a decoder into a connection message callback
package protocol
