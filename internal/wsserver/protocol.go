// Package wsserver provides a localhost WebSocket server for streaming git
// operation output (fetch, pull, push progress) to the frontend.
//
// # Binary frame protocol
//
// Binary frame format: [1 byte: opID length][opID bytes][data bytes]
//
//   - Byte 0: uint8 length of the operation ID (0..255).
//   - Bytes 1..1+opIDLen: operation ID encoded as ASCII/UTF-8 (a UUID string).
//   - Remaining bytes: raw git output (may be empty).
//
// EncodeOpOutput produces frames in this format; DecodeOpOutput parses them.
package wsserver

import (
	"fmt"
	"log/slog"
)

// maxOpIDLen is the maximum operation ID length that fits in the 1-byte
// length prefix of the binary frame protocol. Operation IDs are UUID strings
// (36 bytes) in practice; longer IDs are truncated.
const maxOpIDLen = 255

// EncodeOpOutput constructs a binary frame carrying a chunk of git command
// output for the given operation.
//
// Frame format:
//
//	[1 byte: len(opID) as uint8] [opID bytes (ASCII)] [data bytes]
//
// The frame avoids JSON serialization overhead while a remote operation is
// streaming progress lines. A single allocation is used.
//
// Precondition: len(opID) must fit in uint8 (max 255 bytes). Longer IDs are
// truncated to 255 bytes with a warning.
func EncodeOpOutput(opID string, data []byte) ([]byte, error) {
	if len(opID) == 0 {
		return nil, fmt.Errorf("wsserver: encode op output: opID must not be empty")
	}

	id := opID
	if len(id) > maxOpIDLen {
		// Warn (not Debug) because truncation changes the ID used for routing,
		// risking delivery to the wrong operation if two IDs share the same
		// 255-byte prefix.
		slog.Warn("[DEBUG-WS] opID truncated, collision risk between operations",
			"originalLen", len(id), "truncatedTo", maxOpIDLen, "opID", id[:maxOpIDLen])
		id = id[:maxOpIDLen]
	}

	idLen := len(id)
	buf := make([]byte, 1+idLen+len(data))
	buf[0] = byte(idLen)
	copy(buf[1:1+idLen], id)
	copy(buf[1+idLen:], data)
	return buf, nil
}

// DecodeOpOutput parses a binary frame produced by EncodeOpOutput.
// Returns the operation ID and raw output, or an error if the frame is
// malformed (empty frame, insufficient length for declared ID).
//
// Zero-copy: the returned data slice shares memory with frame. Callers must
// not modify frame after calling this function.
func DecodeOpOutput(frame []byte) (opID string, data []byte, err error) {
	if len(frame) < 1 {
		return "", nil, fmt.Errorf("wsserver: decode op output: empty frame")
	}

	idLen := int(frame[0])
	if len(frame) < 1+idLen {
		return "", nil, fmt.Errorf("wsserver: decode op output: frame too short for opID length %d (frame length %d)", idLen, len(frame))
	}

	opID = string(frame[1 : 1+idLen])
	data = frame[1+idLen:]
	return opID, data, nil
}
