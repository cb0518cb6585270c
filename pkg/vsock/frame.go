// Package vsock implements the host-to-sandbox framed task channel: an
// 8-byte length+type-prefixed message multiplexer with both a local
// (in-process) mode and a wire mode correlated by task id. The framing
// itself follows no teacher analogue — it is built directly from the
// wire format, in the small-struct-plus-explicit-codec idiom the teacher
// uses for its Raft command encode/decode (pkg/manager/fsm.go).
package vsock

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cuemby/agentcage/pkg/types"
)

// Frame is a decoded VSOCK message: its type tag plus raw JSON body.
type Frame struct {
	Type types.MessageType
	Body []byte
}

// SerializePayload encodes a TaskPayload as a length+type-prefixed frame.
func SerializePayload(p types.TaskPayload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return encodeFrame(types.MessagePayload, body), nil
}

// SerializeResult encodes a TaskResult as a length+type-prefixed frame.
func SerializeResult(r types.TaskResult) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return encodeFrame(types.MessageResult, body), nil
}

func encodeFrame(msgType types.MessageType, body []byte) []byte {
	buf := make([]byte, types.FrameHeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(body)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(msgType))
	copy(buf[8:], body)
	return buf
}

// ParseFrame decodes the 8-byte header and body from raw bytes.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) < types.FrameHeaderSize {
		return Frame{}, types.ErrFrameTooShort
	}
	length := binary.BigEndian.Uint32(raw[0:4])
	msgType := types.MessageType(binary.BigEndian.Uint32(raw[4:8]))

	if msgType != types.MessagePayload && msgType != types.MessageResult {
		return Frame{}, types.ErrUnknownType
	}

	end := types.FrameHeaderSize + int(length)
	if end > len(raw) {
		return Frame{}, types.ErrFrameTooShort
	}

	return Frame{Type: msgType, Body: raw[types.FrameHeaderSize:end]}, nil
}

// DeserializePayload parses a frame asserting it carries a TaskPayload.
func DeserializePayload(f Frame) (types.TaskPayload, error) {
	if f.Type != types.MessagePayload {
		return types.TaskPayload{}, types.ErrUnknownType
	}
	var p types.TaskPayload
	if err := json.Unmarshal(f.Body, &p); err != nil {
		return types.TaskPayload{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

// DeserializeResult parses a frame asserting it carries a TaskResult.
func DeserializeResult(f Frame) (types.TaskResult, error) {
	if f.Type != types.MessageResult {
		return types.TaskResult{}, types.ErrUnknownType
	}
	var r types.TaskResult
	if err := json.Unmarshal(f.Body, &r); err != nil {
		return types.TaskResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return r, nil
}
