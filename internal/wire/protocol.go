// Package wire defines the JSON control messages exchanged on a
// stream connection. Terminal output itself travels as binary frames;
// everything else is a JSON text frame with a "type" tag.
package wire

import (
	"encoding/json"
	"fmt"
)

// Message type tags.
const (
	TypeInput  = "input"
	TypeResize = "resize"
	TypeHello  = "hello"
	TypeExit   = "exit"
	TypeError  = "error"
)

// --- Client → Gateway ---

// InputMessage carries input bytes for the PTY. Data is base64 on the
// wire; clients may also send raw binary frames for input.
type InputMessage struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

// ResizeMessage asks for a new PTY geometry.
type ResizeMessage struct {
	Type string `json:"type"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// --- Gateway → Client ---

// HelloMessage is the first frame on a new connection: the session
// geometry. A binary frame repainting the current screen follows.
type HelloMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
}

// ExitMessage announces that the session ended.
type ExitMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// ErrorMessage reports a request failure.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewHello builds a HelloMessage.
func NewHello(sessionID string, rows, cols int) HelloMessage {
	return HelloMessage{Type: TypeHello, SessionID: sessionID, Rows: rows, Cols: cols}
}

// NewResize builds a ResizeMessage.
func NewResize(rows, cols int) ResizeMessage {
	return ResizeMessage{Type: TypeResize, Rows: rows, Cols: cols}
}

// NewInput builds an InputMessage.
func NewInput(data []byte) InputMessage {
	return InputMessage{Type: TypeInput, Data: data}
}

// NewExit builds an ExitMessage.
func NewExit(reason string) ExitMessage {
	return ExitMessage{Type: TypeExit, Reason: reason}
}

// NewError builds an ErrorMessage.
func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}

// envelope is used to peek at the type tag before full decoding.
type envelope struct {
	Type string `json:"type"`
}

// Decode parses one JSON frame into its typed message.
func Decode(raw []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeInput:
		var m InputMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
		return m, nil
	case TypeResize:
		var m ResizeMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode resize: %w", err)
		}
		return m, nil
	case TypeHello:
		var m HelloMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode hello: %w", err)
		}
		return m, nil
	case TypeExit:
		var m ExitMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode exit: %w", err)
		}
		return m, nil
	case TypeError:
		var m ErrorMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// Encode serializes a typed message to one JSON frame.
func Encode(msg interface{}) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return raw, nil
}
