package worker

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxMessageSize is the maximum allowed channel frame payload (16 MiB).
const MaxMessageSize = 16 << 20

// Response kinds sent from the child to the parent.
const (
	KindReady  = "ready"
	KindResult = "result"
	KindError  = "error"
)

// Hello is the first frame the parent writes after spawning the child. It
// carries the immutable worker configuration and the shared status file.
type Hello struct {
	Config     Config `msgpack:"config"`
	StatusPath string `msgpack:"status_path"`
}

// Request is one command sent from parent to child.
type Request struct {
	Command string             `msgpack:"command"`
	Args    msgpack.RawMessage `msgpack:"args,omitempty"`
}

// Response is the single reply the child sends for the init handshake and for
// every Request. Exactly one of Result or Error is meaningful, selected by Kind.
type Response struct {
	Kind   string             `msgpack:"kind"`
	Result msgpack.RawMessage `msgpack:"result,omitempty"`
	Error  *RemoteError       `msgpack:"error,omitempty"`
}

// WriteMessage writes a length-prefixed msgpack message to w.
// The frame format is: 4-byte big-endian length prefix followed by the payload.
func WriteMessage(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: size %d exceeds maximum %d", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	length := uint32(len(data))
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	return nil
}

// ReadMessage reads a length-prefixed msgpack message from r and decodes it into v.
func ReadMessage(r io.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("read length prefix: %w", err)
	}

	if length > MaxMessageSize {
		return fmt.Errorf("%w: size %d exceeds maximum %d", ErrMessageTooLarge, length, MaxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}

	return nil
}
