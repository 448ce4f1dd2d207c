package protocol

import "fmt"

// InvalidMessageType is returned when a frame other than a text frame is
// handed to the codec. The wire protocol is single-text-frame JSON only.
type InvalidMessageType struct{}

func (InvalidMessageType) Error() string {
	return "invalid websocket message type (expected text)"
}

// DeserializationFailed wraps the underlying decode failure: an unknown
// method tag, a missing required field, an enum tag outside the defined
// set, or a JSON syntax error. Decoding is strict; unknown fields are
// rejected.
type DeserializationFailed struct {
	Details string
}

func (e DeserializationFailed) Error() string {
	return fmt.Sprintf("failed to deserialize wire message: %s", e.Details)
}

func deserFailed(format string, args ...interface{}) error {
	return DeserializationFailed{Details: fmt.Sprintf(format, args...)}
}
