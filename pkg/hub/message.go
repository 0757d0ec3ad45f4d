// Package hub fans websocket messages out to viewer clients.
//
// One goroutine (Run) owns the client set; clients register and unregister
// through channels and each client has its own write pump, so broadcasting
// never blocks on a slow viewer.
package hub

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data, an annotated JPEG frame.
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
