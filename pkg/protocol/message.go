// Package protocol defines the JSON messages sent to dashboard viewers over
// the status websocket. Annotated frames travel separately as binary
// websocket messages and are not wrapped.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-pitchside/pkg/camera"
	"github.com/teslashibe/go-pitchside/pkg/capture"
	"github.com/teslashibe/go-pitchside/pkg/posestream"
)

// MessageType identifies the type of a viewer message.
type MessageType string

const (
	TypeStatus MessageType = "status" // Streamer state and counters
	TypeError  MessageType = "error"  // A session failure the user should see
	TypeCamera MessageType = "camera" // Capture settings changed
	TypeFrame  MessageType = "frame"  // Metadata for the latest painted frame
)

// Message is the envelope for all viewer messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into v.
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// ErrorKind classifies session failures for the dashboard.
type ErrorKind string

const (
	KindAcquisition   ErrorKind = "acquisition"
	KindTransportOpen ErrorKind = "transport_open"
	KindTransportLost ErrorKind = "transport_lost"
	KindOther         ErrorKind = "other"
)

// ErrorData describes a failure.
type ErrorData struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// FrameData describes a painted annotated frame.
type FrameData struct {
	Seq    uint64 `json:"seq"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int    `json:"bytes"`
}

// KindOf maps a streamer error to its kind. Bare capture failures count as
// acquisition errors too.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, posestream.ErrAcquisition), capture.IsAcquisitionError(err):
		return KindAcquisition
	case errors.Is(err, posestream.ErrTransportOpen):
		return KindTransportOpen
	case errors.Is(err, posestream.ErrTransportLost):
		return KindTransportLost
	default:
		return KindOther
	}
}

// NewStatusMessage wraps a streamer status.
func NewStatusMessage(st posestream.Status) (*Message, error) {
	return NewMessage(TypeStatus, st)
}

// NewErrorMessage wraps a streamer error.
func NewErrorMessage(err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Kind: KindOf(err), Message: err.Error()})
}

// NewCameraMessage announces new capture settings.
func NewCameraMessage(cfg camera.Config) (*Message, error) {
	return NewMessage(TypeCamera, cfg)
}

// NewFrameMessage describes a painted frame.
func NewFrameMessage(seq uint64, width, height, size int) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{Seq: seq, Width: width, Height: height, Bytes: size})
}

// GetStatus extracts a status from a message.
func (m *Message) GetStatus() (*posestream.Status, error) {
	var data posestream.Status
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message.
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCamera extracts camera settings from a message.
func (m *Message) GetCamera() (*camera.Config, error) {
	var data camera.Config
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame metadata from a message.
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
