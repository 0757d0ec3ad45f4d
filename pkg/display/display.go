// Package display provides paintable targets for annotated frames.
package display

import (
	"image"
	"time"
)

// Frame is one decoded annotated frame received from the service.
type Frame struct {
	Seq      uint64      // Arrival sequence within the session
	Image    image.Image // Decoded image
	Payload  []byte      // The compressed bytes as received
	Received time.Time
}

// Surface is something annotated frames can be painted onto. A surface
// resizes itself to whatever it last painted.
type Surface interface {
	Paint(f Frame)
	Clear()
}

// Discard is a surface that drops everything.
type Discard struct{}

// Paint implements Surface.
func (Discard) Paint(Frame) {}

// Clear implements Surface.
func (Discard) Clear() {}
