package display

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"

	"golang.org/x/image/draw"
)

// Canvas is an in-memory surface. It keeps its own copy of the last painted
// frame, resized to that frame's dimensions.
type Canvas struct {
	mu      sync.RWMutex
	img     *image.RGBA
	seq     uint64
	payload []byte
	paints  int
}

// NewCanvas returns an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{}
}

// Paint implements Surface.
func (c *Canvas) Paint(f Frame) {
	if f.Image == nil {
		return
	}
	b := f.Image.Bounds()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.img == nil || c.img.Rect.Dx() != b.Dx() || c.img.Rect.Dy() != b.Dy() {
		c.img = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Copy(c.img, image.Point{}, f.Image, b, draw.Src, nil)
	c.seq = f.Seq
	c.payload = f.Payload
	c.paints++
}

// Clear implements Surface.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.img = nil
	c.payload = nil
	c.seq = 0
}

// Size returns the canvas dimensions, 0x0 when empty.
func (c *Canvas) Size() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.img == nil {
		return 0, 0
	}
	return c.img.Rect.Dx(), c.img.Rect.Dy()
}

// Seq returns the sequence number of the painted frame.
func (c *Canvas) Seq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// Paints returns how many frames were painted.
func (c *Canvas) Paints() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paints
}

// Image returns a copy of the canvas contents, or nil when empty.
func (c *Canvas) Image() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.img == nil {
		return nil
	}
	out := image.NewRGBA(c.img.Rect)
	copy(out.Pix, c.img.Pix)
	return out
}

// Payload returns the compressed bytes of the painted frame.
func (c *Canvas) Payload() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.payload
}

// Snapshot encodes the canvas as JPEG. A positive width scales the image
// down, keeping the aspect ratio. Returns nil when empty.
func (c *Canvas) Snapshot(width, quality int) ([]byte, error) {
	img := c.Image()
	if img == nil {
		return nil, nil
	}

	var out image.Image = img
	if width > 0 && width < img.Rect.Dx() {
		out = Scale(img, width)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Scale resizes img to the given width, keeping the aspect ratio.
func Scale(img image.Image, width int) *image.RGBA {
	b := img.Bounds()
	height := max(b.Dy()*width/b.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Rect, img, b, draw.Src, nil)
	return dst
}
