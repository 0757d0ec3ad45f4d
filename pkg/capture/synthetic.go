package capture

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-pitchside/pkg/camera"
)

// Synthetic is a test-pattern source. It renders a pitch-green background
// with a white bar that moves one step per frame, so consecutive frames
// differ. Its resolution can be changed at any time with SetSize.
type Synthetic struct {
	mu     sync.Mutex
	width  int
	height int
	frame  *image.RGBA
	count  int
	closed bool

	closes atomic.Int32
	frames atomic.Int64
}

// NewSynthetic creates a synthetic source of the given size.
func NewSynthetic(width, height int) *Synthetic {
	return &Synthetic{width: width, height: height}
}

// Acquirer returns an Acquirer that hands out this source, reopening it if
// it was closed by a previous session.
func (s *Synthetic) Acquirer() Acquirer {
	return func(ctx context.Context, cfg camera.Config) (Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.closed = false
		s.mu.Unlock()
		return s, nil
	}
}

// SetSize changes the resolution of subsequent frames.
func (s *Synthetic) SetSize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = width
	s.height = height
}

// Size implements Source.
func (s *Synthetic) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Frame implements Source.
func (s *Synthetic) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.width <= 0 || s.height <= 0 {
		return nil, ErrNoFrame
	}

	if s.frame == nil || s.frame.Rect.Dx() != s.width || s.frame.Rect.Dy() != s.height {
		s.frame = image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	}
	s.render()
	s.count++
	s.frames.Add(1)
	return s.frame, nil
}

func (s *Synthetic) render() {
	grass := color.RGBA{R: 34, G: 139, B: 34, A: 255}
	line := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	barWidth := max(s.width/20, 1)
	barX := (s.count * barWidth) % s.width

	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			c := grass
			if x >= barX && x < barX+barWidth {
				c = line
			}
			s.frame.SetRGBA(x, y, c)
		}
	}
}

// Close implements Source.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closes.Add(1)
	return nil
}

// Closes returns how many times the source was released.
func (s *Synthetic) Closes() int {
	return int(s.closes.Load())
}

// FramesRead returns how many frames were produced.
func (s *Synthetic) FramesRead() int64 {
	return s.frames.Load()
}
