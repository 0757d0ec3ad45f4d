// Package camera provides runtime-configurable capture settings for the
// pose-estimation stream.
package camera

import "time"

// Config holds the preferred capture parameters. Width and Height are
// requests: the device may deliver a different resolution, and the stream
// follows whatever it actually produces.
type Config struct {
	// Device is the capture device: an index ("0") or a path ("/dev/video2").
	Device string `json:"device"`

	Width     int `json:"width"`     // Preferred frame width in pixels
	Height    int `json:"height"`    // Preferred frame height in pixels
	Framerate int `json:"framerate"` // Capture/send iterations per second
	Quality   int `json:"quality"`   // JPEG quality 1-100 for outbound frames
}

// Limits accepted by Validate.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 60
)

// DefaultConfig returns the recommended configuration: 720p at 30 fps,
// JPEG quality 80.
func DefaultConfig() Config {
	return Config{
		Device:    "0",
		Width:     1280,
		Height:    720,
		Framerate: 30,
		Quality:   80,
	}
}

// FrameInterval is the period between loop iterations.
func (c Config) FrameInterval() time.Duration {
	if c.Framerate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.Framerate)
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device is required")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
