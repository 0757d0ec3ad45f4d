package posesim

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Annotator draws pose annotations onto a frame.
type Annotator interface {
	Annotate(img image.Image) (image.Image, error)
}

// AnnotatorFunc adapts a function to the Annotator interface.
type AnnotatorFunc func(img image.Image) (image.Image, error)

// Annotate implements Annotator.
func (f AnnotatorFunc) Annotate(img image.Image) (image.Image, error) {
	return f(img)
}

// Overlay is the default annotator. It draws a frame border, a stick
// figure skeleton scaled to the frame and a text label.
type Overlay struct {
	Label string
	Color color.RGBA
}

// DefaultOverlay returns the overlay used when no annotator is configured.
func DefaultOverlay() *Overlay {
	return &Overlay{
		Label: "pose: 1 person",
		Color: color.RGBA{R: 0, G: 255, B: 128, A: 255},
	}
}

// joint positions as fractions of the frame.
var skeleton = map[string][2]float64{
	"head":      {0.50, 0.20},
	"neck":      {0.50, 0.30},
	"lshoulder": {0.42, 0.32},
	"rshoulder": {0.58, 0.32},
	"lhand":     {0.36, 0.52},
	"rhand":     {0.64, 0.52},
	"hip":       {0.50, 0.58},
	"lknee":     {0.45, 0.72},
	"rknee":     {0.55, 0.72},
	"lfoot":     {0.44, 0.88},
	"rfoot":     {0.56, 0.88},
}

var bones = [][2]string{
	{"head", "neck"},
	{"neck", "lshoulder"}, {"neck", "rshoulder"},
	{"lshoulder", "lhand"}, {"rshoulder", "rhand"},
	{"neck", "hip"},
	{"hip", "lknee"}, {"hip", "rknee"},
	{"lknee", "lfoot"}, {"rknee", "rfoot"},
}

// Annotate implements Annotator.
func (o *Overlay) Annotate(img image.Image) (image.Image, error) {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)

	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	o.border(dst, w, h)

	point := func(name string) image.Point {
		p := skeleton[name]
		return image.Pt(int(p[0]*float64(w)), int(p[1]*float64(h)))
	}
	for _, bone := range bones {
		line(dst, point(bone[0]), point(bone[1]), o.Color)
	}
	for name := range skeleton {
		dot(dst, point(name), max(w/200, 2), o.Color)
	}

	if o.Label != "" {
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(o.Color),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(8, 18),
		}
		d.DrawString(o.Label)
	}
	return dst, nil
}

func (o *Overlay) border(dst *image.RGBA, w, h int) {
	t := max(min(w, h)/100, 1)
	src := image.NewUniform(o.Color)
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, w, t),
		image.Rect(0, h-t, w, h),
		image.Rect(0, 0, t, h),
		image.Rect(w-t, 0, w, h),
	} {
		draw.Draw(dst, r, src, image.Point{}, draw.Src)
	}
}

func dot(dst *image.RGBA, c image.Point, r int, col color.RGBA) {
	draw.Draw(dst, image.Rect(c.X-r, c.Y-r, c.X+r+1, c.Y+r+1), image.NewUniform(col), image.Point{}, draw.Src)
}

// line draws a one pixel line using Bresenham's algorithm.
func line(dst *image.RGBA, a, b image.Point, col color.RGBA) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		if (image.Point{a.X, a.Y}).In(dst.Rect) {
			dst.SetRGBA(a.X, a.Y, col)
		}
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
