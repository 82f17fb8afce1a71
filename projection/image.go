package projection

import (
	"image"
	"image/color"
	"math"
)

// DepthMap is a dense row-major depth image in meters
type DepthMap struct {
	Width  int
	Height int
	Data   []float32
}

// NewDepthMap allocates zero-filled depth map
func NewDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
}

// At returns depth at pixel (u, v)
func (d *DepthMap) At(u, v int) float32 {
	return d.Data[v*d.Width+u]
}

// Set stores depth at pixel (u, v)
func (d *DepthMap) Set(u, v int, depth float32) {
	d.Data[v*d.Width+u] = depth
}

// Fill stores the same depth at every pixel
func (d *DepthMap) Fill(depth float32) {
	for i := range d.Data {
		d.Data[i] = depth
	}
}

// valid returns depth at (u, v) if it is finite and strictly positive
func (d *DepthMap) valid(u, v int) (float64, bool) {
	z := float64(d.Data[v*d.Width+u])
	if math.IsNaN(z) || math.IsInf(z, 0) || z <= 0 {
		return 0, false
	}
	return z, true
}

// Mask is a binary segmentation mask
type Mask struct {
	Width  int
	Height int
	Data   []bool
}

// NewMask allocates empty mask
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Data:   make([]bool, width*height),
	}
}

// MaskFromImage thresholds gray level of img. Pixels brighter than threshold are set.
func MaskFromImage(img image.Image, threshold uint8) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y > threshold {
				m.Set(x-b.Min.X, y-b.Min.Y, true)
			}
		}
	}
	return m
}

// At reports whether pixel (u, v) belongs to the mask
func (m *Mask) At(u, v int) bool {
	return m.Data[v*m.Width+u]
}

// Set changes pixel membership
func (m *Mask) Set(u, v int, on bool) {
	m.Data[v*m.Width+u] = on
}

// SetRect marks every pixel of r (clipped to mask bounds)
func (m *Mask) SetRect(r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	for v := r.Min.Y; v < r.Max.Y; v++ {
		for u := r.Min.X; u < r.Max.X; u++ {
			m.Set(u, v, true)
		}
	}
}

// Area returns number of set pixels
func (m *Mask) Area() int {
	area := 0
	for _, on := range m.Data {
		if on {
			area++
		}
	}
	return area
}

// Centroid returns mean pixel coordinate of set pixels. False for empty mask.
func (m *Mask) Centroid() (float64, float64, bool) {
	var sumU, sumV float64
	count := 0
	for v := 0; v < m.Height; v++ {
		for u := 0; u < m.Width; u++ {
			if m.At(u, v) {
				sumU += float64(u)
				sumV += float64(v)
				count++
			}
		}
	}
	if count == 0 {
		return 0, 0, false
	}
	return sumU / float64(count), sumV / float64(count), true
}

// Bounds returns the smallest rectangle covering every set pixel
func (m *Mask) Bounds() image.Rectangle {
	r := image.Rectangle{}
	for v := 0; v < m.Height; v++ {
		for u := 0; u < m.Width; u++ {
			if m.At(u, v) {
				r = r.Union(image.Rect(u, v, u+1, v+1))
			}
		}
	}
	return r
}
