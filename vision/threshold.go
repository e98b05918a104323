package vision

import (
	"image"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Threshold is a color range in the CIE L*a*b* space, given as the 6-tuple
// (LMin, LMax, AMin, AMax, BMin, BMax). L is in [0, 100] and a/b are roughly in [-128, 127].
type Threshold [6]float64

// LMin is the lowest lightness accepted.
func (t Threshold) LMin() float64 { return t[0] }

// LMax is the highest lightness accepted.
func (t Threshold) LMax() float64 { return t[1] }

// AMin is the lowest green-red value accepted.
func (t Threshold) AMin() float64 { return t[2] }

// AMax is the highest green-red value accepted.
func (t Threshold) AMax() float64 { return t[3] }

// BMin is the lowest blue-yellow value accepted.
func (t Threshold) BMin() float64 { return t[4] }

// BMax is the highest blue-yellow value accepted.
func (t Threshold) BMax() float64 { return t[5] }

// Validate checks that every min is not above its max.
func (t Threshold) Validate() error {
	for i := 0; i < 6; i += 2 {
		if t[i] > t[i+1] {
			return errors.Errorf("threshold %v has min %v above max %v", t, t[i], t[i+1])
		}
	}
	return nil
}

// ContainsLab reports whether a color given in L*a*b* units falls in the threshold.
func (t Threshold) ContainsLab(l, a, b float64) bool {
	return l >= t.LMin() && l <= t.LMax() &&
		a >= t.AMin() && a <= t.AMax() &&
		b >= t.BMin() && b <= t.BMax()
}

// Contains reports whether c falls in the threshold.
func (t Threshold) Contains(c colorful.Color) bool {
	l, a, b := c.Lab()
	return t.ContainsLab(l*100, a*100, b*100)
}

// FindOptions are the filters applied while searching a frame for blobs.
type FindOptions struct {
	// PixelsThreshold drops blobs with fewer pixels.
	PixelsThreshold int `json:"pixels_threshold"`
	// AreaThreshold drops blobs whose bounding box is smaller.
	AreaThreshold int `json:"area_threshold"`
	// ROI restricts the search. The zero rectangle searches the full frame.
	ROI image.Rectangle `json:"-"`
	// Merge joins blobs whose bounding boxes overlap (after growing them by Margin).
	Merge  bool `json:"merge"`
	Margin int  `json:"margin"`
}

// DefaultFindOptions mirrors the filters the tracking firmware runs with.
func DefaultFindOptions() FindOptions {
	return FindOptions{
		PixelsThreshold: 100,
		AreaThreshold:   100,
		Merge:           true,
	}
}
