// Package colorblob finds color blobs in camera images by L*a*b* thresholds.
package colorblob

import (
	"image"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"github.com/cyber-run/OpenMV-H7/vision"
)

// Finder searches images for connected regions matching any of its thresholds.
type Finder struct {
	thresholds []vision.Threshold
	opts       vision.FindOptions
}

// NewFinder returns a Finder for the given thresholds. The index of a threshold in the slice
// decides the code bit of the blobs it produces.
func NewFinder(thresholds []vision.Threshold, opts vision.FindOptions) (*Finder, error) {
	if len(thresholds) == 0 {
		return nil, errors.New("at least one color threshold is required")
	}
	if len(thresholds) > 32 {
		return nil, errors.Errorf("at most 32 color thresholds are supported, got %d", len(thresholds))
	}
	for i, t := range thresholds {
		if err := t.Validate(); err != nil {
			return nil, errors.Wrapf(err, "threshold %d", i)
		}
	}
	return &Finder{thresholds: thresholds, opts: opts}, nil
}

type labPixel struct {
	l, a, b float64
	ok      bool
}

// Find returns the blobs found in img, in the order they were discovered (threshold by
// threshold, then row-major).
func (f *Finder) Find(img image.Image) []vision.Blob {
	bounds := img.Bounds()
	if !f.opts.ROI.Empty() {
		bounds = bounds.Intersect(f.opts.ROI)
	}
	if bounds.Empty() {
		return nil
	}
	width, height := bounds.Dx(), bounds.Dy()
	lab := make([]labPixel, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c, ok := colorful.MakeColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			if !ok {
				continue
			}
			l, a, b := c.Lab()
			lab[y*width+x] = labPixel{l * 100, a * 100, b * 100, true}
		}
	}

	var blobs []vision.Blob
	for idx, t := range f.thresholds {
		pass := func(i int) bool {
			p := lab[i]
			return p.ok && t.ContainsLab(p.l, p.a, p.b)
		}
		for _, b := range connectedComponents(width, height, pass) {
			b.Rect = b.Rect.Add(bounds.Min)
			b.CX += bounds.Min.X
			b.CY += bounds.Min.Y
			b.Code = vision.CodeFor(idx)
			blobs = append(blobs, b)
		}
	}
	blobs = f.filter(blobs)
	if f.opts.Merge {
		blobs = merge(blobs, f.opts.Margin)
	}
	return blobs
}

func (f *Finder) filter(in []vision.Blob) []vision.Blob {
	out := make([]vision.Blob, 0, len(in))
	for _, b := range in {
		if b.Pixels >= f.opts.PixelsThreshold && b.Area() >= f.opts.AreaThreshold {
			out = append(out, b)
		}
	}
	return out
}

// connectedComponents labels the 4-connected regions of pixels accepted by pass.
func connectedComponents(width, height int, pass func(i int) bool) []vision.Blob {
	seen := make([]bool, width*height)
	var out []vision.Blob
	var queue []image.Point
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			indx := j*width + i
			if seen[indx] {
				continue
			}
			seen[indx] = true
			if !pass(indx) {
				continue
			}
			queue = append(queue[:0], image.Point{i, j})
			x0, y0, x1, y1 := i, j, i, j
			var sumX, sumY, count int
			for len(queue) != 0 {
				pt := queue[0]
				queue = queue[1:]
				count++
				sumX += pt.X
				sumY += pt.Y
				if pt.X < x0 {
					x0 = pt.X
				}
				if pt.X > x1 {
					x1 = pt.X
				}
				if pt.Y < y0 {
					y0 = pt.Y
				}
				if pt.Y > y1 {
					y1 = pt.Y
				}
				for _, n := range [4]image.Point{{pt.X, pt.Y - 1}, {pt.X, pt.Y + 1}, {pt.X - 1, pt.Y}, {pt.X + 1, pt.Y}} {
					if n.X < 0 || n.Y < 0 || n.X >= width || n.Y >= height {
						continue
					}
					nIndx := n.Y*width + n.X
					if seen[nIndx] {
						continue
					}
					seen[nIndx] = true
					if pass(nIndx) {
						queue = append(queue, n)
					}
				}
			}
			out = append(out, vision.Blob{
				CX:     roundDiv(sumX, count),
				CY:     roundDiv(sumY, count),
				Pixels: count,
				Rect:   image.Rect(x0, y0, x1+1, y1+1),
			})
		}
	}
	return out
}

// merge joins blobs whose bounding boxes, grown by margin, overlap. It repeats until no pair
// overlaps.
func merge(blobs []vision.Blob, margin int) []vision.Blob {
	for {
		merged := false
		for i := 0; i < len(blobs) && !merged; i++ {
			grown := blobs[i].Rect.Inset(-margin)
			for j := i + 1; j < len(blobs); j++ {
				if !grown.Overlaps(blobs[j].Rect) {
					continue
				}
				blobs[i] = join(blobs[i], blobs[j])
				blobs = append(blobs[:j], blobs[j+1:]...)
				merged = true
				break
			}
		}
		if !merged {
			return blobs
		}
	}
}

func join(a, b vision.Blob) vision.Blob {
	pixels := a.Pixels + b.Pixels
	return vision.Blob{
		CX:     roundDiv(a.CX*a.Pixels+b.CX*b.Pixels, pixels),
		CY:     roundDiv(a.CY*a.Pixels+b.CY*b.Pixels, pixels),
		Pixels: pixels,
		Rect:   a.Rect.Union(b.Rect),
		Code:   a.Code | b.Code,
	}
}

func roundDiv(sum, n int) int {
	if n == 0 {
		return 0
	}
	return (sum + n/2) / n
}
