// Package vision defines the blob records produced once per camera frame and the source
// interface the control loop pulls them from.
package vision

import (
	"context"
	"fmt"
	"image"
)

// Code identifies which configured color thresholds matched a blob. Bit i is set when threshold
// index i matched, so a blob that only matched threshold 2 has code 4. Merged blobs carry the OR
// of the codes of their parts.
type Code uint32

// CodeFor returns the code of a blob that matched only the threshold at index.
func CodeFor(index int) Code {
	return Code(1) << uint(index)
}

// Matches reports whether the code is exactly want. A merged blob that also matched other
// thresholds does not match.
func (c Code) Matches(want Code) bool {
	return c == want
}

// Has reports whether bit index is set.
func (c Code) Has(index int) bool {
	return c&CodeFor(index) != 0
}

func (c Code) String() string {
	return fmt.Sprintf("0b%b", uint32(c))
}

// Blob is one connected region of pixels matching a color threshold. It is immutable for the
// frame that produced it.
type Blob struct {
	CX     int
	CY     int
	Pixels int
	Rect   image.Rectangle
	Code   Code
}

// Area is the bounding box area in pixels.
func (b Blob) Area() int {
	return b.Rect.Dx() * b.Rect.Dy()
}

// Biggest returns the blob with the most pixels. On ties the earlier blob wins. ok is false when
// blobs is empty.
func Biggest(blobs []Blob) (Blob, bool) {
	if len(blobs) == 0 {
		return Blob{}, false
	}
	best := blobs[0]
	for _, b := range blobs[1:] {
		if b.Pixels > best.Pixels {
			best = b
		}
	}
	return best, true
}

// BiggestWithCode returns the biggest blob of the frame only if it carries want.
func BiggestWithCode(blobs []Blob, want Code) (Blob, bool) {
	b, ok := Biggest(blobs)
	if !ok || !b.Code.Matches(want) {
		return Blob{}, false
	}
	return b, true
}

// A Source returns the blobs detected in a newly captured frame. Each call blocks until a new
// frame is available.
type Source interface {
	Blobs(ctx context.Context) ([]Blob, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]Blob, error)

// Blobs calls f.
func (f SourceFunc) Blobs(ctx context.Context) ([]Blob, error) {
	return f(ctx)
}
