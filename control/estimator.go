package control

import (
	"github.com/pkg/errors"

	"github.com/cyber-run/OpenMV-H7/vision"
)

// CameraGeometry describes the frame the blob centroids are measured in.
type CameraGeometry struct {
	FrameWidth  int     `json:"frame_width"`
	FrameHeight int     `json:"frame_height"`
	HFOVDeg     float64 `json:"hfov_deg"`
	// CenterX is the optical center column. Zero means FrameWidth/2.
	CenterX float64 `json:"center_x"`
}

// DefaultCameraGeometry is a QVGA frame behind the stock OpenMV lens.
func DefaultCameraGeometry() CameraGeometry {
	return CameraGeometry{FrameWidth: 320, FrameHeight: 240, HFOVDeg: 70.8}
}

// Center returns the optical center column.
func (g CameraGeometry) Center() float64 {
	if g.CenterX != 0 {
		return g.CenterX
	}
	return float64(g.FrameWidth) / 2
}

// Validate ensures the geometry can produce angles.
func (g CameraGeometry) Validate() error {
	if g.FrameWidth <= 0 {
		return errors.Errorf("frame width must be positive, got %d", g.FrameWidth)
	}
	if g.HFOVDeg <= 0 || g.HFOVDeg >= 180 {
		return errors.Errorf("horizontal field of view must be in (0, 180), got %v", g.HFOVDeg)
	}
	return nil
}

// Estimator converts blob centroids into pan angle errors.
type Estimator struct {
	geom CameraGeometry
}

// NewEstimator returns an Estimator for the given camera.
func NewEstimator(geom CameraGeometry) *Estimator {
	return &Estimator{geom: geom}
}

// Geometry returns the camera geometry.
func (e *Estimator) Geometry() CameraGeometry {
	return e.geom
}

// PixelError is the signed column distance of the blob from the optical center.
func (e *Estimator) PixelError(b vision.Blob) float64 {
	return float64(b.CX) - e.geom.Center()
}

// AngleError returns the pan error in degrees. A blob right of center gives a negative error,
// i.e. the pan should turn right by decreasing its angle.
func (e *Estimator) AngleError(b vision.Blob) float64 {
	return -(e.PixelError(b) / float64(e.geom.FrameWidth)) * e.geom.HFOVDeg
}
