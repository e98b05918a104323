package data

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/cyber-run/OpenMV-H7/utils"
)

// Sinusoid is y = Offset + Amplitude*sin(2*pi*f*t + Phase), Phase in radians.
type Sinusoid struct {
	Amplitude float64
	Phase     float64
	Offset    float64
}

// Analysis summarizes how well the pan followed a target oscillating at Freq.
type Analysis struct {
	Freq    float64
	Samples int
	// Duration is the time between the first and the last sample.
	Duration float64
	// Target is the fit of the target direction, pan angle plus angle error.
	Target Sinusoid
	// Pan is the fit of the pan angle.
	Pan Sinusoid
	// Gain is the ratio of the pan amplitude to the target amplitude.
	Gain float64
	// PhaseDeg is the pan phase minus the target phase, wrapped to (-180, 180].
	PhaseDeg  float64
	MeanError float64
	RMSError  float64
	MaxError  float64
}

// Analyze fits sinusoids at freq to the target and pan columns of rec.
func Analyze(rec *Record, freq float64) (Analysis, error) {
	if freq <= 0 {
		return Analysis{}, errors.Errorf("frequency must be positive, got %v", freq)
	}
	times, errs, angles := rec.Columns()
	if len(times) < 4 {
		return Analysis{}, errors.Errorf("need at least 4 samples to fit, got %d", len(times))
	}
	target := make([]float64, len(angles))
	floats.AddTo(target, angles, errs)

	targetFit, err := FitSinusoid(times, target, freq)
	if err != nil {
		return Analysis{}, errors.Wrap(err, "fitting target")
	}
	panFit, err := FitSinusoid(times, angles, freq)
	if err != nil {
		return Analysis{}, errors.Wrap(err, "fitting pan")
	}

	absErrs := make([]float64, len(errs))
	for i, e := range errs {
		absErrs[i] = math.Abs(e)
	}
	res := Analysis{
		Freq:      freq,
		Samples:   len(times),
		Duration:  times[len(times)-1] - times[0],
		Target:    targetFit,
		Pan:       panFit,
		MeanError: stat.Mean(errs, nil),
		RMSError:  math.Sqrt(floats.Dot(errs, errs) / float64(len(errs))),
		MaxError:  floats.Max(absErrs),
	}
	if targetFit.Amplitude > 0 {
		res.Gain = panFit.Amplitude / targetFit.Amplitude
	}
	res.PhaseDeg = wrapDeg(utils.RadToDeg(panFit.Phase - targetFit.Phase))
	return res, nil
}

// FitSinusoid finds the least squares sinusoid at freq through (ts, ys).
func FitSinusoid(ts, ys []float64, freq float64) (Sinusoid, error) {
	if len(ts) != len(ys) {
		return Sinusoid{}, errors.Errorf("mismatched lengths %d and %d", len(ts), len(ys))
	}
	if len(ts) < 3 {
		return Sinusoid{}, errors.New("need at least 3 points")
	}
	w := 2 * math.Pi * freq
	design := mat.NewDense(len(ts), 3, nil)
	for i, t := range ts {
		design.Set(i, 0, math.Sin(w*t))
		design.Set(i, 1, math.Cos(w*t))
		design.Set(i, 2, 1)
	}
	var coeffs mat.VecDense
	if err := coeffs.SolveVec(design, mat.NewVecDense(len(ys), append([]float64(nil), ys...))); err != nil {
		return Sinusoid{}, errors.Wrap(err, "least squares fit failed")
	}
	a, b := coeffs.AtVec(0), coeffs.AtVec(1)
	return Sinusoid{
		Amplitude: math.Hypot(a, b),
		Phase:     math.Atan2(b, a),
		Offset:    coeffs.AtVec(2),
	}, nil
}

func wrapDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}
