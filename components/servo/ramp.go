package servo

import (
	"github.com/cyber-run/OpenMV-H7/utils"
)

// wheelRamp holds the commanded speed of both wheels between ramp steps.
type wheelRamp struct {
	slew  float64
	left  float64
	right float64
}

// step moves each wheel at most one slew step toward its target and reports whether either
// wheel still has not reached it.
func (r *wheelRamp) step(targetLeft, targetRight float64) bool {
	var leftLimited, rightLimited bool
	r.left, leftLimited = utils.StepToward(r.left, targetLeft, r.slew)
	r.right, rightLimited = utils.StepToward(r.right, targetRight, r.slew)
	return leftLimited || rightLimited
}

func (r *wheelRamp) reset() {
	r.left = 0
	r.right = 0
}
