// track/kalman.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package track

import (
	"github.com/firewatch-uas/firewatch/math"
)

// Process and measurement noise for the constant-velocity model. The
// process noise follows the white-noise-acceleration model so that Q
// scales with the prediction interval.
const (
	processNoise      = 0.1
	measurementNoise  = 0.5
	initialCovariance = 10
)

// KalmanFilter estimates position and velocity of a single target from
// noisy position observations. The state is [x, y, xdot, ydot] in local
// meter coordinates; all matrices are fixed-size so that a filter update
// does no allocation.
//
// The filter is not safe for concurrent use; the Tracker serializes
// access to it.
type KalmanFilter struct {
	x           math.Vec4
	p           math.Matrix4
	initialized bool
}

// Initialize seeds the filter at the given position with zero velocity
// and a diagonal covariance of initialCovariance.
func (f *KalmanFilter) Initialize(pos math.Vec2) {
	f.x = math.Vec4{pos[0], pos[1], 0, 0}

	f.p = math.Matrix4{}
	for i := range 4 {
		f.p[i][i] = initialCovariance
	}
	f.initialized = true
}

func (f *KalmanFilter) Initialized() bool { return f.initialized }

// transition returns the state transition matrix for a dt second step.
func transition(dt float64) math.Matrix4 {
	m := math.Identity4x4()
	m[0][2] = dt
	m[1][3] = dt
	return m
}

// observation projects the state onto the measured position.
var observation = math.Matrix2x4{
	{1, 0, 0, 0},
	{0, 1, 0, 0},
}

// processCovariance returns Q for a dt second step under the
// white-noise-acceleration model.
func processCovariance(dt float64) math.Matrix4 {
	dt2 := dt * dt
	dt3 := dt2 * dt / 2
	dt4 := dt2 * dt2 / 4

	var q math.Matrix4
	q[0][0], q[1][1] = dt4, dt4
	q[0][2], q[1][3] = dt3, dt3
	q[2][0], q[3][1] = dt3, dt3
	q[2][2], q[3][3] = dt2, dt2
	for i := range 4 {
		for j := range 4 {
			q[i][j] *= processNoise
		}
	}
	return q
}

// Predict advances the state estimate by dt seconds.
func (f *KalmanFilter) Predict(dt float64) {
	if !f.initialized || dt <= 0 {
		return
	}

	ft := transition(dt)
	f.x = ft.TransformVec(f.x)
	f.p = ft.PostMultiply(f.p).PostMultiply(ft.Transpose()).Add(processCovariance(dt))
}

// innovationCovariance returns S = H P H^T + R.
func (f *KalmanFilter) innovationCovariance() math.Matrix2 {
	s := observation.PostMultiply4(f.p).PostMultiply4x2(observation.Transpose())
	s[0][0] += measurementNoise
	s[1][1] += measurementNoise
	return s
}

// Update folds a position observation into the state estimate. If the
// filter has not been initialized, the observation initializes it.
func (f *KalmanFilter) Update(z math.Vec2) {
	if !f.initialized {
		f.Initialize(z)
		return
	}

	y := math.Sub2V(z, observation.TransformVec(f.x))
	s := f.innovationCovariance()
	gain := pMultHt(f.p).PostMultiply2(s.Inverse())

	f.x = math.Add4(f.x, gain.TransformVec(y))
	f.p = math.Identity4x4().Sub(gain.PostMultiply2x4(observation)).PostMultiply(f.p)
}

// pMultHt gives P H^T as a 4x2 matrix.
func pMultHt(p math.Matrix4) math.Matrix4x2 {
	var r math.Matrix4x2
	ht := observation.Transpose()
	for i := range 4 {
		for j := range 2 {
			for k := range 4 {
				r[i][j] += p[i][k] * ht[k][j]
			}
		}
	}
	return r
}

// MahalanobisSq returns the squared Mahalanobis distance of the
// observation from the predicted measurement, used for association
// gating.
func (f *KalmanFilter) MahalanobisSq(z math.Vec2) float64 {
	y := math.Sub2V(z, observation.TransformVec(f.x))
	sInv := f.innovationCovariance().Inverse()

	sy := math.Vec2{
		sInv[0][0]*y[0] + sInv[0][1]*y[1],
		sInv[1][0]*y[0] + sInv[1][1]*y[1],
	}
	return math.Dot2(y, sy)
}

// Position returns the estimated position in local meters.
func (f *KalmanFilter) Position() math.Vec2 {
	return math.Vec2{f.x[0], f.x[1]}
}

// Velocity returns the estimated velocity in meters per second.
func (f *KalmanFilter) Velocity() math.Vec2 {
	return math.Vec2{f.x[2], f.x[3]}
}
