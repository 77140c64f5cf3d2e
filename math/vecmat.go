// math/vecmat.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

///////////////////////////////////////////////////////////////////////////
// point 2

// Various useful functions for arithmetic with 2D points/vectors.
// Names are brief in order to avoid clutter when they're used.

// a+b
func Add2(a [2]float64, b [2]float64) [2]float64 {
	return [2]float64{a[0] + b[0], a[1] + b[1]}
}

// a-b
func Sub2(a [2]float64, b [2]float64) [2]float64 {
	return [2]float64{a[0] - b[0], a[1] - b[1]}
}

// a*s
func Scale2(a [2]float64, s float64) [2]float64 {
	return [2]float64{s * a[0], s * a[1]}
}

func Dot2(a, b [2]float64) float64 {
	return a[0]*b[0] + a[1]*b[1]
}

// Lerp2 interpolates x of the way between a and b.
func Lerp2(x float64, a [2]float64, b [2]float64) [2]float64 {
	return [2]float64{(1-x)*a[0] + x*b[0], (1-x)*a[1] + x*b[1]}
}

// Length of v
func Length2(v [2]float64) float64 {
	return gomath.Sqrt(v[0]*v[0] + v[1]*v[1])
}

// Distance between two points
func Distance2(a [2]float64, b [2]float64) float64 {
	return Length2(Sub2(a, b))
}

// Normalize2 normalizes the given vector.
func Normalize2(a [2]float64) [2]float64 {
	l := Length2(a)
	if l == 0 {
		return [2]float64{0, 0}
	}
	return Scale2(a, 1/l)
}

///////////////////////////////////////////////////////////////////////////
// Fixed-size matrices
//
// Just enough linear algebra for a [x, y, xdot, ydot] constant-velocity
// Kalman filter; everything is stack-allocated and loop-unrolled by the
// compiler.

type Vec2 = [2]float64
type Vec4 = [4]float64

type Matrix2 [2][2]float64
type Matrix4 [4][4]float64
type Matrix2x4 [2][4]float64
type Matrix4x2 [4][2]float64

func Identity2x2() Matrix2 {
	var m Matrix2
	m[0][0] = 1
	m[1][1] = 1
	return m
}

func Identity4x4() Matrix4 {
	var m Matrix4
	for i := range 4 {
		m[i][i] = 1
	}
	return m
}

func (m Matrix2) Add(m2 Matrix2) Matrix2 {
	var r Matrix2
	for i := range 2 {
		for j := range 2 {
			r[i][j] = m[i][j] + m2[i][j]
		}
	}
	return r
}

func (m Matrix2) Determinant() float64 {
	return m[0][0]*m[1][1] - m[0][1]*m[1][0]
}

func (m Matrix2) Inverse() Matrix2 {
	invDet := 1 / m.Determinant()
	return Matrix2{
		{invDet * m[1][1], -invDet * m[0][1]},
		{-invDet * m[1][0], invDet * m[0][0]},
	}
}

func (m Matrix4) Add(m2 Matrix4) Matrix4 {
	var r Matrix4
	for i := range 4 {
		for j := range 4 {
			r[i][j] = m[i][j] + m2[i][j]
		}
	}
	return r
}

func (m Matrix4) Sub(m2 Matrix4) Matrix4 {
	var r Matrix4
	for i := range 4 {
		for j := range 4 {
			r[i][j] = m[i][j] - m2[i][j]
		}
	}
	return r
}

func (m Matrix4) PostMultiply(m2 Matrix4) Matrix4 {
	var r Matrix4
	for i := range 4 {
		for j := range 4 {
			for k := range 4 {
				r[i][j] += m[i][k] * m2[k][j]
			}
		}
	}
	return r
}

func (m Matrix4) Transpose() Matrix4 {
	var r Matrix4
	for i := range 4 {
		for j := range 4 {
			r[i][j] = m[j][i]
		}
	}
	return r
}

func (m Matrix4) TransformVec(v Vec4) Vec4 {
	var r Vec4
	for i := range 4 {
		for k := range 4 {
			r[i] += m[i][k] * v[k]
		}
	}
	return r
}

func (m Matrix2x4) Transpose() Matrix4x2 {
	var r Matrix4x2
	for i := range 2 {
		for j := range 4 {
			r[j][i] = m[i][j]
		}
	}
	return r
}

// TransformVec projects a 4-vector through the 2x4 observation matrix.
func (m Matrix2x4) TransformVec(v Vec4) Vec2 {
	var r Vec2
	for i := range 2 {
		for k := range 4 {
			r[i] += m[i][k] * v[k]
		}
	}
	return r
}

// PostMultiply4 gives the 2x4 product m * m2 for a 4x4 m2.
func (m Matrix2x4) PostMultiply4(m2 Matrix4) Matrix2x4 {
	var r Matrix2x4
	for i := range 2 {
		for j := range 4 {
			for k := range 4 {
				r[i][j] += m[i][k] * m2[k][j]
			}
		}
	}
	return r
}

// PostMultiply4x2 gives the 2x2 product m * m2 for a 4x2 m2.
func (m Matrix2x4) PostMultiply4x2(m2 Matrix4x2) Matrix2 {
	var r Matrix2
	for i := range 2 {
		for j := range 2 {
			for k := range 4 {
				r[i][j] += m[i][k] * m2[k][j]
			}
		}
	}
	return r
}

// PostMultiply2 gives the 4x2 product m * m2 for a 2x2 m2.
func (m Matrix4x2) PostMultiply2(m2 Matrix2) Matrix4x2 {
	var r Matrix4x2
	for i := range 4 {
		for j := range 2 {
			for k := range 2 {
				r[i][j] += m[i][k] * m2[k][j]
			}
		}
	}
	return r
}

// PostMultiply2x4 gives the 4x4 product m * m2 for a 2x4 m2.
func (m Matrix4x2) PostMultiply2x4(m2 Matrix2x4) Matrix4 {
	var r Matrix4
	for i := range 4 {
		for j := range 4 {
			for k := range 2 {
				r[i][j] += m[i][k] * m2[k][j]
			}
		}
	}
	return r
}

// TransformVec lifts a 2-vector through the 4x2 gain matrix.
func (m Matrix4x2) TransformVec(v Vec2) Vec4 {
	var r Vec4
	for i := range 4 {
		for k := range 2 {
			r[i] += m[i][k] * v[k]
		}
	}
	return r
}

func Add4(a, b Vec4) Vec4 {
	return Vec4{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
}

func Sub2V(a, b Vec2) Vec2 {
	return Vec2{a[0] - b[0], a[1] - b[1]}
}
