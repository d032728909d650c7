package domain

import "cogentcore.org/core/math32"

// Face is a polygon given as indices into a mesh's vertex array
type Face []uint32

// Color is a linear RGBA colour
type Color struct {
	R, G, B, A float32
}

// RGB is a linear colour without alpha
type RGB struct {
	R, G, B float32
}

// IdentityMatrix returns the 4x4 identity transform
func IdentityMatrix() math32.Matrix4 {
	return math32.Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// MatrixAt returns the element at row r, column c of a column-major matrix
func MatrixAt(m math32.Matrix4, r, c int) float32 {
	return m[c*4+r]
}

// MatrixFromRows builds a column-major matrix from row-major rows
func MatrixFromRows(rows [4][4]float32) math32.Matrix4 {
	var m math32.Matrix4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m[c*4+r] = rows[r][c]
		}
	}
	return m
}

// MatrixRows returns the row-major form of m
func MatrixRows(m math32.Matrix4) [4][4]float32 {
	var rows [4][4]float32
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			rows[r][c] = m[c*4+r]
		}
	}
	return rows
}
