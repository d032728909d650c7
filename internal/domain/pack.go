package domain

import (
	"encoding/binary"
	"math"

	"cogentcore.org/core/math32"
)

// Geometry buffers are little-endian float32 / uint32 arrays.

func packVector3s(vs []math32.Vector3) []byte {
	buf := make([]byte, 0, len(vs)*12)
	for _, v := range vs {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.X))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Y))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Z))
	}
	return buf
}

func unpackVector3s(data []byte) []math32.Vector3 {
	n := len(data) / 12
	if n == 0 {
		return nil
	}
	out := make([]math32.Vector3, n)
	for i := range out {
		off := i * 12
		out[i] = math32.Vector3{
			X: readFloat32(data[off:]),
			Y: readFloat32(data[off+4:]),
			Z: readFloat32(data[off+8:]),
		}
	}
	return out
}

func packVector2s(buf []byte, vs []math32.Vector2) []byte {
	for _, v := range vs {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.X))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Y))
	}
	return buf
}

func unpackVector2s(data []byte) []math32.Vector2 {
	n := len(data) / 8
	if n == 0 {
		return nil
	}
	out := make([]math32.Vector2, n)
	for i := range out {
		off := i * 8
		out[i] = math32.Vector2{X: readFloat32(data[off:]), Y: readFloat32(data[off+4:])}
	}
	return out
}

// packUVChannels writes channel after channel
func packUVChannels(channels [][]math32.Vector2) []byte {
	var buf []byte
	for _, ch := range channels {
		buf = packVector2s(buf, ch)
	}
	return buf
}

func unpackUVChannels(data []byte, count int) [][]math32.Vector2 {
	if count <= 0 || len(data) == 0 {
		return nil
	}
	per := len(data) / count
	per -= per % 8
	out := make([][]math32.Vector2, count)
	for i := range out {
		out[i] = unpackVector2s(data[i*per : (i+1)*per])
	}
	return out
}

func packColors(cs []Color) []byte {
	buf := make([]byte, 0, len(cs)*16)
	for _, c := range cs {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c.R))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c.G))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c.B))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c.A))
	}
	return buf
}

func unpackColors(data []byte) []Color {
	n := len(data) / 16
	if n == 0 {
		return nil
	}
	out := make([]Color, n)
	for i := range out {
		off := i * 16
		out[i] = Color{
			R: readFloat32(data[off:]),
			G: readFloat32(data[off+4:]),
			B: readFloat32(data[off+8:]),
			A: readFloat32(data[off+12:]),
		}
	}
	return out
}

// packFaces writes each face as its index count followed by the indices
func packFaces(faces []Face) []byte {
	var buf []byte
	for _, f := range faces {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f)))
		for _, idx := range f {
			buf = binary.LittleEndian.AppendUint32(buf, idx)
		}
	}
	return buf
}

// unpackFaces stops at the first truncated face
func unpackFaces(data []byte) []Face {
	var out []Face
	for len(data) >= 4 {
		n := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if n*4 > len(data) {
			break
		}
		f := make(Face, n)
		for i := range f {
			f[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
		data = data[n*4:]
		out = append(out, f)
	}
	return out
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
