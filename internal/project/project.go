// Package project maps 3-D points through a pose and camera intrinsics to
// pixel coordinates for the overlay. Pure functions, no state.
package project

import (
	"gonum.org/v1/gonum/mat"

	"posetrack-client-go/internal/types"
)

// epsilon rejects points at or behind the camera plane.
const epsilon = 1e-6

// PoseMatrix converts a row-major 4x4 pose array into a gonum matrix.
func PoseMatrix(pose [4][4]float64) *mat.Dense {
	flat := make([]float64, 0, 16)
	for _, row := range pose {
		flat = append(flat, row[:]...)
	}
	return mat.NewDense(4, 4, flat)
}

// Project transforms a point into the camera frame via the pose's rotation
// and translation, then applies the intrinsics with a perspective divide.
// ok is false when the transformed point lies at or behind the camera.
// Pixel coordinates truncate toward zero, matching integer raster space.
func Project(p [3]float64, pose mat.Matrix, k types.Intrinsics) (x, y int, ok bool) {
	hp := mat.NewVecDense(4, []float64{p[0], p[1], p[2], 1})
	var cam mat.VecDense
	cam.MulVec(pose, hp)

	z := cam.AtVec(2)
	if z <= epsilon {
		return 0, 0, false
	}
	u := (k.Fx*cam.AtVec(0))/z + k.Ppx
	v := (k.Fy*cam.AtVec(1))/z + k.Ppy
	return int(u), int(v), true
}

// Segment is one drawable overlay line in pixel space.
type Segment struct {
	From types.Point `json:"from"`
	To   types.Point `json:"to"`
	Axis string      `json:"axis"`
}

// AxisGizmo projects a 3-axis marker of the given length at the pose
// origin. Axes whose endpoints fall behind the camera are omitted.
func AxisGizmo(pose mat.Matrix, k types.Intrinsics, length float64) []Segment {
	ox, oy, ok := Project([3]float64{0, 0, 0}, pose, k)
	if !ok {
		return nil
	}
	origin := types.Point{X: ox, Y: oy}

	axes := []struct {
		name string
		tip  [3]float64
	}{
		{"x", [3]float64{length, 0, 0}},
		{"y", [3]float64{0, length, 0}},
		{"z", [3]float64{0, 0, length}},
	}
	segments := make([]Segment, 0, 3)
	for _, a := range axes {
		tx, ty, ok := Project(a.tip, pose, k)
		if !ok {
			continue
		}
		segments = append(segments, Segment{
			From: origin,
			To:   types.Point{X: tx, Y: ty},
			Axis: a.name,
		})
	}
	return segments
}

// BoxCorners maps a result's cuboid to pixel space. Corners already in
// image space pass through truncated; 3-D corners are projected one by one.
// ok is false for any corner behind the camera.
func BoxCorners(res types.Result, k types.Intrinsics) ([8]types.Point, [8]bool) {
	var points [8]types.Point
	var visible [8]bool
	if res.BoxIs2D {
		for i, c := range res.Box {
			points[i] = types.Point{X: int(c[0]), Y: int(c[1])}
			visible[i] = true
		}
		return points, visible
	}
	pose := PoseMatrix(res.Pose)
	for i, c := range res.Box {
		x, y, ok := Project(c, pose, k)
		points[i] = types.Point{X: x, Y: y}
		visible[i] = ok
	}
	return points, visible
}
