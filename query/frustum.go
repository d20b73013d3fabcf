package query

// Mat4 is a row-major 4x4 matrix, used here only to hold a caller-
// supplied inverse view-projection matrix for frustum queries, per
// spec.md §4.11's "in frustum" specialization.
type Mat4 [16]float64

// transformPoint applies m to the homogeneous point (x, y, z, 1) and
// performs the perspective divide.
func (m Mat4) transformPoint(x, y, z float64) [3]float64 {
	rx := m[0]*x + m[1]*y + m[2]*z + m[3]
	ry := m[4]*x + m[5]*y + m[6]*z + m[7]
	rz := m[8]*x + m[9]*y + m[10]*z + m[11]
	rw := m[12]*x + m[13]*y + m[14]*z + m[15]
	if rw == 0 {
		rw = 1
	}
	return [3]float64{rx / rw, ry / rw, rz / rw}
}

// ndcCorners are the 8 canonical clip-space cube corners.
var ndcCorners = [8][3]float64{
	{-1, -1, -1}, {1, -1, -1}, {-1, 1, -1}, {1, 1, -1},
	{-1, -1, 1}, {1, -1, 1}, {-1, 1, 1}, {1, 1, 1},
}

// frustumFaces pairs each of the 6 faces with the 3 corner indices (out
// of the 8 NDC corners) needed to build its plane via the right-hand
// cross product, before orientation correction.
var frustumFaces = [6][3]int{
	{0, 1, 2}, // near
	{4, 6, 5}, // far
	{0, 2, 4}, // left
	{1, 5, 3}, // right
	{0, 4, 1}, // bottom
	{2, 3, 6}, // top
}

// Frustum builds an InsideHull predicate from a caller-supplied inverse
// view-projection matrix: the 8 canonical NDC cube corners are
// transformed into world space, then each of the 6 faces becomes one
// half-space, oriented so the frustum's own centroid satisfies
// "inside", per spec.md §4.11.
func Frustum(invViewProj Mat4) Predicate {
	var world [8][3]float64
	var centroid [3]float64
	for i, c := range ndcCorners {
		world[i] = invViewProj.transformPoint(c[0], c[1], c[2])
		centroid[0] += world[i][0]
		centroid[1] += world[i][1]
		centroid[2] += world[i][2]
	}
	centroid[0] /= 8
	centroid[1] /= 8
	centroid[2] /= 8

	hull := make(Hull, 0, 6)
	for _, face := range frustumFaces {
		a, b, c := world[face[0]], world[face[1]], world[face[2]]
		ab := sub(b, a)
		ac := sub(c, a)
		n := cross(ab, ac)
		d := dot(n, a)
		// Orient so the centroid satisfies dot(n, p) <= d.
		if dot(n, centroid) > d {
			n = [3]float64{-n[0], -n[1], -n[2]}
			d = -d
		}
		hull = append(hull, HalfSpace{Normal: n, D: d})
	}
	return InsideHull(hull)
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
