package common

import (
	"github.com/chewxy/math32"
)

// Frustum corner indices. The order matches the vertex order of the full-screen quad so a
// vertex shader can index the corner array with its vertex index.
const (
	FrustumTopRight    = 0
	FrustumBottomRight = 1
	FrustumTopLeft     = 2
	FrustumBottomLeft  = 3
)

// FrustumCorners returns the four view-space corners of a perspective frustum cross-section at
// the given distance in front of the eye. View space looks down -Z.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - distance: distance of the cross-section from the eye
//
// Returns:
//   - [4][3]float32: corners ordered TopRight, BottomRight, TopLeft, BottomLeft
func FrustumCorners(fovY, aspect, distance float32) [4][3]float32 {
	halfHeight := math32.Tan(fovY/2) * distance
	halfWidth := halfHeight * aspect

	var corners [4][3]float32
	corners[FrustumTopRight] = [3]float32{halfWidth, halfHeight, -distance}
	corners[FrustumBottomRight] = [3]float32{halfWidth, -halfHeight, -distance}
	corners[FrustumTopLeft] = [3]float32{-halfWidth, halfHeight, -distance}
	corners[FrustumBottomLeft] = [3]float32{-halfWidth, -halfHeight, -distance}
	return corners
}

// FrustumCornerDirections converts view-space frustum corners into world-space unit direction
// vectors using the camera's local-to-world (inverse view) matrix.
//
// Parameters:
//   - viewToWorld: column-major inverse of the view matrix
//   - corners: view-space corners as returned by FrustumCorners
//
// Returns:
//   - [4][3]float32: world-space unit-length directions from the eye through each corner
func FrustumCornerDirections(viewToWorld []float32, corners [4][3]float32) [4][3]float32 {
	var dirs [4][3]float32
	for i, c := range corners {
		dirs[i] = Normalize3(TransformDirection(viewToWorld, c))
	}
	return dirs
}
