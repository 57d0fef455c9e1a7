package pass

import (
	"github.com/Carmen-Shannon/oxy-batch/engine/camera"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/uniform"
)

// CameraRecord builds the camera uniform block from a camera. Frustum corner directions and clip
// planes are only filled in for perspective cameras.
//
// Parameters:
//   - cam: the camera to read
//
// Returns:
//   - uniform.CameraData: the record ready for upload
func CameraRecord(cam camera.Camera) uniform.CameraData {
	w, h := cam.PixelSize()
	pos := cam.Position()
	d := uniform.CameraData{
		ScreenResolution: [4]float32{float32(w), float32(h), 0, 0},
		CameraPosition:   [4]float32{pos[0], pos[1], pos[2], 1},
		WorldToView:      cam.ViewMatrix(),
		ViewProjection:   cam.ViewProjectionMatrix(),
		ClipToWorld:      cam.ClipToWorldMatrix(),
	}
	if cam.Projection() == camera.ProjectionPerspective {
		for i, dir := range cam.FrustumCornerDirections() {
			d.FrustumCorners[i] = [4]float32{dir[0], dir[1], dir[2], 0}
		}
		d.CameraClipPlanes = [4]float32{cam.Near(), cam.Far(), 0, 0}
	}
	return d
}
