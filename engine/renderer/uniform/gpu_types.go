package uniform

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// WGSL definitions of the uniform block structs. Each matches its Go record layout exactly.
var (
	//go:embed assets/per_object_data.wgsl
	PerObjectDataSource string
	//go:embed assets/scene_data.wgsl
	SceneDataSource string
	//go:embed assets/camera_data.wgsl
	CameraDataSource string
	//go:embed assets/shadow_data.wgsl
	ShadowDataSource string
	//go:embed assets/voxel_data.wgsl
	VoxelDataSource string
)

// MaxInstances is the number of transforms the per-object block holds, and therefore the largest
// instance count of a single draw.
const MaxInstances = 256

// PCFOffsetCount is the number of PCF lookup records in the voxel block (64 leaf indices × 9 lookups).
const PCFOffsetCount = 64 * 9

// mat4Size is the size in bytes of a mat4x4<f32>.
const mat4Size = 64

// PerObjectData is the per-object uniform block: one local-to-world transform per instance.
// Size: 16384 bytes.
type PerObjectData struct {
	LocalToWorld [MaxInstances][16]float32 // offset 0: array<mat4x4<f32>, 256>
}

// Size returns the size of the PerObjectData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16384)
func (d *PerObjectData) Size() int {
	return int(unsafe.Sizeof(*d))
}

// SceneData is the scene-wide lighting uniform block.
// Size: 48 bytes.
type SceneData struct {
	AmbientLightColor [4]float32 // offset  0
	LightColor        [4]float32 // offset 16
	LightDirection    [4]float32 // offset 32: towards the light, normalized
}

// Size returns the size of the SceneData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (d *SceneData) Size() int {
	return int(unsafe.Sizeof(*d))
}

// Marshal serializes the SceneData struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (d *SceneData) Marshal() []byte {
	buf := make([]byte, d.Size())
	putFloats(buf[0:], d.AmbientLightColor[:])
	putFloats(buf[16:], d.LightColor[:])
	putFloats(buf[32:], d.LightDirection[:])
	return buf
}

// CameraData is the camera uniform block.
// Size: 304 bytes.
type CameraData struct {
	ScreenResolution [4]float32    // offset   0: x = width, y = height in pixels
	CameraPosition   [4]float32    // offset  16
	WorldToView      [16]float32   // offset  32
	ViewProjection   [16]float32   // offset  96
	ClipToWorld      [16]float32   // offset 160
	FrustumCorners   [4][4]float32 // offset 224: world-space unit directions, perspective cameras only
	CameraClipPlanes [4]float32    // offset 288: x = near, y = far, perspective cameras only
}

// Size returns the size of the CameraData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (304)
func (d *CameraData) Size() int {
	return int(unsafe.Sizeof(*d))
}

// Marshal serializes the CameraData struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (d *CameraData) Marshal() []byte {
	buf := make([]byte, d.Size())
	putFloats(buf[0:], d.ScreenResolution[:])
	putFloats(buf[16:], d.CameraPosition[:])
	putFloats(buf[32:], d.WorldToView[:])
	putFloats(buf[96:], d.ViewProjection[:])
	putFloats(buf[160:], d.ClipToWorld[:])
	for i := range d.FrustumCorners {
		putFloats(buf[224+i*16:], d.FrustumCorners[i][:])
	}
	putFloats(buf[288:], d.CameraClipPlanes[:])
	return buf
}

// ShadowData is the cascaded shadow map uniform block.
// Size: 272 bytes.
type ShadowData struct {
	CascadeDistancesSqr [4]float32     // offset  0: squared far distance of each cascade
	WorldToShadow       [4][16]float32 // offset 16
}

// Size returns the size of the ShadowData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (272)
func (d *ShadowData) Size() int {
	return int(unsafe.Sizeof(*d))
}

// Marshal serializes the ShadowData struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (d *ShadowData) Marshal() []byte {
	buf := make([]byte, d.Size())
	putFloats(buf[0:], d.CascadeDistancesSqr[:])
	for i := range d.WorldToShadow {
		putFloats(buf[16+i*mat4Size:], d.WorldToShadow[i][:])
	}
	return buf
}

// PCFOffset locates one leaf lookup of the voxel shadow PCF kernel.
type PCFOffset struct {
	XOffset     uint32
	YOffset     uint32
	BitmaskHigh uint32
	BitmaskLow  uint32
}

// VoxelData is the voxelized shadow uniform block.
// Size: 9296 bytes.
type VoxelData struct {
	WorldToVoxels    [16]float32               // offset  0
	VoxelTreeHeight  uint32                    // offset 64
	TileSubdivisions uint32                    // offset 68
	PCFSampleCount   uint32                    // offset 72: voxels covered by the PCF kernel
	PCFLookups       uint32                    // offset 76: leaf nodes visited per kernel
	PCFOffsets       [PCFOffsetCount]PCFOffset // offset 80
}

// Size returns the size of the VoxelData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (9296)
func (d *VoxelData) Size() int {
	return int(unsafe.Sizeof(*d))
}

// Marshal serializes the VoxelData struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (d *VoxelData) Marshal() []byte {
	buf := make([]byte, d.Size())
	putFloats(buf[0:], d.WorldToVoxels[:])
	binary.LittleEndian.PutUint32(buf[64:], d.VoxelTreeHeight)
	binary.LittleEndian.PutUint32(buf[68:], d.TileSubdivisions)
	binary.LittleEndian.PutUint32(buf[72:], d.PCFSampleCount)
	binary.LittleEndian.PutUint32(buf[76:], d.PCFLookups)
	for i, o := range d.PCFOffsets {
		off := 80 + i*16
		binary.LittleEndian.PutUint32(buf[off:], o.XOffset)
		binary.LittleEndian.PutUint32(buf[off+4:], o.YOffset)
		binary.LittleEndian.PutUint32(buf[off+8:], o.BitmaskHigh)
		binary.LittleEndian.PutUint32(buf[off+12:], o.BitmaskLow)
	}
	return buf
}

func putFloats(buf []byte, v []float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
}
