package uniform

import (
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
)

// Uniform block binding slots shared by every shader variant.
const (
	SlotObject = 0
	SlotScene  = 1
	SlotShadow = 2
	SlotVoxel  = 3
	SlotCamera = 4

	slotCount = 5
)

// WGSL bind groups of the binding table. Texture unit u is declared at @binding(2u) of TextureGroup
// with its sampler at @binding(2u+1).
const (
	UniformGroup = 0
	TextureGroup = 1
)

// Texture units shared by every shader variant.
const (
	UnitMainTexture = 0
	UnitNormalMap   = 1
	UnitShadowMap   = 2
	UnitShadowMask  = 3
	UnitVoxelData   = 4
)

// Block describes one uniform block: its shader-side variable name, WGSL struct, binding slot and size.
type Block struct {
	Name       string
	StructName string
	Source     string
	Slot       int
	Size       int
}

// Blocks is the binding table of the uniform blocks, indexed by slot.
var Blocks = [slotCount]Block{
	SlotObject: {Name: "per_object_data", StructName: "PerObjectData", Source: PerObjectDataSource, Slot: SlotObject, Size: (&PerObjectData{}).Size()},
	SlotScene:  {Name: "scene_data", StructName: "SceneData", Source: SceneDataSource, Slot: SlotScene, Size: (&SceneData{}).Size()},
	SlotShadow: {Name: "shadow_data", StructName: "ShadowData", Source: ShadowDataSource, Slot: SlotShadow, Size: (&ShadowData{}).Size()},
	SlotVoxel:  {Name: "voxel_data", StructName: "VoxelData", Source: VoxelDataSource, Slot: SlotVoxel, Size: (&VoxelData{}).Size()},
	SlotCamera: {Name: "camera_data", StructName: "CameraData", Source: CameraDataSource, Slot: SlotCamera, Size: (&CameraData{}).Size()},
}

// Samplers is the binding table of the texture samplers, indexed by texture unit.
var Samplers = []renderer.SamplerBinding{
	UnitMainTexture: {Name: "_MainTexture", Unit: UnitMainTexture},
	UnitNormalMap:   {Name: "_NormalMap", Unit: UnitNormalMap},
	UnitShadowMap:   {Name: "_ShadowMapTexture", Unit: UnitShadowMap},
	UnitShadowMask:  {Name: "_ShadowMask", Unit: UnitShadowMask},
	UnitVoxelData:   {Name: "_VoxelData", Unit: UnitVoxelData},
}

// BlockByName looks up a uniform block by its shader-side name.
//
// Parameters:
//   - name: the block name, e.g. "camera_data"
//
// Returns:
//   - Block: the block
//   - bool: false if no block has that name
func BlockByName(name string) (Block, bool) {
	for _, b := range Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return Block{}, false
}

// SamplerByName looks up a sampler by its shader-side name.
//
// Parameters:
//   - name: the sampler name, e.g. "_MainTexture"
//
// Returns:
//   - renderer.SamplerBinding: the sampler binding
//   - bool: false if no sampler has that name
func SamplerByName(name string) (renderer.SamplerBinding, bool) {
	for _, s := range Samplers {
		if s.Name == name {
			return s, true
		}
	}
	return renderer.SamplerBinding{}, false
}

// UniformBlockBindings returns the uniform block table in the form carried by a renderer.ProgramDescriptor.
//
// Returns:
//   - []renderer.UniformBlockBinding: one entry per slot
func UniformBlockBindings() []renderer.UniformBlockBinding {
	out := make([]renderer.UniformBlockBinding, 0, len(Blocks))
	for _, b := range Blocks {
		out = append(out, renderer.UniformBlockBinding{Name: b.Name, Slot: b.Slot, Size: b.Size})
	}
	return out
}

// SamplerBindings returns a copy of the sampler table.
//
// Returns:
//   - []renderer.SamplerBinding: one entry per texture unit
func SamplerBindings() []renderer.SamplerBinding {
	return append([]renderer.SamplerBinding(nil), Samplers...)
}
