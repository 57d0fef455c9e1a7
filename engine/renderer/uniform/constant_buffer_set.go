package uniform

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
)

// ErrCapacityExceeded is returned when more transforms are written than the per-object block holds,
// or a voxel payload is larger than the voxel block.
var ErrCapacityExceeded = errors.New("uniform block capacity exceeded")

type constantBufferSet struct {
	backend renderer.Backend
	buffers [slotCount]renderer.BufferHandle

	// objectScratch is reused by UpdatePerObject to avoid a per-draw allocation.
	objectScratch []byte
}

// ConstantBufferSet owns the five uniform buffers bound at the fixed slots of Blocks. Every update
// replaces the whole content of its buffer.
type ConstantBufferSet interface {
	// UpdatePerObject writes the instance transforms of the next draw.
	//
	// Parameters:
	//   - transforms: one column-major local-to-world matrix per instance, at most MaxInstances
	//
	// Returns:
	//   - error: ErrCapacityExceeded if there are more than MaxInstances transforms
	UpdatePerObject(transforms [][16]float32) error

	// UpdateScene writes the scene lighting block.
	UpdateScene(data SceneData) error

	// UpdateCamera writes the camera block.
	UpdateCamera(data CameraData) error

	// UpdateShadow writes the shadow cascade block.
	UpdateShadow(data ShadowData) error

	// UpdateVoxel writes a raw voxel block payload.
	//
	// Parameters:
	//   - data: the serialized payload, at most the size of VoxelData
	//
	// Returns:
	//   - error: ErrCapacityExceeded if the payload is too large
	UpdateVoxel(data []byte) error

	// UpdateVoxelData serializes and writes a VoxelData record.
	UpdateVoxelData(data VoxelData) error

	// Buffer returns the buffer bound at a slot.
	//
	// Parameters:
	//   - slot: one of the Slot constants
	//
	// Returns:
	//   - renderer.BufferHandle: the buffer, or zero for an unknown slot
	Buffer(slot int) renderer.BufferHandle

	// Bind re-attaches every buffer to its slot.
	Bind()

	// Release frees the buffers.
	Release()
}

var _ ConstantBufferSet = &constantBufferSet{}

// NewConstantBufferSet creates the five uniform buffers and binds each to its slot.
//
// Parameters:
//   - backend: the backend the buffers are created on
//
// Returns:
//   - ConstantBufferSet: the newly created buffer set
//   - error: an error if a buffer could not be created
func NewConstantBufferSet(backend renderer.Backend) (ConstantBufferSet, error) {
	c := &constantBufferSet{
		backend:       backend,
		objectScratch: make([]byte, Blocks[SlotObject].Size),
	}
	for _, b := range Blocks {
		buf, err := backend.CreateBuffer(b.StructName+" Uniform Buffer", renderer.BufferUsageUniform, b.Size)
		if err != nil {
			c.Release()
			return nil, fmt.Errorf("create %s buffer: %w", b.Name, err)
		}
		c.buffers[b.Slot] = buf
	}
	c.Bind()
	return c, nil
}

func (c *constantBufferSet) UpdatePerObject(transforms [][16]float32) error {
	if len(transforms) > MaxInstances {
		return fmt.Errorf("%d transforms for %d slots: %w", len(transforms), MaxInstances, ErrCapacityExceeded)
	}
	buf := c.objectScratch[:len(transforms)*mat4Size]
	for i := range transforms {
		putFloats(buf[i*mat4Size:], transforms[i][:])
	}
	return c.write(SlotObject, buf)
}

func (c *constantBufferSet) UpdateScene(data SceneData) error {
	return c.write(SlotScene, data.Marshal())
}

func (c *constantBufferSet) UpdateCamera(data CameraData) error {
	return c.write(SlotCamera, data.Marshal())
}

func (c *constantBufferSet) UpdateShadow(data ShadowData) error {
	return c.write(SlotShadow, data.Marshal())
}

func (c *constantBufferSet) UpdateVoxel(data []byte) error {
	if len(data) > Blocks[SlotVoxel].Size {
		return fmt.Errorf("%d bytes for %d byte voxel block: %w", len(data), Blocks[SlotVoxel].Size, ErrCapacityExceeded)
	}
	return c.write(SlotVoxel, data)
}

func (c *constantBufferSet) UpdateVoxelData(data VoxelData) error {
	return c.UpdateVoxel(data.Marshal())
}

func (c *constantBufferSet) write(slot int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := c.backend.WriteBuffer(c.buffers[slot], data); err != nil {
		return fmt.Errorf("update %s: %w", Blocks[slot].Name, err)
	}
	return nil
}

func (c *constantBufferSet) Buffer(slot int) renderer.BufferHandle {
	if slot < 0 || slot >= slotCount {
		return 0
	}
	return c.buffers[slot]
}

func (c *constantBufferSet) Bind() {
	for slot, buf := range c.buffers {
		c.backend.BindUniformBuffer(slot, buf)
	}
}

func (c *constantBufferSet) Release() {
	for slot, buf := range c.buffers {
		if buf != 0 {
			c.backend.ReleaseBuffer(buf)
			c.buffers[slot] = 0
		}
	}
}
